//go:build linux

package platform

import "testing"

func TestPeriphBusName(t *testing.T) {
	cases := map[string]string{
		"i2c0":       "/dev/i2c-0",
		"i2c1":       "/dev/i2c-1",
		"/dev/i2c-3": "/dev/i2c-3",
		"I2C1":       "I2C1",
		"i2cx":       "i2cx",
	}
	for in, want := range cases {
		if got := periphBusName(in); got != want {
			t.Errorf("%q -> %q, want %q", in, got, want)
		}
	}
}
