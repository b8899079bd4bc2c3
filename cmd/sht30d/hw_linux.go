//go:build linux

package main

import (
	"meshsense-go/platform"
	"meshsense-go/services/config"
)

func openHardware(cfg config.Config, sim bool) (platform.BusOpener, platform.Pin, error) {
	if sim {
		b, p := openSim()
		return b, p, nil
	}
	buses, err := platform.NewPeriphBuses()
	if err != nil {
		return nil, nil, err
	}
	pin, err := platform.NewPeriphPin(cfg.Sensor.ResetPin)
	if err != nil {
		return nil, nil, err
	}
	return buses, pin, nil
}
