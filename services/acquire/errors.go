package acquire

import "errors"

var errNoHandle = errors.New("no bus handle")
