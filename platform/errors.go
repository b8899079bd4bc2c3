package platform

import "strconv"

type errNoPin int

func (e errNoPin) Error() string { return "no such pin GPIO" + strconv.Itoa(int(e)) }

var (
	errNack     = errorString("nack")
	errShortCmd = errorString("command shorter than two bytes")
	errClosed   = errorString("handle closed by a later open")
)

type errorString string

func (e errorString) Error() string { return string(e) }
