package mesh

import "errors"

var (
	errShort     = errors.New("short payload")
	errNotSensor = errors.New("not a sensor status")
	errTopic     = errors.New("malformed topic")
)
