package types

// ------------------------
// Temperature & humidity
// ------------------------

type SensorInfo struct {
	Sensor string `json:"sensor"` // "sht30"
	Addr   uint16 `json:"addr"`   // I2C address
	Bus    string `json:"bus"`    // "i2c0", ...
}

// EnvValue is the decoded reading, retained on sensor/<id>/value.
// Fixed-point, small types to suit TinyGo.
type EnvValue struct {
	// Hundredths of °C (e.g. 2501 => 25.01°C).
	CentiC int16 `json:"centi_c"`
	// Whole %RH; the sensor fraction is discarded.
	RH uint8 `json:"rh"`
	// Wire form [sign, tInt, tDec, hInt].
	Raw [4]byte `json:"raw"`
	// Sequence number of the mesh publish that carried this value; only
	// meaningful when Published is set.
	Seq       uint8 `json:"seq"`
	Published bool  `json:"published"`
	TS        int64 `json:"ts_ms"`
}

// Outcome names one acquisition cycle result on sensor/<id>/event/<outcome>.
type Outcome string

const (
	OutcomeReading   Outcome = "reading"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeChecksum  Outcome = "checksum"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeBusError  Outcome = "bus_error"
	OutcomePublished Outcome = "published"
	OutcomeSendError Outcome = "send_error"
	OutcomeReset     Outcome = "reset"
)

type CycleEvent struct {
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
	TS      int64   `json:"ts_ms"`
}
