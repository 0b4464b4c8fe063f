package model

// Mode is the operating mode of a truck as observed by the supervisory
// side. A record starts as ModeUnknown until the first state frame for the
// truck arrives.
type Mode string

const (
	ModeManual  Mode = "MANUAL"
	ModeAuto    Mode = "AUTO"
	ModeUnknown Mode = "UNKNOWN"
)
