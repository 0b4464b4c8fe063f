package telemetry

import "encoding/json"

// Command is a partial update received on truck/<id>/commands. Every field
// is optional; an absent field means "no change", never an implicit zero.
// Two vocabularies coexist on the wire: the absolute fields (acceleration,
// steering) written by controllers, and the manual-drive fields
// (accelerate, steer_left, steer_right) written by operator input.
type Command struct {
	Acceleration *int  `json:"acceleration,omitempty"`
	Steering     *int  `json:"steering,omitempty"`
	Accelerate   *int  `json:"accelerate,omitempty"`
	SteerLeft    *int  `json:"steer_left,omitempty"`
	SteerRight   *int  `json:"steer_right,omitempty"`
	AutoMode     *bool `json:"auto_mode,omitempty"`
	ManualMode   *bool `json:"manual_mode,omitempty"`
	Rearm        *bool `json:"rearm,omitempty"`
	Arrived      *bool `json:"arrived,omitempty"`
}

// IsEmpty reports whether no recognized field is present.
func (c Command) IsEmpty() bool {
	return c.Acceleration == nil && c.Steering == nil && c.Accelerate == nil &&
		c.SteerLeft == nil && c.SteerRight == nil && c.AutoMode == nil &&
		c.ManualMode == nil && c.Rearm == nil && c.Arrived == nil
}

// Merge overlays other on top of c, later values winning per field. Fields
// absent in other keep their value in c.
func (c Command) Merge(other Command) Command {
	if other.Acceleration != nil {
		c.Acceleration = other.Acceleration
	}
	if other.Steering != nil {
		c.Steering = other.Steering
	}
	if other.Accelerate != nil {
		c.Accelerate = other.Accelerate
	}
	if other.SteerLeft != nil {
		c.SteerLeft = other.SteerLeft
	}
	if other.SteerRight != nil {
		c.SteerRight = other.SteerRight
	}
	if other.AutoMode != nil {
		c.AutoMode = other.AutoMode
	}
	if other.ManualMode != nil {
		c.ManualMode = other.ManualMode
	}
	if other.Rearm != nil {
		c.Rearm = other.Rearm
	}
	if other.Arrived != nil {
		c.Arrived = other.Arrived
	}
	return c
}

// DecodeCommand parses a command payload leniently: unknown keys are
// ignored and a malformed value drops only that field, never the whole
// message. An error is returned only when the payload is not a JSON object
// at all.
func DecodeCommand(payload []byte) (Command, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Command{}, err
	}
	var c Command
	c.Acceleration = intField(raw, "acceleration")
	c.Steering = intField(raw, "steering")
	c.Accelerate = intField(raw, "accelerate")
	c.SteerLeft = intField(raw, "steer_left")
	c.SteerRight = intField(raw, "steer_right")
	c.AutoMode = boolField(raw, "auto_mode")
	c.ManualMode = boolField(raw, "manual_mode")
	c.Rearm = boolField(raw, "rearm")
	c.Arrived = boolField(raw, "arrived")
	return c, nil
}

func intField(raw map[string]json.RawMessage, key string) *int {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	var n int
	if err := json.Unmarshal(v, &n); err != nil {
		return nil
	}
	return &n
}

func boolField(raw map[string]json.RawMessage, key string) *bool {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return nil
	}
	return &b
}

// Int returns a pointer to v, for building partial commands in place.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
