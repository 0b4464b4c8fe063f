package bus

import (
	"fmt"
	"strconv"
	"strings"
)

// MessageClass identifies which stream of the per-truck topic family a
// message belongs to.
type MessageClass string

const (
	ClassSensors  MessageClass = "sensors"
	ClassState    MessageClass = "state"
	ClassCommands MessageClass = "commands"
	ClassSetpoint MessageClass = "setpoint"
)

func SensorsTopic(id int) string  { return fmt.Sprintf("truck/%d/sensors", id) }
func StateTopic(id int) string    { return fmt.Sprintf("truck/%d/state", id) }
func CommandsTopic(id int) string { return fmt.Sprintf("truck/%d/commands", id) }
func SetpointTopic(id int) string { return fmt.Sprintf("truck/%d/setpoint", id) }

// Wildcard subscriptions used by the supervisory side.
const (
	AllSensors  = "truck/+/sensors"
	AllState    = "truck/+/state"
	AllCommands = "truck/+/commands"
)

// ParseTopic extracts the truck id and message class from a truck topic.
func ParseTopic(topic string) (int, MessageClass, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "truck" {
		return 0, "", fmt.Errorf("bus: not a truck topic: %q", topic)
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", fmt.Errorf("bus: bad truck id in topic %q: %w", topic, err)
	}
	switch c := MessageClass(parts[2]); c {
	case ClassSensors, ClassState, ClassCommands, ClassSetpoint:
		return id, c, nil
	default:
		return 0, "", fmt.Errorf("bus: unknown message class in topic %q", topic)
	}
}
