package ble

import "github.com/flitebridge/flitebridge/internal/ble/definition"

// InputValue is the directional value of a decoded input event: press or
// release for buttons, left or right for encoders.
type InputValue int

const (
	ValuePress InputValue = iota
	ValueRelease
	ValueLeft
	ValueRight
)

func (v InputValue) String() string {
	switch v {
	case ValuePress:
		return "press"
	case ValueRelease:
		return "release"
	case ValueLeft:
		return "left"
	case ValueRight:
		return "right"
	default:
		return "invalid"
	}
}

// InputEvent is one semantic input decoded from a characteristic
// notification. DeviceID and DeviceLabel both carry the input's label: the
// host app keys its input mapping by label and displays it verbatim.
type InputEvent struct {
	Serial      string
	DeviceName  string
	DeviceID    string
	DeviceLabel string
	Kind        definition.InputType
	Value       InputValue
}

// EventType classifies events on the manager's outbound channel.
type EventType int

const (
	// EventInput carries a decoded input event.
	EventInput EventType = iota
	// EventConnected fires per successful device connect, and once per
	// completed scan that leaves at least one device active.
	EventConnected
	// EventScanComplete fires when a scan sequence finishes, regardless of
	// outcome.
	EventScanComplete
	// EventDeviceRemoved fires when a disconnected device is removed from
	// the registry on a tick.
	EventDeviceRemoved
)

func (t EventType) String() string {
	switch t {
	case EventInput:
		return "input"
	case EventConnected:
		return "connected"
	case EventScanComplete:
		return "scan_complete"
	case EventDeviceRemoved:
		return "device_removed"
	default:
		return "invalid"
	}
}

// Event is one entry on the manager's outbound channel. Input is set for
// EventInput; Address is set for EventDeviceRemoved and EventConnected.
type Event struct {
	Type    EventType
	Input   *InputEvent
	Address string
}

// deviceEvent flows on the per-device inbound channel from a Device to the
// manager. Exactly one of input or disconnected is set.
type deviceEvent struct {
	address      string
	input        *InputEvent
	disconnected bool
}
