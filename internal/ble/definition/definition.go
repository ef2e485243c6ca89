// Package definition models the data-driven protocol description of one BLE
// device type: its service and characteristic identifiers and the table
// mapping protocol hex codes to semantic inputs (buttons and encoders).
//
// Definitions are loaded once at startup, migrated eagerly, and immutable
// afterwards. They outlive the devices bound to them.
package definition

import "strings"

// InputType classifies a semantic input on a device.
type InputType string

const (
	InputButton  InputType = "Button"
	InputEncoder InputType = "Encoder"
)

// EventType is the direction of a decoded input event.
type EventType int

const (
	EventUnknown EventType = iota
	EventPress
	EventRelease
	EventIncrement
	EventDecrement
)

func (e EventType) String() string {
	switch e {
	case EventPress:
		return "press"
	case EventRelease:
		return "release"
	case EventIncrement:
		return "increment"
	case EventDecrement:
		return "decrement"
	default:
		return "unknown"
	}
}

// InputDefinition describes one input and the hex codes the device emits for
// it. Buttons populate Press/Release, encoders populate Increment/Decrement.
// Label doubles as the cross-reference key into the host app's input-mapping
// configuration.
type InputDefinition struct {
	Type      InputType `json:"type"`
	Label     string    `json:"label"`
	Press     string    `json:"press,omitempty"`
	Release   string    `json:"release,omitempty"`
	Increment string    `json:"increment,omitempty"`
	Decrement string    `json:"decrement,omitempty"`
}

// codes returns the directional hex codes matching the input's type.
func (in *InputDefinition) codes() []string {
	switch in.Type {
	case InputButton:
		return []string{in.Press, in.Release}
	case InputEncoder:
		return []string{in.Increment, in.Decrement}
	default:
		return nil
	}
}

// OutputDefinition describes a writable output on a device. Outputs are
// modeled for completeness but nothing writes to them yet.
type OutputDefinition struct {
	Label string `json:"label"`
	Code  string `json:"code,omitempty"`
}

// DeviceDefinition describes one device type. Name is the unique key.
// ServiceUUID and CharacteristicUUID accept short 16-bit or full 128-bit hex
// forms (see ParseUUID).
type DeviceDefinition struct {
	SchemaVersion      int                `json:"schema_version"`
	Name               string             `json:"name"`
	ServiceUUID        string             `json:"service_uuid"`
	CharacteristicUUID string             `json:"characteristic_uuid"`
	Inputs             []InputDefinition  `json:"inputs"`
	Outputs            []OutputDefinition `json:"outputs,omitempty"`

	// byHexCode is built by Migrate and immutable afterwards.
	byHexCode map[string]*InputDefinition
}

// NormalizeHexCode strips an optional 0x prefix and uppercases a hex code so
// lookups are case-insensitive.
func NormalizeHexCode(code string) string {
	code = strings.TrimPrefix(code, "0x")
	code = strings.TrimPrefix(code, "0X")
	return strings.ToUpper(code)
}

// FindInputByHexCode returns the input owning the given hex code, or nil if
// no input matches. Exact match only, no prefix matching. The definition must
// have been migrated.
func (d *DeviceDefinition) FindInputByHexCode(code string) *InputDefinition {
	return d.byHexCode[NormalizeHexCode(code)]
}

// EventTypeForHexCode resolves the hex code to an input and re-checks which
// directional field it matches. The double-check guards against a corrupted
// lookup table: a code that resolves to an input but matches none of its
// directional fields yields EventUnknown.
func (d *DeviceDefinition) EventTypeForHexCode(code string) EventType {
	in := d.FindInputByHexCode(code)
	if in == nil {
		return EventUnknown
	}
	c := NormalizeHexCode(code)
	switch {
	case in.Type == InputButton && in.Press == c:
		return EventPress
	case in.Type == InputButton && in.Release == c:
		return EventRelease
	case in.Type == InputEncoder && in.Increment == c:
		return EventIncrement
	case in.Type == InputEncoder && in.Decrement == c:
		return EventDecrement
	default:
		return EventUnknown
	}
}
