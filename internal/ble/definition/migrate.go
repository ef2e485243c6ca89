package definition

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrUnknownSchema indicates a definition carries a schema shape this version
// does not recognize. The definition is rejected; others keep loading.
var ErrUnknownSchema = errors.New("definition: unknown schema")

// currentSchemaVersion is the version Migrate upgrades definitions to.
const currentSchemaVersion = 2

// Migrate upgrades a freshly deserialized definition to the current schema,
// normalizes all hex codes, and builds the hex-code lookup table. It must be
// called exactly once before the definition is handed to any consumer, and is
// idempotent: migrating an already-migrated definition rebuilds the same
// table.
//
// Version 1 files predate the explicit input type; it is inferred from which
// directional codes are populated. When two inputs claim the same hex code
// the first one wins and the conflict is logged.
func (d *DeviceDefinition) Migrate() error {
	switch d.SchemaVersion {
	case 0, 1:
		for i := range d.Inputs {
			in := &d.Inputs[i]
			if in.Type != "" {
				continue
			}
			switch {
			case in.Press != "" || in.Release != "":
				in.Type = InputButton
			case in.Increment != "" || in.Decrement != "":
				in.Type = InputEncoder
			default:
				return fmt.Errorf("%w: input %q in %q has no type and no directional codes", ErrUnknownSchema, in.Label, d.Name)
			}
		}
		d.SchemaVersion = currentSchemaVersion
	case currentSchemaVersion:
	default:
		return fmt.Errorf("%w: version %d in %q", ErrUnknownSchema, d.SchemaVersion, d.Name)
	}

	for i := range d.Inputs {
		in := &d.Inputs[i]
		switch in.Type {
		case InputButton, InputEncoder:
		default:
			return fmt.Errorf("%w: input %q in %q has type %q", ErrUnknownSchema, in.Label, d.Name, in.Type)
		}
		in.Press = NormalizeHexCode(in.Press)
		in.Release = NormalizeHexCode(in.Release)
		in.Increment = NormalizeHexCode(in.Increment)
		in.Decrement = NormalizeHexCode(in.Decrement)
	}

	table := make(map[string]*InputDefinition, len(d.Inputs)*2)
	for i := range d.Inputs {
		in := &d.Inputs[i]
		for _, code := range in.codes() {
			if code == "" {
				continue
			}
			if prev, ok := table[code]; ok {
				slog.Warn("duplicate hex code in definition, keeping first",
					"definition", d.Name, "code", code, "kept", prev.Label, "ignored", in.Label)
				continue
			}
			table[code] = in
		}
	}
	d.byHexCode = table
	return nil
}
