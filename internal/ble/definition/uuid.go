package definition

import (
	"fmt"
	"strconv"
	"strings"

	"tinygo.org/x/bluetooth"
)

// ParseUUID parses a service or characteristic identifier from a definition
// file. An optional 0x prefix is accepted. A hex string of up to 8 digits is
// treated as a short UUID and expanded against the Bluetooth Base UUID
// (0000xxxx-0000-1000-8000-00805F9B34FB); anything longer is parsed as a full
// 128-bit UUID, with or without dashes.
func ParseUUID(s string) (bluetooth.UUID, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if h == "" {
		return bluetooth.UUID{}, fmt.Errorf("definition: empty UUID")
	}

	if len(h) <= 8 {
		v, err := strconv.ParseUint(h, 16, 32)
		if err != nil {
			return bluetooth.UUID{}, fmt.Errorf("definition: parse short UUID %q: %w", s, err)
		}
		return bluetooth.New32BitUUID(uint32(v)), nil
	}

	if len(h) == 32 && !strings.Contains(h, "-") {
		h = h[:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:]
	}
	u, err := bluetooth.ParseUUID(strings.ToLower(h))
	if err != nil {
		return bluetooth.UUID{}, fmt.Errorf("definition: parse UUID %q: %w", s, err)
	}
	return u, nil
}
