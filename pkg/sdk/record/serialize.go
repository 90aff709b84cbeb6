package record

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotSerializable is returned when structured custom data or log context
// cannot be encoded as JSON.
var ErrNotSerializable = errors.New("value is not serializable")

// Serialize turns caller-supplied structured data into its wire string.
// Strings, byte slices and json.RawMessage pass through untouched so an
// already-encoded value is never encoded twice. nil yields "".
func Serialize(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case *string:
		if val == nil {
			return "", nil
		}
		return *val, nil
	case json.RawMessage:
		return string(val), nil
	case []byte:
		return string(val), nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	return string(b), nil
}
