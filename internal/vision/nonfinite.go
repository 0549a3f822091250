package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Literals Python's json module emits for non-finite floats. Order matters:
// "-Infinity" must be tried before "Infinity".
var nonFiniteLiterals = [][]byte{
	[]byte("-Infinity"),
	[]byte("Infinity"),
	[]byte("NaN"),
}

// relaxNonFinite quotes bare NaN/Infinity literals outside of strings so that
// encoding/json accepts the document. Other bytes are copied unchanged.
func relaxNonFinite(body []byte) []byte {
	found := false
	for _, lit := range nonFiniteLiterals {
		if bytes.Contains(body, lit) {
			found = true
			break
		}
	}
	if !found {
		return body
	}

	out := make([]byte, 0, len(body)+16)
	inString, escaped := false, false
	for i := 0; i < len(body); i++ {
		c := body[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}

		matched := false
		for _, lit := range nonFiniteLiterals {
			if bytes.HasPrefix(body[i:], lit) {
				out = append(out, '"')
				out = append(out, lit...)
				out = append(out, '"')
				i += len(lit) - 1
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, c)
		}
	}
	return out
}

// jsonFloat decodes a JSON number or one of the quoted non-finite literals.
type jsonFloat float32

func (f *jsonFloat) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		switch s {
		case "NaN":
			*f = jsonFloat(math.NaN())
		case "Infinity":
			*f = jsonFloat(math.Inf(1))
		case "-Infinity":
			*f = jsonFloat(math.Inf(-1))
		default:
			return fmt.Errorf("invalid embedding component %q", s)
		}
		return nil
	}

	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	// Values beyond float32 range become ±Inf.
	*f = jsonFloat(float32(v))
	return nil
}
