package vision

import (
	"testing"
)

func TestRelaxNonFinite(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no literals", `{"embedding":[1,2]}`, `{"embedding":[1,2]}`},
		{"bare literals", `[NaN,Infinity,-Infinity]`, `["NaN","Infinity","-Infinity"]`},
		{"inside strings untouched", `{"model":"NaN-Infinity","e":[NaN]}`, `{"model":"NaN-Infinity","e":["NaN"]}`},
		{"escaped quote in string", `{"m":"a\"NaN","e":[NaN]}`, `{"m":"a\"NaN","e":["NaN"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(relaxNonFinite([]byte(tt.in))); got != tt.want {
				t.Errorf("relaxNonFinite(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestJSONFloat_RejectsUnknownString(t *testing.T) {
	var f jsonFloat
	if err := f.UnmarshalJSON([]byte(`"nope"`)); err == nil {
		t.Error("expected error for unknown literal")
	}
	if err := f.UnmarshalJSON([]byte(`1e300`)); err != nil || !isInf32(float32(f)) {
		t.Errorf("expected overflow to +Inf, got %v, %v", f, err)
	}
}

func isInf32(f float32) bool {
	return f > 3.4e38 || f < -3.4e38
}
