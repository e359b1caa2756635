package transform

import "testing"

func TestGobCodecRoundTrip(t *testing.T) {
	c := GobCodec{}

	cases := []any{"a string", int64(7), float64(3.5), true, []byte("raw")}
	for _, v := range cases {
		data, err := c.Encode(v)
		if err != nil {
			t.Fatalf("Encode(%v): %v", v, err)
		}
		got, err := c.Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if b, ok := v.([]byte); ok {
			gb, ok := got.([]byte)
			if !ok || string(gb) != string(b) {
				t.Fatalf("Decode() = %v, want %v", got, v)
			}
			continue
		}
		if got != v {
			t.Fatalf("Decode() = %v, want %v", got, v)
		}
	}
}
