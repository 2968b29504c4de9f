package codec

import (
	"bytes"
	"testing"
)

type sample struct {
	Name  string            `cbor:"name"`
	Count int               `cbor:"count,omitempty"`
	Tags  map[string]string `cbor:"tags,omitempty"`
}

func TestMarshal_Deterministic(t *testing.T) {
	v := sample{Name: "a", Count: 3, Tags: map[string]string{"z": "1", "a": "2", "m": "3"}}

	first, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Marshal(v)
		if err != nil {
			t.Fatalf("Marshal() failed: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding is not deterministic")
		}
	}

	var decoded sample
	if err := Unmarshal(first, &decoded); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if decoded.Name != "a" || decoded.Count != 3 || decoded.Tags["m"] != "3" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestUnmarshal_DefaultMapType(t *testing.T) {
	data, err := Marshal(map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	var out any
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", out)
	}
	if m["k"] != "v" {
		t.Errorf("m[k] = %v", m["k"])
	}
}
