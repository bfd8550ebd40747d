// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalDeterministic(t *testing.T) {
	// Map key order in the source must not affect the encoding.
	first, err := Marshal(map[string]any{"zebra": 1, "apple": 2, "mango": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(map[string]any{"mango": 3, "apple": 2, "zebra": 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("deterministic encoding produced different bytes:\n%x\n%x", first, second)
	}
}

func TestRoundTripStruct(t *testing.T) {
	type record struct {
		ID    string  `cbor:"id"`
		Value float64 `cbor:"value"`
		Tags  []string `cbor:"tags,omitempty"`
	}

	original := record{ID: "dlg-17", Value: 21.5, Tags: []string{"heating", "urgent"}}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded record
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ID != original.ID || decoded.Value != original.Value {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{"id": "dlg-1", "future_field": true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded struct {
		ID string `cbor:"id"`
	}
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if decoded.ID != "dlg-1" {
		t.Fatalf("ID = %q, want dlg-1", decoded.ID)
	}
}

func TestDecodeAnyUsesStringKeyedMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"outer": map[string]any{"inner": 1}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if _, ok := outer["outer"].(map[string]any); !ok {
		t.Fatalf("nested type = %T, want map[string]any", outer["outer"])
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)

	for _, value := range []string{"one", "two", "three"} {
		if err := encoder.Encode(value); err != nil {
			t.Fatalf("Encode(%q): %v", value, err)
		}
	}

	decoder := NewDecoder(&buffer)
	for _, want := range []string{"one", "two", "three"} {
		var got string
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got != want {
			t.Fatalf("decoded %q, want %q", got, want)
		}
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]any{"ok": true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if notation == "" {
		t.Fatal("Diagnose returned empty notation")
	}
}
