package rpc

import (
	"testing"
	"time"
)

type sample struct {
	ID      string     `json:"id"`
	Count   int        `json:"count"`
	Flag    bool       `json:"flag"`
	When    time.Time  `json:"when"`
	Maybe   *time.Time `json:"maybe,omitempty"`
	Missing string     `json:"missing,omitempty"`
}

func TestEncodeDecode(t *testing.T) {
	when := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	in := sample{ID: "x", Count: 3, Flag: true, When: when}
	s, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out sample
	if err := Decode(s, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.ID != "x" || out.Count != 3 || !out.Flag || !out.When.Equal(when) || out.Maybe != nil {
		t.Errorf("round trip = %+v", out)
	}
}

func TestEnvelopeAndField(t *testing.T) {
	s, err := Envelope(map[string]any{
		"filter": map[string]string{"email": "a@example.com"},
		"select": []string{"passwordHash"},
	})
	if err != nil {
		t.Fatalf("Envelope: %v", err)
	}
	var filter struct {
		Email string `json:"email"`
	}
	var sel []string
	if err := Field(s, "filter", &filter); err != nil {
		t.Fatalf("Field filter: %v", err)
	}
	if err := Field(s, "select", &sel); err != nil {
		t.Fatalf("Field select: %v", err)
	}
	if filter.Email != "a@example.com" || len(sel) != 1 || sel[0] != "passwordHash" {
		t.Errorf("filter=%+v select=%v", filter, sel)
	}
	var untouched = "keep"
	if err := Field(s, "absent", &untouched); err != nil || untouched != "keep" {
		t.Errorf("absent field changed value: %q %v", untouched, err)
	}
}

func TestEncode_RejectsNonObject(t *testing.T) {
	if _, err := Encode([]int{1, 2}); err == nil {
		t.Error("array should not encode to a Struct")
	}
}
