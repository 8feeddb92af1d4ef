package intercept

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestSerializeScalars(t *testing.T) {
	got := SerializeArgs([]interface{}{nil, "plain", 42, 3.5, true}, Limits{})

	want := []string{"null", "plain", "42", "3.5", "true"}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("arg %d: expected %q, got %q", i, w, got[i])
		}
	}
}

func TestSerializeError(t *testing.T) {
	got := SerializeArgs([]interface{}{errors.New("kaput")}, Limits{})[0]

	var parsed map[string]string
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("Expected JSON error object, got %q: %v", got, err)
	}
	if parsed["message"] != "kaput" {
		t.Errorf("Expected message kaput, got %q", parsed["message"])
	}
	if parsed["name"] == "" {
		t.Error("Expected error type name")
	}
}

type node struct {
	Name string
	Next *node
}

func TestSerializeCycle(t *testing.T) {
	a := &node{Name: "a"}
	a.Next = a

	got := SerializeArgs([]interface{}{a}, Limits{MaxDepth: 10})[0]
	if !strings.Contains(got, "[cycle]") {
		t.Errorf("Expected cycle marker, got %q", got)
	}
}

func TestSerializeDepthBound(t *testing.T) {
	deep := map[string]interface{}{
		"l1": map[string]interface{}{
			"l2": map[string]interface{}{
				"l3": map[string]interface{}{
					"l4": "too deep",
				},
			},
		},
	}

	got := SerializeArgs([]interface{}{deep}, Limits{MaxDepth: 2})[0]
	if !strings.Contains(got, "[max depth]") {
		t.Errorf("Expected depth marker, got %q", got)
	}
	if strings.Contains(got, "too deep") {
		t.Errorf("Expected deep value elided, got %q", got)
	}
}

func TestSerializeElementCap(t *testing.T) {
	big := make([]int, 25)

	got := SerializeArgs([]interface{}{big}, Limits{MaxElems: 10})[0]
	if !strings.Contains(got, "15 more elements") {
		t.Errorf("Expected element overflow marker, got %q", got)
	}
}

func TestSerializeStructExportedOnly(t *testing.T) {
	v := struct {
		Public string
		hidden string
	}{Public: "yes", hidden: "no"}

	got := SerializeArgs([]interface{}{v}, Limits{})[0]
	if !strings.Contains(got, "Public") {
		t.Errorf("Expected exported field, got %q", got)
	}
	if strings.Contains(got, "no") {
		t.Errorf("Expected unexported field skipped, got %q", got)
	}
}

func TestSerializeFunc(t *testing.T) {
	got := SerializeArgs([]interface{}{TestSerializeFunc}, Limits{})[0]
	if !strings.Contains(got, "[func ") {
		t.Errorf("Expected func marker, got %q", got)
	}
}
