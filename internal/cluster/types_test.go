package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// TestHandlerRegistryLookup tests registration and closed dispatch
func TestHandlerRegistryLookup(t *testing.T) {
	registry := NewHandlerRegistry()

	echo := func(ctx context.Context, task Task) (json.RawMessage, error) {
		return task.Payload, nil
	}
	registry.Register("echo", echo)

	// Registered kind resolves
	h, err := registry.Lookup("echo")
	if err != nil {
		t.Fatalf("Lookup failed for registered kind: %v", err)
	}
	out, err := h(context.Background(), Task{ID: "t1", Kind: "echo", Payload: json.RawMessage(`{"x":1}`)})
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if string(out) != `{"x":1}` {
		t.Errorf("Expected echoed payload, got %s", out)
	}

	// Unknown kind is a closed-set miss, not a fallback
	if _, err := registry.Lookup("transcode"); !errors.Is(err, ErrNoHandler) {
		t.Errorf("Expected ErrNoHandler for unknown kind, got %v", err)
	}
}

// TestHandlerRegistryReplace tests that re-registration replaces the handler
func TestHandlerRegistryReplace(t *testing.T) {
	registry := NewHandlerRegistry()

	registry.Register("work", func(ctx context.Context, task Task) (json.RawMessage, error) {
		return json.RawMessage(`"first"`), nil
	})
	registry.Register("work", func(ctx context.Context, task Task) (json.RawMessage, error) {
		return json.RawMessage(`"second"`), nil
	})

	h, err := registry.Lookup("work")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	out, _ := h(context.Background(), Task{Kind: "work"})
	if string(out) != `"second"` {
		t.Errorf("Expected replacement handler to win, got %s", out)
	}
}

// TestHandlerRegistryKinds tests that Kinds returns a sorted snapshot
func TestHandlerRegistryKinds(t *testing.T) {
	registry := NewHandlerRegistry()
	noop := func(ctx context.Context, task Task) (json.RawMessage, error) { return nil, nil }

	registry.Register("sleep", noop)
	registry.Register("echo", noop)
	registry.Register("resize", noop)

	kinds := registry.Kinds()
	if len(kinds) != 3 {
		t.Fatalf("Expected 3 kinds, got %d", len(kinds))
	}
	want := []TaskKind{"echo", "resize", "sleep"}
	for i, k := range want {
		if kinds[i] != k {
			t.Errorf("Expected kinds[%d]=%s, got %s", i, k, kinds[i])
		}
	}
}

// TestTaskResultError tests that failed results carry the error string
func TestTaskResultError(t *testing.T) {
	res := TaskResult{
		TaskID: "t9",
		Status: StatusFailed,
		NodeID: "node-1",
		Error:  "handler panic: boom",
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Failed to marshal TaskResult: %v", err)
	}

	var jsonMap map[string]interface{}
	if err := json.Unmarshal(data, &jsonMap); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	if jsonMap["status"] != "failed" {
		t.Errorf("Expected status 'failed', got %v", jsonMap["status"])
	}
	if jsonMap["error"] != "handler panic: boom" {
		t.Errorf("Expected error string preserved, got %v", jsonMap["error"])
	}

	// Successful results omit the error field entirely
	data, _ = json.Marshal(TaskResult{TaskID: "t10", Status: StatusProcessed})
	jsonMap = map[string]interface{}{}
	if err := json.Unmarshal(data, &jsonMap); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	if _, ok := jsonMap["error"]; ok {
		t.Error("Expected error field omitted on success")
	}
}
