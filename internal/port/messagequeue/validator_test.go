package messagequeue

import (
	"strings"
	"testing"
)

func TestValidateValidSessionStatus(t *testing.T) {
	data := []byte(`{"sessionId":"s1","issueKey":"PROJ-1","status":"processing","progressMessage":"working"}`)
	if err := Validate(SubjectSessionStatus, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateValidSessionMessage(t *testing.T) {
	data := []byte(`{"sessionId":"s1","messageId":"m1","seq":3,"role":"agent","actions":["setRefinementDoc"]}`)
	if err := Validate(SubjectSessionMessage, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateValidIngestProgress(t *testing.T) {
	data := []byte(`{"taskId":"t1","targetStoreId":"default","status":"running","progress":0.5,"processedItems":1,"totalItems":2}`)
	if err := Validate(SubjectIngestProgress, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateUnknownSubject(t *testing.T) {
	// Unknown subjects should pass (future-proof).
	data := []byte(`{"foo":"bar"}`)
	if err := Validate("unknown.subject", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateInvalidJSON(t *testing.T) {
	data := []byte(`{not valid json`)
	err := Validate(SubjectSessionStatus, data)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Fatalf("expected 'invalid JSON' in error, got: %v", err)
	}
}

func TestValidateInvalidSchema(t *testing.T) {
	// Valid JSON but the wrong shape entirely.
	data := []byte(`"just a string"`)
	err := Validate(SubjectSessionStatus, data)
	if err == nil {
		t.Fatal("expected schema validation error")
	}
	if !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("expected 'schema validation failed' in error, got: %v", err)
	}
}

func TestValidateEmptyJSON(t *testing.T) {
	// Empty object is valid JSON and valid for all schemas (all fields are zero-value).
	data := []byte(`{}`)
	if err := Validate(SubjectSessionStatus, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
