package jobs

import (
	"errors"
	"testing"
	"time"
)

func TestNewStateStartsProcessing(t *testing.T) {
	now := time.Unix(100, 0)
	s := NewState("job-1", now)

	if s.ID != "job-1" || s.Status != StatusProcessing {
		t.Fatalf("unexpected job identity: %+v", s)
	}
	if !s.CreatedAt.Equal(now) || !s.UpdatedAt.Equal(now) {
		t.Fatalf("timestamps not set: %+v", s)
	}
	if s.Terminal() {
		t.Fatal("new job reported terminal")
	}
}

func TestApplyProgressIsMonotonic(t *testing.T) {
	s := NewState("job-2", time.Unix(0, 0))
	hi, lo := 40.0, 10.0

	ApplyProgress(&s, "Processing A", &hi, time.Unix(1, 0))
	ApplyProgress(&s, "late", &lo, time.Unix(2, 0))
	if s.Progress != 40 {
		t.Fatalf("progress moved backwards: %v", s.Progress)
	}
	if s.Message != "late" {
		t.Fatalf("message not updated: %q", s.Message)
	}

	ApplyProgress(&s, "note", nil, time.Unix(3, 0))
	if s.Progress != 40 || s.Message != "note" {
		t.Fatalf("message-only update changed progress: %+v", s)
	}
}

func TestMarkFailedSetsStatusAndError(t *testing.T) {
	s := NewState("job-3", time.Unix(0, 0))
	MarkFailed(&s, errors.New("boom"), time.Unix(5, 0))

	if s.Status != StatusError {
		t.Fatalf("job status not error: %v", s.Status)
	}
	if s.Message != "boom" {
		t.Fatalf("job error not recorded: %q", s.Message)
	}

	pct := 90.0
	ApplyProgress(&s, "straggler", &pct, time.Unix(6, 0))
	if s.Message != "boom" || s.Progress == 90 {
		t.Fatalf("terminal state changed: %+v", s)
	}
}

func TestMarkFailedKeepsMessageWhenNil(t *testing.T) {
	s := NewState("job-4", time.Unix(0, 0))
	s.Message = "Parsing orders"
	MarkFailed(&s, nil, time.Unix(1, 0))

	if s.Status != StatusError {
		t.Fatalf("job status not error: %v", s.Status)
	}
	if s.Message != "Parsing orders" {
		t.Fatalf("expected message kept, got %q", s.Message)
	}
}

func TestMarkDone(t *testing.T) {
	s := NewState("job-5", time.Unix(0, 0))
	MarkDone(&s, "/tmp/x.zip", time.Unix(1, 0))
	if s.Status != StatusDone || s.Progress != 100 || s.ArchivePath != "/tmp/x.zip" {
		t.Fatalf("unexpected done state: %+v", s)
	}
}
