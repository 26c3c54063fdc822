package app

import (
	"errors"
	"testing"
	"time"
)

func TestNewOperation(t *testing.T) {
	start := time.Date(2024, 1, 15, 11, 30, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name      string
		operation string
	}{
		{name: "listing", operation: "ListImages"},
		{name: "empty name", operation: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.operation, start)

			if op.Name != tt.operation {
				t.Errorf("Name = %q, want %q", op.Name, tt.operation)
			}
			if op.ID != "20240115T103000Z" {
				t.Errorf("ID = %q, want %q", op.ID, "20240115T103000Z")
			}
			if op.Status != StatusSuccess {
				t.Errorf("Status = %q, want %q", op.Status, StatusSuccess)
			}
			if op.Failed() {
				t.Error("Failed() = true, want false")
			}
		})
	}
}

func TestOperation_Fail(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error is ignored", err: nil, want: false},
		{name: "error marks failure", err: errors.New("boom"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("Scan", time.Now())
			op.Fail(tt.err)
			if got := op.Failed(); got != tt.want {
				t.Errorf("Failed() = %v, want %v", got, tt.want)
			}
			if op.Err != tt.err {
				t.Errorf("Err = %v, want %v", op.Err, tt.err)
			}
		})
	}
}

func TestOperation_Duration(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	op := NewOperation("Migrate", start)

	got := op.Duration(start.Add(1500*time.Millisecond + 300*time.Microsecond))
	if got != 1500*time.Millisecond {
		t.Errorf("Duration() = %v, want 1.5s", got)
	}
}
