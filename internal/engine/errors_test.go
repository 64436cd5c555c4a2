package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil",
			err:  nil,
			want: false,
		},
		{
			name: "engine not found",
			err:  ErrEngineNotFound,
			want: true,
		},
		{
			name: "wrapped engine not found",
			err:  fmt.Errorf("initialize: %w", ErrEngineNotFound),
			want: true,
		},
		{
			name: "process start error",
			err:  &ProcessStartError{Err: errors.New("permission denied")},
			want: true,
		},
		{
			name: "wrapped process start error",
			err:  fmt.Errorf("initialize: %w", &ProcessStartError{Err: errors.New("exec format error")}),
			want: true,
		},
		{
			name: "ordinary error",
			err:  errors.New("timeout"),
			want: false,
		},
		{
			name: "unmanaged",
			err:  ErrUnmanaged,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestProcessStartErrorUnwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := &ProcessStartError{Err: cause}

	if !errors.Is(err, cause) {
		t.Fatal("ProcessStartError should unwrap to its cause")
	}

	var target *ProcessStartError
	if !errors.As(fmt.Errorf("outer: %w", err), &target) {
		t.Fatal("errors.As should find ProcessStartError through wrapping")
	}
	if target.Err != cause {
		t.Fatalf("unexpected cause: %v", target.Err)
	}
}
