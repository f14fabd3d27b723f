package production_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/andrescamacho/farmtown-go/internal/domain/production"
)

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"zero", 0, "00:00"},
		{"negative clamps to zero", -5 * time.Second, "00:00"},
		{"seconds only", 42 * time.Second, "00:42"},
		{"minutes and seconds", 2*time.Minute + 3*time.Second, "02:03"},
		{"just under an hour", 59*time.Minute + 59*time.Second, "59:59"},
		{"exactly an hour", time.Hour, "1:00:00"},
		{"hours", 3*time.Hour + 7*time.Minute + 9*time.Second, "3:07:09"},
		{"sub-second rounds", 1500 * time.Millisecond, "00:02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, production.FormatRemaining(tt.duration))
		})
	}
}
