package testlog

import (
	"testing"

	"github.com/rs/zerolog"
)

// New returns a logger that writes through t.Log so component output shows
// up attached to the failing test.
func New(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}
