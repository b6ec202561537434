// Package testlog quiets global logging for tests.
package testlog

import (
	"testing"

	"github.com/rs/zerolog"
)

// Quiet silences global zerolog output for the duration of the test.
func Quiet(t *testing.T) {
	t.Helper()
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.Disabled)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
}
