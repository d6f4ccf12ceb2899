package testing

import (
	"io"

	"github.com/charmbracelet/log"
)

// GetTestLogger returns a logger that discards all output, for use in tests.
func GetTestLogger() *log.Logger {
	return log.New(io.Discard)
}
