package config

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// NewLogger builds the program logger. Unknown levels fall back to info.
func NewLogger(name string, ls LogSection, w io.Writer) hclog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := hclog.LevelFromString(ls.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		Output:     w,
		JSONFormat: strings.EqualFold(ls.Format, "json"),
	})
}
