package app

import (
	"strings"

	"github.com/charlesng35/vocabquiz/pkg/logger"
)

// ConfigureLogging initialises the global logger from the server settings.
// The level defaults to info; the development environment switches to the
// console encoder.
func ConfigureLogging(server ServerConfig) error {
	level := strings.TrimSpace(server.LogLevel)
	if level == "" {
		level = "info"
	}
	return logger.Configure(logger.Options{
		Level:       level,
		Development: strings.EqualFold(strings.TrimSpace(server.Environment), "development"),
	})
}
