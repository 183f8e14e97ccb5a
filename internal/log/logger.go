package log

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logrus logger configured from the logger section of the config.
// Unknown levels fall back to INFO, unknown formats to TEXT.
func NewLogger(level, format string, disableTimestamp bool) *logrus.Logger {
	var log = logrus.New()

	switch strings.ToUpper(format) {
	case "JSON":
		log.Formatter = &logrus.JSONFormatter{
			DisableTimestamp: disableTimestamp,
		}
	default:
		log.Formatter = &logrus.TextFormatter{
			DisableColors:    false,
			DisableTimestamp: disableTimestamp,
			FullTimestamp:    true,
		}
	}

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.Level = lvl
	log.Out = os.Stdout
	return log
}
