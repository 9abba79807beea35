package logging

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Formats accepted by --log-format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrInvalidFormat is returned by Configure for an unknown format.
var ErrInvalidFormat = errors.New(`invalid --log-format argument, must be either "json" or "text"`)

// Options drives Configure.
type Options struct {
	Level  string
	Format string
	Debug  bool
	Colors bool
}

// Configure applies formatter and level to logger.
// An unparsable level falls back to info; --debug always wins.
func Configure(logger *logrus.Logger, opts Options) error {
	switch opts.Format {
	case FormatText, "":
		logger.SetFormatter(&logrus.TextFormatter{
			DisableLevelTruncation: true,
			ForceColors:            opts.Colors,
			DisableColors:          !opts.Colors,
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339,
		})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		return ErrInvalidFormat
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if opts.Debug {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	logger.SetReportCaller(opts.Debug)
	return nil
}
