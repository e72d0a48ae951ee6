package base

import (
	"github.com/sirupsen/logrus"
)

var Logger = logrus.New()

const (
	TimestampFormat = "2006-01-02T15:04:05.000000Z08:00"
)

// SetupLogger applies the LOG section of config to the shared logger.
func SetupLogger(cfg *LOG) error {
	Logger.SetReportCaller(true)

	switch cfg.Format {
	case "json":
		Logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: TimestampFormat,
		})
	case "text":
		fallthrough
	default:
		Logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: TimestampFormat,
		})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	Logger.SetLevel(level)

	return nil
}
