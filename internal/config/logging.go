package config

import (
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/domain"
)

// NewLogger builds a logrus logger from the logging section. Unknown levels fall back to info;
// any format other than "text" is JSON.
func NewLogger(cfg domain.LoggingConfig, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.ToLower(cfg.Format) == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}
	return logger
}

// Logger builds the lite configuration's logger.
func (c *LiteConfig) Logger(out io.Writer) *logrus.Logger {
	return NewLogger(domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat}, out)
}
