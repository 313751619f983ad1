// Package logging builds the structured logger shared by runtime components.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Format names accepted by New.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config selects logger verbosity and encoding.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// New returns a logrus logger configured from cfg. An empty level means info
// and an empty format means JSON.
func New(cfg Config) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.Out = cfg.Output
	if logger.Out == nil {
		logger.Out = os.Stdout
	}

	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = logrus.InfoLevel.String()
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(parsed)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	case FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}
	return logger, nil
}

// Discard returns a logger that drops every entry. Useful for tests and for
// components constructed without a logger.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.Out = io.Discard
	return logger
}
