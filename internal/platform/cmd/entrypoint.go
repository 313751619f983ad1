// Package cmd holds the startup plumbing shared by service commands: env then
// flag configuration, and a telemetry-wrapped run loop.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/louisbranch/docwatch/internal/platform/config"
	"github.com/louisbranch/docwatch/internal/platform/logging"
	"github.com/louisbranch/docwatch/internal/platform/otel"
	"github.com/louisbranch/docwatch/internal/platform/timeouts"
)

// ServiceReminders names the reminder runtime in telemetry.
const ServiceReminders = "reminders"

// ParseConfig fills cfg from DOCWATCH_* variables and their defaults. Flags
// registered afterwards use the loaded values as their defaults, so flags win.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// RunWithTelemetry installs the tracer provider for service, runs run, and
// flushes pending spans before returning run's error.
func RunWithTelemetry(ctx context.Context, service string, log logrus.FieldLogger, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return fmt.Errorf("service name is required")
	}
	if run == nil {
		return fmt.Errorf("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = logging.Discard()
	}
	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Shutdown)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.WithError(err).WithField("service", service).Warn("flush traces")
		}
	}()
	return run(ctx)
}
