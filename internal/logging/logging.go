// Package logging configures the logrus logger shared by every fastcap
// subcommand.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a *logrus.Logger at the given level, writing to path if
// non-empty or to stdout otherwise. Rotation follows lumberjack's
// size-based defaults once a path is given.
func New(level, path string) (*logrus.Logger, error) {
	off, lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var out io.Writer
	switch {
	case off:
		out = io.Discard
	case path != "":
		out = &lumberjack.Logger{Filename: path}
	default:
		out = os.Stdout
	}
	logger.SetOutput(out)

	return logger, nil
}

// parseLevel maps the spec's fixed level vocabulary onto logrus levels.
// "off" silences the logger entirely via its output rather than its level,
// since logrus.Level has no value quieter than panic.
func parseLevel(level string) (off bool, lvl logrus.Level, err error) {
	switch strings.ToLower(level) {
	case "trace":
		return false, logrus.TraceLevel, nil
	case "debug":
		return false, logrus.DebugLevel, nil
	case "info", "":
		return false, logrus.InfoLevel, nil
	case "warning", "warn":
		return false, logrus.WarnLevel, nil
	case "error":
		return false, logrus.ErrorLevel, nil
	case "off":
		return true, logrus.PanicLevel, nil
	default:
		return false, 0, fmt.Errorf("logging: unknown level %q", level)
	}
}
