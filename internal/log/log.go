// Package log is a small leveled, keyed logging facade modeled on
// go-ethereum's own log package: call sites pass a message followed by
// alternating key/value pairs, e.g.
//
//	log.Info("submitted batch", "distributor", id, "ops", len(batch.Ops))
//
// The implementation is backed by zerolog rather than hand-rolled
// formatting.
package log

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var root zerolog.Logger

var levelColors = map[string]*color.Color{
	"trace": color.New(color.FgHiBlack),
	"debug": color.New(color.FgBlue),
	"info":  color.New(color.FgGreen),
	"warn":  color.New(color.FgYellow),
	"error": color.New(color.FgRed),
	"fatal": color.New(color.FgHiRed, color.Bold),
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	root = zerolog.New(consoleWriter(os.Stderr)).With().Timestamp().Logger()
}

func consoleWriter(w *os.File) io.Writer {
	if isatty.IsTerminal(w.Fd()) {
		cw := zerolog.ConsoleWriter{Out: colorable.NewColorable(w), TimeFormat: time.Kitchen}
		cw.FormatLevel = func(i interface{}) string {
			lvl, _ := i.(string)
			if c, ok := levelColors[lvl]; ok {
				return c.Sprintf("%-5s", lvl)
			}
			return fmt.Sprintf("%-5s", lvl)
		}
		return cw
	}
	return w
}

// SetOutputFile redirects logging to a rotating file sink in addition to
// the console writer; pass maxSizeMB<=0 to use lumberjack's default.
func SetOutputFile(path string, maxSizeMB, maxBackups, maxAgeDays int) {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	root = zerolog.New(zerolog.MultiLevelWriter(consoleWriter(os.Stderr), rotator)).With().Timestamp().Logger()
}

// SetLevel adjusts the minimum emitted level; accepts "trace", "debug",
// "info", "warn", "error", "crit".
func SetLevel(level string) {
	switch level {
	case "trace":
		root = root.Level(zerolog.TraceLevel)
	case "debug":
		root = root.Level(zerolog.DebugLevel)
	case "warn":
		root = root.Level(zerolog.WarnLevel)
	case "error":
		root = root.Level(zerolog.ErrorLevel)
	case "crit":
		root = root.Level(zerolog.FatalLevel)
	default:
		root = root.Level(zerolog.InfoLevel)
	}
}

func withFields(ev *zerolog.Event, keyvals ...interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, keyvals[i+1])
	}
	if len(keyvals)%2 == 1 {
		ev = ev.Interface("extra", keyvals[len(keyvals)-1])
	}
	return ev
}

// Trace logs at trace level, for per-item hot-path detail.
func Trace(msg string, keyvals ...interface{}) { withFields(root.Trace(), keyvals...).Msg(msg) }

// Debug logs at debug level.
func Debug(msg string, keyvals ...interface{}) { withFields(root.Debug(), keyvals...).Msg(msg) }

// Info logs at info level.
func Info(msg string, keyvals ...interface{}) { withFields(root.Info(), keyvals...).Msg(msg) }

// Warn logs at warn level.
func Warn(msg string, keyvals ...interface{}) { withFields(root.Warn(), keyvals...).Msg(msg) }

// Error logs at error level.
func Error(msg string, keyvals ...interface{}) { withFields(root.Error(), keyvals...).Msg(msg) }

// Crit logs at fatal level and terminates the process, matching geth's
// log.Crit semantics — reserved for startup failures the process cannot
// recover from.
func Crit(msg string, keyvals ...interface{}) { withFields(root.Fatal(), keyvals...).Msg(msg) }
