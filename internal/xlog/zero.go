package xlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bryk.io/pubsub/metadata"
)

const (
	colorRed      = 31
	colorGreen    = 32
	colorYellow   = 33
	colorDarkGray = 90
	colorBold     = 1
)

// ZeroOptions adjusts the behavior of a logger instance backed by zerolog.
type ZeroOptions struct {
	// PrettyPrint switches from structured JSON output to a colorized
	// textual representation, useful when running pubsubd on a terminal.
	PrettyPrint bool

	// ErrorField is the field name used to display error messages. Defaults
	// to "error".
	ErrorField string

	// Sink is the destination for all produced messages. Defaults to
	// os.Stderr.
	Sink io.Writer
}

// WithZero returns a Logger backed by the zerolog library.
func WithZero(options ZeroOptions) Logger {
	if options.Sink == nil {
		options.Sink = os.Stderr
	}
	if options.ErrorField == "" {
		options.ErrorField = "error"
	}
	zerolog.ErrorFieldName = options.ErrorField
	handler := zerolog.New(options.Sink).With().Timestamp().Logger()
	if options.PrettyPrint {
		handler = handler.Output(zeroConsoleWriter(options.Sink))
	}
	return &zeroHandler{log: handler}
}

type zeroHandler struct {
	mu     sync.Mutex
	log    zerolog.Logger
	lvl    Level
	fields *metadata.MD
}

func (zh *zeroHandler) SetLevel(lvl Level) {
	zh.mu.Lock()
	zh.lvl = lvl
	zh.mu.Unlock()
}

func (zh *zeroHandler) Sub(tags Fields) Logger {
	zh.mu.Lock()
	lvl := zh.lvl
	zh.mu.Unlock()
	return &zeroHandler{
		log: zh.log.With().Fields(tags).Logger(),
		lvl: lvl,
	}
}

func (zh *zeroHandler) WithFields(f Fields) Logger {
	md := metadata.FromMap(f)
	zh.mu.Lock()
	zh.fields = &md
	zh.mu.Unlock()
	return zh
}

func (zh *zeroHandler) WithField(key string, value any) Logger {
	zh.mu.Lock()
	if zh.fields == nil {
		f := metadata.New()
		zh.fields = &f
	}
	zh.mu.Unlock()
	zh.fields.Set(key, value)
	return zh
}

func (zh *zeroHandler) Debug(args ...any) {
	if zh.lvl > Debug {
		return
	}
	zh.setFields(zh.log.Debug()).Msg(fmt.Sprint(sanitize(args...)...))
}

func (zh *zeroHandler) Debugf(format string, args ...any) {
	if zh.lvl > Debug {
		return
	}
	zh.setFields(zh.log.Debug()).Msgf(format, sanitize(args...)...)
}

func (zh *zeroHandler) Info(args ...any) {
	if zh.lvl > Info {
		return
	}
	zh.setFields(zh.log.Info()).Msg(fmt.Sprint(sanitize(args...)...))
}

func (zh *zeroHandler) Infof(format string, args ...any) {
	if zh.lvl > Info {
		return
	}
	zh.setFields(zh.log.Info()).Msgf(format, sanitize(args...)...)
}

func (zh *zeroHandler) Warning(args ...any) {
	if zh.lvl > Warning {
		return
	}
	zh.setFields(zh.log.Warn()).Msg(fmt.Sprint(sanitize(args...)...))
}

func (zh *zeroHandler) Warningf(format string, args ...any) {
	if zh.lvl > Warning {
		return
	}
	zh.setFields(zh.log.Warn()).Msgf(format, sanitize(args...)...)
}

func (zh *zeroHandler) Error(args ...any) {
	if zh.lvl > Error {
		return
	}
	zh.setFields(zh.log.Error()).Msg(fmt.Sprint(sanitize(args...)...))
}

func (zh *zeroHandler) Errorf(format string, args ...any) {
	if zh.lvl > Error {
		return
	}
	zh.setFields(zh.log.Error()).Msgf(format, sanitize(args...)...)
}

func (zh *zeroHandler) Panic(args ...any) {
	if zh.lvl > Panic {
		return
	}
	zh.setFields(zh.log.Panic()).Msg(fmt.Sprint(sanitize(args...)...))
}

func (zh *zeroHandler) Panicf(format string, args ...any) {
	if zh.lvl > Panic {
		return
	}
	zh.setFields(zh.log.Panic()).Msgf(format, sanitize(args...)...)
}

func (zh *zeroHandler) Fatal(args ...any) {
	if zh.lvl > Fatal {
		return
	}
	zh.setFields(zh.log.Fatal()).Msg(fmt.Sprint(sanitize(args...)...))
}

func (zh *zeroHandler) Fatalf(format string, args ...any) {
	if zh.lvl > Fatal {
		return
	}
	zh.setFields(zh.log.Fatal()).Msgf(format, sanitize(args...)...)
}

func (zh *zeroHandler) Print(level Level, args ...any) {
	lPrint(zh, level, sanitize(args...)...)
}

func (zh *zeroHandler) Printf(level Level, format string, args ...any) {
	lPrintf(zh, level, format, sanitize(args...)...)
}

func (zh *zeroHandler) setFields(ev *zerolog.Event) *zerolog.Event {
	zh.mu.Lock()
	if zh.fields != nil {
		ev.Fields(zh.fields.Values())
		zh.fields.Clear()
	}
	zh.mu.Unlock()
	return ev
}

func colorize(s any, c int) string {
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

func zeroConsoleWriter(sink io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        sink,
		TimeFormat: time.RFC3339,
		FormatFieldName: func(i any) string {
			return colorize(fmt.Sprintf("%s=", i), colorDarkGray)
		},
		FormatErrFieldName: func(i any) string {
			return colorize(fmt.Sprintf("%s=", i), colorRed)
		},
		FormatLevel: func(i any) string {
			ll, ok := i.(string)
			if !ok {
				if i == nil {
					return colorize("???", colorBold)
				}
				return colorize(strings.ToUpper(fmt.Sprintf("%s", i)), colorBold)
			}
			switch ll {
			case "debug":
				return colorize("DBG", colorDarkGray)
			case "info":
				return colorize("INF", colorGreen)
			case "warn":
				return colorize("WRN", colorYellow)
			case "error":
				return colorize(colorize("ERR", colorRed), colorBold)
			case "fatal":
				return colorize(colorize("FTL", colorRed), colorBold)
			case "panic":
				return colorize(colorize("PNC", colorRed), colorBold)
			default:
				return colorize("???", colorBold)
			}
		},
	}
}
