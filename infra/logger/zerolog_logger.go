package logger

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

var zerologLevels = map[level]zerolog.Level{
	debugLevel: zerolog.DebugLevel,
	infoLevel:  zerolog.InfoLevel,
	warnLevel:  zerolog.WarnLevel,
	errorLevel: zerolog.ErrorLevel,
}

// NewZerologLogger creates a ZerologLogger with the current settings. All
// logs include the provided component field.
func NewZerologLogger(component string) Logger {
	cfg, w := settings()
	return newZerologLogger(component, cfg.Format, levels[strings.ToLower(cfg.Level)], w)
}

func newZerologLogger(component, format string, lvl level, w io.Writer) *ZerologLogger {
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	z := zerolog.New(w).Level(zerologLevels[lvl]).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Infow(msg string, fields map[string]any) {
	l.log.Info().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
