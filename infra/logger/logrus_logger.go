package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// LogrusLogger implements Logger on top of sirupsen/logrus.
type LogrusLogger struct {
	entry *logrus.Entry
}

var logrusLevels = map[level]logrus.Level{
	debugLevel: logrus.DebugLevel,
	infoLevel:  logrus.InfoLevel,
	warnLevel:  logrus.WarnLevel,
	errorLevel: logrus.ErrorLevel,
}

func newLogrusLogger(component, format string, lvl level, w io.Writer) *LogrusLogger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrusLevels[lvl])
	if format == "console" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return &LogrusLogger{entry: l.WithField("component", component)}
}

func (l *LogrusLogger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }

func (l *LogrusLogger) Debugw(msg string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *LogrusLogger) Infof(format string, args ...any) { l.entry.Infof(format, args...) }

func (l *LogrusLogger) Infow(msg string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l *LogrusLogger) Warnf(format string, args ...any) { l.entry.Warnf(format, args...) }

func (l *LogrusLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
