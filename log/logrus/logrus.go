package logrus

import (
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/unkn0wn-root/surgecache"
)

var _ surgecache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

func (l LogrusLogger) Debug(msg string, f surgecache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f surgecache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Info(msg)
}
func (l LogrusLogger) Warn(msg string, f surgecache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Warn(msg)
}
func (l LogrusLogger) Error(msg string, f surgecache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}

// NewRotatingFile builds a logrus-backed Logger writing to path with size
// based rotation. maxSizeMB and maxBackups <= 0 fall back to 100MB / 10 files.
func NewRotatingFile(path string, maxSizeMB, maxBackups int, level logrus.Level) LogrusLogger {
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	if maxBackups <= 0 {
		maxBackups = 10
	}
	l := logrus.New()
	l.SetLevel(level)
	l.SetOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	})
	return LogrusLogger{E: logrus.NewEntry(l)}
}
