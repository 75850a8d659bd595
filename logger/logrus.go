package logger

import "github.com/sirupsen/logrus"

// Logrus adapts a *logrus.Logger (or logrus.StandardLogger()) to Logger,
// grounded on fredb/logger/logrus.go.
type Logrus struct {
	L *logrus.Logger
}

// NewLogrus wraps l, or builds a sane default (text formatter, Info level)
// if l is nil.
func NewLogrus(l *logrus.Logger) Logrus {
	if l == nil {
		l = logrus.New()
		l.SetLevel(logrus.InfoLevel)
	}
	return Logrus{L: l}
}

func (a Logrus) Debugf(format string, args ...interface{}) { a.L.Debugf(format, args...) }
func (a Logrus) Infof(format string, args ...interface{})  { a.L.Infof(format, args...) }
func (a Logrus) Warnf(format string, args ...interface{})  { a.L.Warnf(format, args...) }
func (a Logrus) Errorf(format string, args ...interface{}) { a.L.Errorf(format, args...) }

var _ Logger = Logrus{}
