// Package log provides a logger interface so the rest of the codebase does
// not depend on a logging library directly.
package log

// Logger is the adapter interface every package in this module logs
// through. The only implementation is the logrus-backed one in logrus.go.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
