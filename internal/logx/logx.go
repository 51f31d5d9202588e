// Package logx provides the free-function, subject-first logging
// convention used throughout the core, mirroring rclone's
// fs.Debugf(subject, format, args...) / fs.Errorf(subject, format, args...)
// calling convention so every component logs the same way regardless of
// which struct the call site is a method of.
package logx

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Logger is the package-wide logrus instance. Callers embedding the core
// in a larger service may replace it (e.g. to redirect to their own
// logrus.Logger or attach hooks); it is not reset per Sync call.
var Logger = logrus.StandardLogger()

// WithRun returns a logrus.FieldLogger tagged with the run's correlation
// ID, used so concurrent workers inside one Sync call can be grepped
// together.
func WithRun(runID string) *logrus.Entry {
	return Logger.WithField("run", runID)
}

func subjectStr(subject any) string {
	if subject == nil {
		return "-"
	}
	if s, ok := subject.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", subject)
}

// Debugf logs at debug level about subject.
func Debugf(subject any, format string, args ...any) {
	Logger.WithField("subject", subjectStr(subject)).Debugf(format, args...)
}

// Infof logs at info level about subject.
func Infof(subject any, format string, args ...any) {
	Logger.WithField("subject", subjectStr(subject)).Infof(format, args...)
}

// Warnf logs at warn level about subject.
func Warnf(subject any, format string, args ...any) {
	Logger.WithField("subject", subjectStr(subject)).Warnf(format, args...)
}

// Errorf logs at error level about subject.
func Errorf(subject any, format string, args ...any) {
	Logger.WithField("subject", subjectStr(subject)).Errorf(format, args...)
}
