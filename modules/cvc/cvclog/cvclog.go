// Package cvclog wires logrus into Engine construction as an explicit
// dependency, never a package-level global, plus a step-timing helper
// that logs only when constructed with debug enabled. Grounded
// on modules/trace's logrus.Error call site and its Tracker type (step
// timing gated on a debug flag), carried as a constructor argument
// instead of package-level state so multiple Engine instances in the
// same process (tests, an embedding host) never share one logger.
package cvclog

import (
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a logrus.Logger preconfigured with cvc's field conventions.
// Callers needing JSON output (a proxy front-end) can swap the formatter
// after construction; the default is logrus's text formatter, matching
// the teacher's own CLI-facing default.
func New() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Tracker no-ops unless constructed with debug set, matching
// modules/trace's StepNext idiom; Engine sets it for cli mode.
type Tracker struct {
	log   *logrus.Logger
	debug bool
	last  time.Time
}

func NewTracker(log *logrus.Logger, debug bool) *Tracker {
	return &Tracker{log: log, debug: debug, last: time.Now()}
}

// StepNext logs, at Debug level, the wall-clock time elapsed since the
// previous StepNext (or Tracker construction) call.
func (t *Tracker) StepNext(format string, a ...any) {
	if !t.debug {
		return
	}
	now := time.Now()
	t.log.WithField("elapsed", now.Sub(t.last)).Debugf(format, a...)
	t.last = now
}
