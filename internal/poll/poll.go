// Package poll repeatedly probes a state until it reaches a desired value.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yoanbernabeu/sshrun/internal/constants"
	"github.com/yoanbernabeu/sshrun/internal/logging"
)

var (
	// ErrTimeout is returned when the time budget ran out.
	ErrTimeout = errors.New("timed out waiting for state")
	// ErrRetrialsExhausted is returned when the probe budget ran out first.
	ErrRetrialsExhausted = errors.New("retrials exhausted waiting for state")
	// ErrUnexpectedState is returned when the probe reported a terminal failure state.
	ErrUnexpectedState = errors.New("reached unexpected state")
)

// Outcome is the terminal result of a polling loop.
type Outcome int

const (
	ReachedDesired Outcome = iota
	ReachedUnexpected
	RetrialsExhausted
	TimedOut
	ProbeFailed
)

func (o Outcome) String() string {
	switch o {
	case ReachedDesired:
		return "reached-desired-state"
	case ReachedUnexpected:
		return "reached-unexpected-state"
	case RetrialsExhausted:
		return "retrial-exhausted"
	case TimedOut:
		return "timed-out"
	case ProbeFailed:
		return "probe-error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Succeeded reports whether the desired state was reached.
func (o Outcome) Succeeded() bool {
	return o == ReachedDesired
}

// Probe returns the current state label.
type Probe func(ctx context.Context) (string, error)

// Result describes how a polling loop ended.
type Result struct {
	Outcome  Outcome
	State    string // last state returned by the probe
	Attempts int    // probe invocations
	Sleeps   int
	Elapsed  time.Duration
	LastErr  error // last probe error, if any
}

// Poller holds the polling parameters.
type Poller struct {
	desired      string
	unexpected   []string
	timeout      time.Duration
	period       time.Duration
	retrialCount int
	raiseOnError bool
	clock        Clock
	log          *logrus.Entry
}

// Option configures a Poller.
type Option func(*Poller)

// WithUnexpected sets the states that end polling with a failure.
// Empty labels are ignored.
func WithUnexpected(states ...string) Option {
	return func(p *Poller) {
		for _, s := range states {
			if s != "" {
				p.unexpected = append(p.unexpected, s)
			}
		}
	}
}

// WithTimeout sets the overall time budget.
func WithTimeout(d time.Duration) Option {
	return func(p *Poller) { p.timeout = d }
}

// WithRetrialPeriod sets the sleep between probes.
func WithRetrialPeriod(d time.Duration) Option {
	return func(p *Poller) { p.period = d }
}

// WithRetrialCount caps the number of failed checks. Zero or less means no cap.
func WithRetrialCount(n int) Option {
	return func(p *Poller) { p.retrialCount = n }
}

// WithRaiseOnError makes a probe error end polling immediately.
func WithRaiseOnError(raise bool) Option {
	return func(p *Poller) { p.raiseOnError = raise }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(p *Poller) { p.log = log }
}

// New creates a Poller waiting for desired.
func New(desired string, opts ...Option) *Poller {
	p := &Poller{
		desired:      desired,
		timeout:      constants.DefaultPollTimeout,
		period:       constants.DefaultPollPeriod,
		retrialCount: constants.DefaultPollRetrialCount,
		clock:        realClock{},
		log:          logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll probes until desired or unexpected is returned, or a budget runs out.
// An empty unexpected disables the fast-fail check.
func Poll(ctx context.Context, probe Probe, desired, unexpected string, timeout, retrialPeriod time.Duration, retrialCount int, raiseOnError bool) (*Result, error) {
	return New(desired,
		WithUnexpected(unexpected),
		WithTimeout(timeout),
		WithRetrialPeriod(retrialPeriod),
		WithRetrialCount(retrialCount),
		WithRaiseOnError(raiseOnError),
	).Until(ctx, probe)
}

// Until runs the polling loop.
//
// The retrial budget is decremented after every failed check, that is every
// probe call that returned neither the desired nor an unexpected state,
// including a probe error that was not raised. No sleep follows the check that
// exhausts the budget.
func (p *Poller) Until(ctx context.Context, probe Probe) (*Result, error) {
	result := &Result{}
	start := p.clock.Now()
	remaining := p.retrialCount
	limited := p.retrialCount > 0

	log := p.log.WithFields(logrus.Fields{
		"desired":    p.desired,
		"unexpected": p.unexpected,
		"timeout":    p.timeout,
		"period":     p.period,
	})
	log.Debug("waiting for state")

	for {
		result.Elapsed = p.clock.Now().Sub(start)
		if result.Elapsed >= p.timeout {
			result.Outcome = TimedOut
			log.WithFields(attemptFields(result)).Error("timed out waiting for state")
			return result, errors.Wrapf(ErrTimeout, "waited %s for %q after %d attempts (last state %q)",
				p.timeout, p.desired, result.Attempts, result.State)
		}
		if limited && remaining <= 0 {
			result.Outcome = RetrialsExhausted
			log.WithFields(attemptFields(result)).Error("retrials exhausted waiting for state")
			return result, errors.Wrapf(ErrRetrialsExhausted, "%d attempts in %s without reaching %q (last state %q)",
				result.Attempts, result.Elapsed, p.desired, result.State)
		}

		result.Attempts++
		state, err := probe(ctx)
		if err != nil {
			result.LastErr = err
			if p.raiseOnError {
				result.Outcome = ProbeFailed
				result.Elapsed = p.clock.Now().Sub(start)
				log.WithError(err).WithFields(attemptFields(result)).Error("probe failed")
				return result, errors.Wrapf(err, "probe failed on attempt %d", result.Attempts)
			}
			log.WithError(err).WithField("attempt", result.Attempts).Warn("probe failed, retrying")
		} else {
			result.State = state
			switch {
			case state == p.desired:
				result.Outcome = ReachedDesired
				result.Elapsed = p.clock.Now().Sub(start)
				log.WithFields(attemptFields(result)).Info("reached desired state")
				return result, nil
			case p.isUnexpected(state):
				result.Outcome = ReachedUnexpected
				result.Elapsed = p.clock.Now().Sub(start)
				log.WithFields(attemptFields(result)).Error("reached unexpected state")
				return result, errors.Wrapf(ErrUnexpectedState, "state %q on attempt %d", state, result.Attempts)
			}
			log.WithFields(attemptFields(result)).Debug("state not reached yet")
		}

		remaining--
		if limited && remaining <= 0 {
			continue
		}

		if err := p.clock.Sleep(ctx, p.period); err != nil {
			result.Outcome = TimedOut
			result.Elapsed = p.clock.Now().Sub(start)
			log.WithError(err).Error("polling interrupted")
			return result, errors.Wrapf(err, "%s after %d attempts", ErrTimeout, result.Attempts)
		}
		result.Sleeps++
	}
}

func (p *Poller) isUnexpected(state string) bool {
	for _, s := range p.unexpected {
		if s == state {
			return true
		}
	}
	return false
}

func attemptFields(r *Result) logrus.Fields {
	return logrus.Fields{
		"attempts": r.Attempts,
		"state":    r.State,
		"elapsed":  r.Elapsed,
	}
}
