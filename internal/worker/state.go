package worker

import (
	"fmt"
	"time"
)

// Phase is the coarse state of a worker's polling loop.
type Phase int

const (
	// PhasePolling waits the monitoring interval between calls.
	PhasePolling Phase = iota
	// PhaseBackoff waits a growing retry delay after failed calls.
	PhaseBackoff
	// PhaseFatal is terminal; no further calls are made.
	PhaseFatal
)

func (p Phase) String() string {
	switch p {
	case PhasePolling:
		return "polling"
	case PhaseBackoff:
		return "backoff"
	case PhaseFatal:
		return "fatal"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Outcome classifies one weather call.
type Outcome int

const (
	// OutcomeSuccess is a 200 response.
	OutcomeSuccess Outcome = iota
	// OutcomeUnauthorized is a 401 response.
	OutcomeUnauthorized
	// OutcomeFailure is any other status, a transport error or a malformed body.
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeFailure:
		return "failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Policy holds the delays that drive state transitions.
type Policy struct {
	MonitoringInterval  time.Duration
	BasicRetryDelay     time.Duration
	RetryDelayIncrement time.Duration
	MaxRetries          int
}

// DefaultPolicy polls every ten minutes and backs off 60s, then +120s per retry.
func DefaultPolicy() Policy {
	return Policy{
		MonitoringInterval:  10 * time.Minute,
		BasicRetryDelay:     time.Minute,
		RetryDelayIncrement: 2 * time.Minute,
		MaxRetries:          3,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MonitoringInterval <= 0 {
		p.MonitoringInterval = d.MonitoringInterval
	}
	if p.BasicRetryDelay <= 0 {
		p.BasicRetryDelay = d.BasicRetryDelay
	}
	if p.RetryDelayIncrement <= 0 {
		p.RetryDelayIncrement = d.RetryDelayIncrement
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	return p
}

// State is the retry bookkeeping of one worker.
type State struct {
	Phase      Phase
	RetryCount int
	Delay      time.Duration
}

// Initial is the state a worker starts in.
func (p Policy) Initial() State {
	return State{Phase: PhasePolling, RetryCount: 1, Delay: p.MonitoringInterval}
}

// Next applies outcome o to s.
//
// Failures below MaxRetries escalate the delay (BasicRetryDelay first, then
// +RetryDelayIncrement). A failure at MaxRetries does not escalate further:
// the state falls back to normal polling with the retry count reset.
func (p Policy) Next(s State, o Outcome) State {
	if s.Phase == PhaseFatal {
		return s
	}
	switch o {
	case OutcomeSuccess:
		// Resets the retry count as well as the delay: a later failure streak
		// starts over at BasicRetryDelay (F,F,S,F waits 1m, 3m, 10m, 1m).
		return p.Initial()
	case OutcomeUnauthorized:
		return State{Phase: PhaseFatal, RetryCount: s.RetryCount, Delay: 0}
	default:
		if s.RetryCount >= p.MaxRetries {
			return p.Initial()
		}
		next := State{Phase: PhaseBackoff, RetryCount: s.RetryCount + 1}
		if s.RetryCount == 1 {
			next.Delay = p.BasicRetryDelay
		} else {
			next.Delay = s.Delay + p.RetryDelayIncrement
		}
		return next
	}
}
