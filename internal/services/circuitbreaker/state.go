package circuitbreaker

import (
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
)

// Event drives the breaker state machine.
type Event int

const (
	// EventCheck is the read-path event; it may move OPEN to HALF_OPEN.
	EventCheck Event = iota
	EventSuccess
	EventFailure
)

func (e Event) String() string {
	switch e {
	case EventCheck:
		return "check"
	case EventSuccess:
		return "success"
	case EventFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Settings are the breaker thresholds.
type Settings struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultSettings returns 5 failures to open, 2 trial successes to close, 30s open.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// Transition applies one event to a status and reports whether a call is
// allowed. It is the only place state changes are decided; both the read path
// (CanExecute) and the write paths go through it.
func Transition(s models.CircuitStatus, ev Event, cfg Settings, now time.Time) (models.CircuitStatus, bool) {
	switch ev {
	case EventCheck:
		return check(s, cfg, now)
	case EventSuccess:
		return success(s, cfg, now), true
	case EventFailure:
		return failure(s, cfg, now), true
	default:
		return s, false
	}
}

func check(s models.CircuitStatus, cfg Settings, now time.Time) (models.CircuitStatus, bool) {
	switch s.State {
	case models.CircuitClosed:
		return s, true
	case models.CircuitOpen:
		if s.LastFailureTime != nil && now.Sub(*s.LastFailureTime) < cfg.Timeout {
			return s, false
		}
		s.State = models.CircuitHalfOpen
		s.FailureCount = 0
		s.SuccessCount = 0
		return s, true
	case models.CircuitHalfOpen:
		return s, s.SuccessCount < cfg.SuccessThreshold
	default:
		return s, false
	}
}

func success(s models.CircuitStatus, cfg Settings, now time.Time) models.CircuitStatus {
	t := now
	s.TotalRequests++
	s.LastSuccessTime = &t
	s.FailureCount = 0

	if s.State == models.CircuitHalfOpen {
		s.SuccessCount++
		if s.SuccessCount >= cfg.SuccessThreshold {
			s.State = models.CircuitClosed
			s.SuccessCount = 0
		}
	}
	return s
}

func failure(s models.CircuitStatus, cfg Settings, now time.Time) models.CircuitStatus {
	t := now
	s.TotalRequests++
	s.TotalFailures++
	s.LastFailureTime = &t
	s.SuccessCount = 0
	s.FailureCount++

	switch s.State {
	case models.CircuitHalfOpen:
		s.State = models.CircuitOpen
	case models.CircuitClosed:
		if s.FailureCount >= cfg.FailureThreshold {
			s.State = models.CircuitOpen
		}
	}
	return s
}
