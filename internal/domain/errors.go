package domain

import "errors"

var (
	// ErrNoScenario is returned when no scenario is configured for a run key.
	ErrNoScenario = errors.New("no scenario configured")
	// ErrInvalidScenario is returned when scenario data fails validation.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrInvalidTransition is returned for lifecycle calls made from the wrong state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrProtocolViolation marks a stream frame that was dropped.
	ErrProtocolViolation = errors.New("stream protocol violation")
	// ErrTransport marks a streaming backend failure.
	ErrTransport = errors.New("stream transport failure")
	// ErrRunBlocked is returned when the run policy refuses a trigger.
	ErrRunBlocked = errors.New("run blocked by policy")
)
