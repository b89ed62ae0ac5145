package models

import "strings"

// EventState is the canonical lifecycle of a sporting event
type EventState string

const (
	StatePre     EventState = "pre"
	StateIn      EventState = "in"
	StatePost    EventState = "post"
	StateUnknown EventState = "unknown"
)

var stateVocabulary = map[string]EventState{
	// ESPN status.type.state
	"pre":  StatePre,
	"in":   StateIn,
	"post": StatePost,

	// ESPN status.type.name
	"status_scheduled":     StatePre,
	"status_postponed":     StatePre,
	"status_in_progress":   StateIn,
	"status_halftime":      StateIn,
	"status_first_half":    StateIn,
	"status_second_half":   StateIn,
	"status_extra_time":    StateIn,
	"status_shootout":      StateIn,
	"status_play_complete": StateIn,
	"status_suspended":     StateIn,
	"status_final":         StatePost,
	"status_full_time":     StatePost,
	"status_final_aet":     StatePost,
	"status_final_pen":     StatePost,
	"status_retired":       StatePost,
	"status_walkover":      StatePost,
	"status_abandoned":     StatePost,

	// Generic provider vocabulary
	"scheduled":   StatePre,
	"not started": StatePre,
	"upcoming":    StatePre,
	"fixture":     StatePre,
	"racecard":    StatePre,
	"declared":    StatePre,
	"live":        StateIn,
	"in progress": StateIn,
	"inprogress":  StateIn,
	"halftime":    StateIn,
	"ht":          StateIn,
	"running":     StateIn,
	"off":         StateIn,
	"final":       StatePost,
	"ft":          StatePost,
	"full time":   StatePost,
	"finished":    StatePost,
	"completed":   StatePost,
	"complete":    StatePost,
	"result":      StatePost,
	"official":    StatePost,
}

// NormalizeState maps provider-specific status strings into the canonical
// state set. The first candidate that is recognised wins, so callers pass the
// most specific field first.
func NormalizeState(candidates ...string) EventState {
	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c))
		if key == "" {
			continue
		}
		if state, ok := stateVocabulary[key]; ok {
			return state
		}
	}
	return StateUnknown
}

// HasStarted reports whether stats may exist for the event
func (s EventState) HasStarted() bool {
	return s == StateIn || s == StatePost
}
