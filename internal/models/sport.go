package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
)

// Sport identifies which feed an event or tip belongs to
type Sport string

const (
	Football    Sport = "football"
	Golf        Sport = "golf"
	Tennis      Sport = "tennis"
	HorseRacing Sport = "horse_racing"
)

// ErrUnknownSport is returned by ParseSport for unsupported names
var ErrUnknownSport = errors.New("unknown sport")

// AllSports lists sports in the order the reconciler processes them
var AllSports = []Sport{Football, Golf, Tennis, HorseRacing}

// ParseSport validates a sport name
func ParseSport(s string) (Sport, error) {
	switch Sport(strings.ToLower(strings.TrimSpace(s))) {
	case Football, "soccer":
		return Football, nil
	case Golf:
		return Golf, nil
	case Tennis:
		return Tennis, nil
	case HorseRacing, "racing", "horse-racing":
		return HorseRacing, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownSport, s)
}

// Literal defaults stored instead of NULL when a provider omits a field
const (
	DefaultUnknown    = "N/A"
	DefaultTeamName   = "Unknown Team"
	DefaultPlayerName = "Unknown Player"
	DefaultHorseName  = "Unknown Horse"
	DefaultEventName  = "Unknown Event"
)

// Participant kinds
const (
	KindPlayer = "player"
	KindHorse  = "horse"
)

// EntityKey returns the natural key for a referenced entity: the provider ID
// when present, otherwise a slug of the name.
func EntityKey(providerID, name string) string {
	if id := strings.TrimSpace(providerID); id != "" {
		return id
	}
	if key := slug.Make(name); key != "" {
		return key
	}
	return slug.Make(DefaultUnknown)
}

func orDefault(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}
