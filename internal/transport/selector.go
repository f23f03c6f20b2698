package transport

import (
	"errors"
	"strings"
)

// Selector identifies the target hub by advertised name.
type Selector struct {
	Name   string
	Prefix bool
}

// ParseSelector reads "NAME" as an exact match and "NAME*" as a prefix match.
func ParseSelector(raw string) (Selector, error) {
	raw = strings.TrimSpace(raw)
	prefix := strings.HasSuffix(raw, "*")
	name := strings.TrimSpace(strings.TrimSuffix(raw, "*"))
	if name == "" {
		return Selector{}, errors.New("hub selector must not be empty")
	}
	if strings.Contains(name, "*") {
		return Selector{}, errors.New("hub selector supports a single trailing '*'")
	}
	return Selector{Name: name, Prefix: prefix}, nil
}

// Match compares an advertised name case-insensitively.
func (s Selector) Match(advertised string) bool {
	advertised = strings.TrimSpace(advertised)
	if advertised == "" || s.Name == "" {
		return false
	}
	if s.Prefix {
		return len(advertised) >= len(s.Name) && strings.EqualFold(advertised[:len(s.Name)], s.Name)
	}
	return strings.EqualFold(advertised, s.Name)
}

func (s Selector) String() string {
	if s.Prefix {
		return s.Name + "*"
	}
	return s.Name
}
