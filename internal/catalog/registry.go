// Package catalog holds the static table of activity types and their time budgets.
package catalog

import (
	"fmt"
	"strings"
)

// ActivityType describes one kind of activity a user can start.
type ActivityType struct {
	Code               string `yaml:"code" json:"code"`
	DisplayName        string `yaml:"display_name" json:"display_name"`
	Emoji              string `yaml:"emoji" json:"emoji"`
	MaxDurationSeconds int64  `yaml:"max_duration_seconds" json:"max_duration_seconds"`
}

// Label returns the emoji-prefixed display name, falling back to the code.
func (t ActivityType) Label() string {
	name := t.DisplayName
	if name == "" {
		name = t.Code
	}
	if t.Emoji == "" {
		return name
	}
	return t.Emoji + " " + name
}

// Registry is an immutable, ordered lookup of activity types.
type Registry struct {
	order []string
	types map[string]ActivityType
}

// New builds a Registry, preserving the order of the supplied types.
func New(types ...ActivityType) (*Registry, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("catalog: at least one activity type is required")
	}
	r := &Registry{
		order: make([]string, 0, len(types)),
		types: make(map[string]ActivityType, len(types)),
	}
	for i, t := range types {
		t.Code = strings.TrimSpace(t.Code)
		if t.Code == "" {
			return nil, fmt.Errorf("catalog: entry %d has an empty code", i)
		}
		if _, dup := r.types[t.Code]; dup {
			return nil, fmt.Errorf("catalog: duplicate code %q", t.Code)
		}
		if t.MaxDurationSeconds <= 0 {
			return nil, fmt.Errorf("catalog: %s: max_duration_seconds must be > 0", t.Code)
		}
		r.order = append(r.order, t.Code)
		r.types[t.Code] = t
	}
	return r, nil
}

// Default returns the built-in activity table.
func Default() *Registry {
	r, err := New(defaultTypes...)
	if err != nil {
		panic(err)
	}
	return r
}

var defaultTypes = []ActivityType{
	{Code: "toilet", DisplayName: "Toilet", Emoji: "🚽", MaxDurationSeconds: 360},
	{Code: "smoking", DisplayName: "Smoking", Emoji: "🚬", MaxDurationSeconds: 300},
	{Code: "eating", DisplayName: "Eating", Emoji: "🍚", MaxDurationSeconds: 1800},
	{Code: "phone", DisplayName: "Phone call", Emoji: "📱", MaxDurationSeconds: 600},
	{Code: "rest", DisplayName: "Rest", Emoji: "☕", MaxDurationSeconds: 900},
}

// Get returns the configuration for code.
func (r *Registry) Get(code string) (ActivityType, bool) {
	t, ok := r.types[code]
	return t, ok
}

// IsValid reports whether code is a known activity type.
func (r *Registry) IsValid(code string) bool {
	_, ok := r.types[code]
	return ok
}

// Codes returns all codes in table order.
func (r *Registry) Codes() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns every activity type in table order.
func (r *Registry) All() []ActivityType {
	out := make([]ActivityType, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.types[code])
	}
	return out
}
