package finding

import (
	"fmt"
	"strings"
)

// Priority is the Fortify priority order of a finding.
type Priority string

const (
	PriorityCritical Priority = "Critical"
	PriorityHigh     Priority = "High"
	PriorityMedium   Priority = "Medium"
	PriorityLow      Priority = "Low"
)

// priorityRanks orders priorities from most to least urgent.
var priorityRanks = map[Priority]int{
	PriorityCritical: 4,
	PriorityHigh:     3,
	PriorityMedium:   2,
	PriorityLow:      1,
}

// IsValid returns true if the priority is one of the four Fortify priorities.
func (p Priority) IsValid() bool {
	_, ok := priorityRanks[p]
	return ok
}

// Rank returns 4 for Critical down to 1 for Low, and 0 for unknown values.
func (p Priority) Rank() int {
	return priorityRanks[p]
}

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// Matches reports whether the priority equals s, ignoring case.
func (p Priority) Matches(s string) bool {
	return p != "" && strings.EqualFold(string(p), strings.TrimSpace(s))
}

// ParsePriority parses a priority name case-insensitively.
func ParsePriority(s string) (Priority, error) {
	for p := range priorityRanks {
		if p.Matches(s) {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid priority: %s", s)
}

// AllPriorities returns every priority from Critical to Low.
func AllPriorities() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
}
