// Package analyzer decides whether a prompt needs fresh data from the web
// or can be answered from what a model already knows.
package analyzer

import "strings"

// liveTriggers are the terms that mark a prompt as time-sensitive. Matching
// is naive substring containment ("find" also fires on "finding"), so the
// gate over-triggers rather than misses.
var liveTriggers = []string{
	"current", "recent", "latest", "news", "today", "yesterday",
	"this week", "this month", "this year", "update", "score",
	"happening", "trending", "after 2023", "after 2024", "2025",
	"search", "look up", "find",
}

// NeedsLiveSearch reports whether the query asks about something that moves
// faster than a model's training data.
func NeedsLiveSearch(query string) bool {
	lower := strings.ToLower(query)
	for _, trigger := range liveTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

// MatchedTriggers returns every trigger found in the query, in trigger-list
// order. Useful for logging why the gate fired.
func MatchedTriggers(query string) []string {
	lower := strings.ToLower(query)
	var matched []string
	for _, trigger := range liveTriggers {
		if strings.Contains(lower, trigger) {
			matched = append(matched, trigger)
		}
	}
	return matched
}
