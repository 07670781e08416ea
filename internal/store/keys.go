package store

import "fmt"

type StateKeyStruct struct {
	Tokens       string
	UserSnapshot string
	Catalog      string
	Selection    string
	LastActivity string
}

// StateKey holds the canonical names of persisted client-state entries.
var StateKey = &StateKeyStruct{
	Tokens:       "auth_tokens",
	UserSnapshot: "user_snapshot",
	Catalog:      "course_catalog",
	Selection:    "catalog_selection",
	LastActivity: "last_activity",
}

// LastScoreKey returns the key of the short-lived score record for a
// course+module pair.
func (r *StateKeyStruct) LastScoreKey(course, module string) string {
	return fmt.Sprintf("last_score:%s:%s", course, module)
}
