package school

import "time"

// School captures the subset of school registry data exposed via the public
// API layer.
type School struct {
	ID        string
	Name      string
	Code      string
	District  string
	CreatedAt time.Time
}
