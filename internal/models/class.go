package models

import "time"

// Class represents a named grouping of students with its own capacity.
// StudentCount is denormalized and maintained transactionally when students
// are assigned or removed.
type Class struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Capacity     int       `db:"capacity" json:"capacity"`
	StudentCount int       `db:"student_count" json:"student_count"`
	SeasonID     *string   `db:"season_id" json:"season_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	SeasonID  string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
