package models

import "time"

// Course represents an offered course within a season.
type Course struct {
	ID         string        `db:"id" json:"id"`
	SeasonID   string        `db:"season_id" json:"season_id"`
	Title      string        `db:"title" json:"title"`
	Instructor string        `db:"instructor" json:"instructor"`
	Category   string        `db:"category" json:"category"`
	Level      string        `db:"level" json:"level"`
	Capacity   int           `db:"capacity" json:"capacity"`
	Enrolled   int           `db:"enrolled" json:"enrolled"`
	Slots      ScheduleSlots `db:"slots" json:"slots"`
	Active     bool          `db:"active" json:"active"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}

// Full reports whether every seat is already spoken for. Capacity counts
// pending and approved enrollments together.
func (c *Course) Full() bool {
	return c.Enrolled >= c.Capacity
}

// CourseDetail enriches Course with its season name.
type CourseDetail struct {
	Course
	SeasonName string `db:"season_name" json:"season_name"`
}

// CourseFilter defines filter criteria for listing courses.
type CourseFilter struct {
	SeasonID  string
	Category  string
	Level     string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
