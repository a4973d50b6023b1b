package models

import "time"

// Season models an enrollment term. At most one season is active at a time;
// activating a season deactivates the rest in the same transaction.
type Season struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
