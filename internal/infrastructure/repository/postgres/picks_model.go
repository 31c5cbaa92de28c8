package postgres

import "time"

// picksTableModel stores data as text so lib/pq binds it as jsonb input
// rather than bytea.
type picksTableModel struct {
	ID        int       `db:"id"`
	Data      string    `db:"data"`
	CreatedAt time.Time `db:"created_at,readonly"`
	UpdatedAt time.Time `db:"updated_at,readonly"`
}
