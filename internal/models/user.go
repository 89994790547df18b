package models

import "time"

// User owns positions, trades and goals. Deleting a user cascades to all of them.
type User struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
