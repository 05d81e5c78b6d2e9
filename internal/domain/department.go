package domain

import "time"

// Department represents an organizational unit tickets are assigned to.
type Department struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
