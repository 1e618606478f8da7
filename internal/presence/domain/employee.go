package presence

import "time"

// Employee is a person matched to devices by hostname.
type Employee struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Validate checks employee invariants.
func (e Employee) Validate() error {
	if e.Name == "" {
		return ErrEmptyName
	}
	return nil
}
