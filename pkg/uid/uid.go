package uid

import "github.com/google/uuid"

// New generates a new random identifier for stored records.
func New() string {
	return uuid.New().String()
}

// NewTaskID generates a time-ordered identifier for queued tasks, so ids sort by enqueue time.
func NewTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
