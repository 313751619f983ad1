package domain

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string.
func NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
