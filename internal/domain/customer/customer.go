package customer

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer holds the contact snapshot that order notifications render from.
type Customer struct {
	ID    string
	Name  string
	Phone string
}

// Repository defines read operations for customer contact data.
type Repository interface {
	Get(ctx context.Context, id string) (*Customer, error)
}
