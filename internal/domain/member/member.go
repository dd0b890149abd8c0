// Package member exposes the member lookup collaborator consumed by the
// cart, order, and delivery services. Account management itself (signup,
// authentication) lives outside this core.
package member

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested member does not exist.
var ErrNotFound = errors.New("member not found")

// Member holds the subset of account data the fulfillment core needs:
// identity, notification recipient fields, and the default shipping address.
type Member struct {
	ID       string
	Nickname string
	Email    string
	Address  string
}

// Repository defines lookup and default-address operations for members.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Member, error)
	UpdateAddress(ctx context.Context, id, address string) error
}
