// Package identity maps external account emails to persisted user ids.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/zhouzirui/pac-chat/backend/internal/store"
)

var ErrEmailRequired = errors.New("email is required")

// Resolver finds or creates the user record for an email.
type Resolver struct {
	users store.Users
}

// NewResolver builds a Resolver over the given user store.
func NewResolver(users store.Users) *Resolver {
	return &Resolver{users: users}
}

// Resolve returns the user id for email, creating the user when absent. A
// concurrent creation that loses the uniqueness race reads back the winner's row.
func (r *Resolver) Resolve(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrEmailRequired
	}

	user, err := r.users.FindUserByEmail(ctx, email)
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("resolve user: %w", err)
	}

	log.Printf("[identity] no user for %s, creating one", email)
	user, err = r.users.CreateUser(ctx, email)
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return "", fmt.Errorf("create user: %w", err)
	}

	user, err = r.users.FindUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("resolve user after conflict: %w", err)
	}
	return user.ID, nil
}
