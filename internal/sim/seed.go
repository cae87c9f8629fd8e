package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"threattracker.org/internal/auth"
	"threattracker.org/internal/ids"
)

// Seed writes the scenario's organizations and accounts straight into the
// store. Existing records are left alone so seeding is safe to repeat.
func Seed(ctx context.Context, store auth.Store, scenario Scenario) error {
	now := time.Now().UTC()
	for _, org := range scenario.Organizations {
		org.CreatedAt = now
		if err := store.CreateOrganization(ctx, &org); err != nil && !errors.Is(err, auth.ErrConflict) {
			return fmt.Errorf("seed organization %s: %w", org.ID, err)
		}
	}
	for _, acc := range scenario.Accounts {
		hash, err := auth.HashPassword(acc.Password)
		if err != nil {
			return err
		}
		var caps []auth.Capability
		if acc.CanCreateUsers {
			caps = append(caps, auth.CapCreateUsers)
		}
		u := &auth.User{
			ID:             ids.New(),
			Username:       acc.Username,
			PasswordHash:   hash,
			Role:           acc.Role,
			OrganizationID: acc.OrganizationID,
			Capabilities:   caps,
			CreatedAt:      now,
		}
		if err := store.CreateUser(ctx, u); err != nil && !errors.Is(err, auth.ErrConflict) {
			return fmt.Errorf("seed user %s: %w", acc.Username, err)
		}
	}
	return nil
}
