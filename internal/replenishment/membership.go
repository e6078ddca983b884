package replenishment

import (
	"context"
	"errors"

	"github.com/stockroom/stockroom/internal/refdata"
	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/store"
)

// MembershipChecker resolves a user's role inside an organization.
type MembershipChecker interface {
	Role(ctx context.Context, organizationID, userID string) (refdata.Role, error)
}

// ErrNotMember indicates the user has no profile in the organization.
var ErrNotMember = errors.New("replenishment: user is not a member")

// ProfileMembership reads roles from the profiles table.
type ProfileMembership struct {
	store store.Store
}

// NewProfileMembership constructs a ProfileMembership.
func NewProfileMembership(st store.Store) *ProfileMembership {
	return &ProfileMembership{store: st}
}

// Role implements MembershipChecker.
func (m *ProfileMembership) Role(ctx context.Context, organizationID, userID string) (refdata.Role, error) {
	if userID == "" {
		return "", ErrNotMember
	}
	var profiles []refdata.Profile
	if err := m.store.Select(ctx, organizationID, store.TableProfiles, store.Where("id", userID), &profiles); err != nil {
		return "", err
	}
	if len(profiles) == 0 {
		return "", ErrNotMember
	}
	return profiles[0].Role, nil
}

// authorize allows admins and managers to trigger manual runs.
func authorize(ctx context.Context, checker MembershipChecker, organizationID, userID string) error {
	role, err := checker.Role(ctx, organizationID, userID)
	if errors.Is(err, ErrNotMember) {
		return shared.ErrForbidden
	}
	if err != nil {
		return err
	}
	if !(refdata.Profile{Role: role}).CanTriggerReplenishment() {
		return shared.ErrForbidden
	}
	return nil
}
