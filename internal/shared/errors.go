package shared

import "errors"

var (
	// ErrOrganizationRequired occurs when a call is not scoped to a tenant.
	ErrOrganizationRequired = errors.New("organization required")
	// ErrForbidden indicates the caller lacks the role for an action.
	ErrForbidden = errors.New("forbidden")
)
