// Package refdata holds the organization reference entities used for joins
// and a read-only name resolver shared by both engines.
package refdata

// Role names a membership role on a profile.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// Folder is a storage location.
type Folder struct {
	ID             string  `json:"id" db:"id"`
	OrganizationID string  `json:"organization_id" db:"organization_id"`
	Name           string  `json:"name" db:"name"`
	ParentID       *string `json:"parent_id" db:"parent_id"`
}

// Vendor supplies items and receives auto-generated purchase orders.
type Vendor struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	Name           string `json:"name" db:"name"`
	Email          string `json:"email" db:"email"`
	Phone          string `json:"phone" db:"phone"`
}

// Customer is a sales counterpart.
type Customer struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	Name           string `json:"name" db:"name"`
	Email          string `json:"email" db:"email"`
}

// Profile is an organization member.
type Profile struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	FullName       string `json:"full_name" db:"full_name"`
	Email          string `json:"email" db:"email"`
	Role           Role   `json:"role" db:"role"`
}

// DisplayName prefers the full name over the email.
func (p Profile) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Email
}

// CanTriggerReplenishment reports admin or manager membership.
func (p Profile) CanTriggerReplenishment() bool {
	return p.Role == RoleAdmin || p.Role == RoleManager
}
