package refdata

import "log/slog"

// Placeholders returned for ids with no matching reference row.
const (
	UnknownFolder   = "Unknown Folder"
	UnknownVendor   = "Unknown Vendor"
	UnknownUser     = "Unknown User"
	UnknownCustomer = "Unknown Customer"
)

// Resolver maps reference ids to display names. It is immutable after
// construction and safe for concurrent use.
type Resolver struct {
	folders   map[string]Folder
	vendors   map[string]Vendor
	customers map[string]Customer
	profiles  map[string]Profile
	logger    *slog.Logger
}

// NewResolver indexes the reference lists. Rows from other organizations
// than organizationID are ignored.
func NewResolver(organizationID string, folders []Folder, vendors []Vendor, customers []Customer, profiles []Profile, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		folders:   make(map[string]Folder, len(folders)),
		vendors:   make(map[string]Vendor, len(vendors)),
		customers: make(map[string]Customer, len(customers)),
		profiles:  make(map[string]Profile, len(profiles)),
		logger:    logger,
	}
	for _, f := range folders {
		if f.OrganizationID == organizationID {
			r.folders[f.ID] = f
		}
	}
	for _, v := range vendors {
		if v.OrganizationID == organizationID {
			r.vendors[v.ID] = v
		}
	}
	for _, c := range customers {
		if c.OrganizationID == organizationID {
			r.customers[c.ID] = c
		}
	}
	for _, p := range profiles {
		if p.OrganizationID == organizationID {
			r.profiles[p.ID] = p
		}
	}
	return r
}

// FolderName resolves a folder id.
func (r *Resolver) FolderName(id string) string {
	if f, ok := r.folders[id]; ok && f.Name != "" {
		return f.Name
	}
	r.miss("folder", id)
	return UnknownFolder
}

// VendorName resolves a vendor id.
func (r *Resolver) VendorName(id string) string {
	if v, ok := r.vendors[id]; ok && v.Name != "" {
		return v.Name
	}
	r.miss("vendor", id)
	return UnknownVendor
}

// UserName resolves a profile id.
func (r *Resolver) UserName(id string) string {
	if p, ok := r.profiles[id]; ok && p.DisplayName() != "" {
		return p.DisplayName()
	}
	r.miss("user", id)
	return UnknownUser
}

// CustomerName resolves a customer id.
func (r *Resolver) CustomerName(id string) string {
	if c, ok := r.customers[id]; ok && c.Name != "" {
		return c.Name
	}
	r.miss("customer", id)
	return UnknownCustomer
}

// Vendor returns the vendor with id.
func (r *Resolver) Vendor(id string) (Vendor, bool) {
	v, ok := r.vendors[id]
	return v, ok
}

// Profile returns the profile with id.
func (r *Resolver) Profile(id string) (Profile, bool) {
	p, ok := r.profiles[id]
	return p, ok
}

func (r *Resolver) miss(kind, id string) {
	r.logger.Debug("reference not resolved", slog.String("kind", kind), slog.String("id", id))
}
