package identity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/shared"
)

// Caller roles understood by tenant resolution
const (
	RolePlatformAdmin = "platform_admin"
	RoleTenantAdmin   = "tenant_admin"
	RoleStaff         = "staff"
	RoleSystem        = "system"
)

const (
	// MaxDatabaseNameLength is the postgres identifier limit for database names
	MaxDatabaseNameLength = 63

	// MaxSlugLength caps derived slugs, leaving room for a -N collision suffix
	MaxSlugLength = 56
)

// TenantSettings holds per-tenant billing preferences
type TenantSettings struct {
	// MergeServicesWithRent appends active fixed-fee services to every rent invoice
	MergeServicesWithRent bool
}

// Tenant represents a company that owns an isolated logical database.
// It is the aggregate root of the control database registry.
type Tenant struct {
	shared.BaseAggregateRoot
	Name           string
	Slug           string
	Active         bool
	SetupCompleted bool
	Settings       TenantSettings
}

// NewTenant creates a new active tenant. The slug is derived from the name
// unless one is given explicitly, and is never changed afterwards.
func NewTenant(name, slug string) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if err := validateTenantName(name); err != nil {
		return nil, err
	}
	if slug == "" {
		slug = TruncateSlug(NormalizeSlug(name), MaxSlugLength)
	} else {
		slug = NormalizeSlug(slug)
	}
	if slug == "" {
		return nil, shared.InvalidInput("Tenant name must contain at least one letter or digit")
	}
	if len(slug) > MaxDatabaseNameLength {
		return nil, shared.InvalidInput("Tenant slug cannot exceed 63 characters")
	}

	return &Tenant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Slug:              slug,
		Active:            true,
	}, nil
}

// Rename changes the display name. The slug is stable and is not recomputed.
func (t *Tenant) Rename(name string) error {
	name = strings.TrimSpace(name)
	if err := validateTenantName(name); err != nil {
		return err
	}
	t.Name = name
	t.IncrementVersion()
	return nil
}

// Deactivate soft-deactivates the tenant
func (t *Tenant) Deactivate() error {
	if !t.Active {
		return shared.InvalidState("Tenant is already inactive")
	}
	t.Active = false
	t.IncrementVersion()
	return nil
}

// Activate re-activates a deactivated tenant
func (t *Tenant) Activate() error {
	if t.Active {
		return shared.InvalidState("Tenant is already active")
	}
	t.Active = true
	t.IncrementVersion()
	return nil
}

// CompleteSetup marks the tenant database as provisioned
func (t *Tenant) CompleteSetup() {
	t.SetupCompleted = true
	t.IncrementVersion()
}

// UpdateSettings replaces the tenant's billing preferences
func (t *Tenant) UpdateSettings(settings TenantSettings) {
	t.Settings = settings
	t.IncrementVersion()
}

// DatabaseName returns the logical database that holds this tenant's data:
// the stored slug, else the normalized name, else a synthetic tenant-<id> token.
func (t *Tenant) DatabaseName() string {
	if slug := NormalizeSlug(t.Slug); slug != "" {
		return slug
	}
	if slug := TruncateSlug(NormalizeSlug(t.Name), MaxSlugLength); slug != "" {
		return slug
	}
	return NormalizeSlug("tenant-" + t.ID.String())
}

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9_-]`)
	slugRepeatedSep  = regexp.MustCompile(`[-_]{2,}`)
)

// NormalizeSlug lower-cases s, replaces characters outside [a-z0-9_-] with '-',
// collapses runs of separators and trims separators from both ends.
func NormalizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugInvalidChars.ReplaceAllString(s, "-")
	s = slugRepeatedSep.ReplaceAllStringFunc(s, func(run string) string {
		if strings.Contains(run, "-") {
			return "-"
		}
		return "_"
	})
	return strings.Trim(s, "-_")
}

// TruncateSlug cuts a normalized slug to at most max bytes and trims the
// separators the cut may leave at the end.
func TruncateSlug(slug string, max int) string {
	if len(slug) <= max {
		return slug
	}
	return strings.TrimRight(slug[:max], "-_")
}

func validateTenantName(name string) error {
	if name == "" {
		return shared.InvalidInput("Tenant name cannot be empty")
	}
	if len(name) > 200 {
		return shared.InvalidInput("Tenant name cannot exceed 200 characters")
	}
	return nil
}

// IsPlatformAdmin reports whether role is the platform administrator role
func IsPlatformAdmin(role string) bool {
	return strings.EqualFold(role, RolePlatformAdmin)
}

// ParseTenantID parses a tenant identifier, returning ok=false for anything that is not a UUID
func ParseTenantID(id string) (uuid.UUID, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil || parsed == uuid.Nil {
		return uuid.Nil, false
	}
	return parsed, true
}
