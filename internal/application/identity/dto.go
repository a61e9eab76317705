package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/identity"
)

// ProvisionTenantInput contains input for onboarding a tenant
type ProvisionTenantInput struct {
	Name                  string
	Slug                  string // optional; derived from Name when empty
	MergeServicesWithRent bool
}

// UpdateSettingsInput contains input for changing tenant billing preferences
type UpdateSettingsInput struct {
	ID                    uuid.UUID
	MergeServicesWithRent bool
}

// TenantDTO represents tenant data transfer object
type TenantDTO struct {
	ID                    uuid.UUID `json:"id"`
	Name                  string    `json:"name"`
	Slug                  string    `json:"slug"`
	DatabaseID            string    `json:"database_id"`
	Active                bool      `json:"active"`
	SetupCompleted        bool      `json:"setup_completed"`
	MergeServicesWithRent bool      `json:"merge_services_with_rent"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func toTenantDTO(t *identity.Tenant) *TenantDTO {
	return &TenantDTO{
		ID:                    t.ID,
		Name:                  t.Name,
		Slug:                  t.Slug,
		DatabaseID:            t.DatabaseName(),
		Active:                t.Active,
		SetupCompleted:        t.SetupCompleted,
		MergeServicesWithRent: t.Settings.MergeServicesWithRent,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
}
