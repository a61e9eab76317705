package identity

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTenant(t *testing.T) {
	t.Run("creates tenant with slug derived from name", func(t *testing.T) {
		tenant, err := NewTenant("  Acme Properties LLC ", "")

		require.NoError(t, err)
		assert.Equal(t, "Acme Properties LLC", tenant.Name)
		assert.Equal(t, "acme-properties-llc", tenant.Slug)
		assert.True(t, tenant.Active)
		assert.False(t, tenant.SetupCompleted)
		assert.Equal(t, 1, tenant.Version)
		assert.NotEqual(t, uuid.Nil, tenant.ID)
	})

	t.Run("normalizes explicit slug", func(t *testing.T) {
		tenant, err := NewTenant("Acme", "ACME__Main!!")

		require.NoError(t, err)
		assert.Equal(t, "acme_main", tenant.Slug)
	})

	t.Run("fails with empty name", func(t *testing.T) {
		tenant, err := NewTenant("   ", "")

		assert.Nil(t, tenant)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("fails when name has no slug characters", func(t *testing.T) {
		tenant, err := NewTenant("!!!", "")

		assert.Nil(t, tenant)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestTenant_RenameKeepsSlug(t *testing.T) {
	tenant, err := NewTenant("Old Name", "")
	require.NoError(t, err)

	require.NoError(t, tenant.Rename("Completely New Name"))

	assert.Equal(t, "Completely New Name", tenant.Name)
	assert.Equal(t, "old-name", tenant.Slug)
	assert.Equal(t, 2, tenant.Version)
}

func TestTenant_ActivationLifecycle(t *testing.T) {
	tenant, err := NewTenant("Acme", "")
	require.NoError(t, err)

	require.NoError(t, tenant.Deactivate())
	assert.False(t, tenant.Active)
	assert.ErrorIs(t, tenant.Deactivate(), shared.ErrInvalidState)

	require.NoError(t, tenant.Activate())
	assert.True(t, tenant.Active)
	assert.ErrorIs(t, tenant.Activate(), shared.ErrInvalidState)
}

func TestTenant_DatabaseName(t *testing.T) {
	id := uuid.MustParse("6f1c2b8e-8a63-4a3e-9d2e-2f5b1c7e9a10")

	tests := []struct {
		name   string
		tenant Tenant
		want   string
	}{
		{
			name:   "uses stored slug",
			tenant: Tenant{Name: "Ignored", Slug: "acme"},
			want:   "acme",
		},
		{
			name:   "falls back to normalized name",
			tenant: Tenant{Name: "Blue Sky Rentals"},
			want:   "blue-sky-rentals",
		},
		{
			name:   "falls back to synthetic id token",
			tenant: Tenant{Name: "***"},
			want:   "tenant-6f1c2b8e-8a63-4a3e-9d2e-2f5b1c7e9a10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.tenant.ID = id
			assert.Equal(t, tt.want, tt.tenant.DatabaseName())
		})
	}
}

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme", "acme"},
		{"Acme Holdings, Inc.", "acme-holdings-inc"},
		{"--a--b--", "a-b"},
		{"a_-_b", "a-b"},
		{"a__b", "a_b"},
		{"Ünïcode Name", "n-code-name"},
		{"", ""},
		{"already-ok_1", "already-ok_1"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSlug(tt.in))
		})
	}
}

func TestNewTenant_LongNamesFitDatabaseNames(t *testing.T) {
	t.Run("derived slug is cut without a trailing separator", func(t *testing.T) {
		name := strings.Repeat("a", 55) + " " + strings.Repeat("b", 140)
		tenant, err := NewTenant(name, "")
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("a", 55), tenant.Slug)
		assert.LessOrEqual(t, len(tenant.DatabaseName()), MaxSlugLength)
	})

	t.Run("explicit slug over the database name limit", func(t *testing.T) {
		_, err := NewTenant("Acme", strings.Repeat("x", MaxDatabaseNameLength+1))
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("explicit slug with a suffix is kept", func(t *testing.T) {
		slug := strings.Repeat("x", MaxSlugLength) + "-1000"
		tenant, err := NewTenant("Acme", slug)
		require.NoError(t, err)
		assert.Equal(t, slug, tenant.Slug)
	})
}

func TestTruncateSlug(t *testing.T) {
	assert.Equal(t, "short", TruncateSlug("short", 10))
	assert.Equal(t, "abc", TruncateSlug("abc-_def", 5))
	assert.Equal(t, "abcde", TruncateSlug("abcdefgh", 5))
}

func TestParseTenantID(t *testing.T) {
	id := uuid.New()

	parsed, ok := ParseTenantID(id.String())
	assert.True(t, ok)
	assert.Equal(t, id, parsed)

	_, ok = ParseTenantID("acme")
	assert.False(t, ok)

	_, ok = ParseTenantID(uuid.Nil.String())
	assert.False(t, ok)
}
