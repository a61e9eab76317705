package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/shared"
)

// ContractRepository defines persistence for contracts
type ContractRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Contract, error)

	// FindActiveIntersecting returns active contracts in force during [start, end)
	FindActiveIntersecting(ctx context.Context, start, end time.Time) ([]Contract, error)

	// FindActiveByUnit returns the active contracts of a unit
	FindActiveByUnit(ctx context.Context, unitID uuid.UUID) ([]Contract, error)

	Save(ctx context.Context, contract *Contract) error
}

// ServiceRepository defines persistence for billable services
type ServiceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Service, error)

	// FindActiveFixed returns active fixed-fee services ordered by name
	FindActiveFixed(ctx context.Context) ([]Service, error)

	Save(ctx context.Context, service *Service) error
}

// InvoiceFilter narrows invoice listings
type InvoiceFilter struct {
	shared.Filter
	ContractID *uuid.UUID
	Status     InvoiceStatus
	From       *time.Time
	To         *time.Time
}

// InvoiceRepository defines persistence for invoices and their lines
type InvoiceRepository interface {
	// FindByID loads an invoice with its lines
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	List(ctx context.Context, filter InvoiceFilter) ([]Invoice, int64, error)

	// ExistsForPeriod reports whether an invoice exists for (contract, period start)
	ExistsForPeriod(ctx context.Context, contractID uuid.UUID, periodStart time.Time) (bool, error)

	// NumbersWithPrefix returns every invoice number starting with prefix
	NumbersWithPrefix(ctx context.Context, prefix string) ([]string, error)

	// Create inserts the invoice and its lines atomically. A unique-key violation
	// is reported as shared.ErrAlreadyExists.
	Create(ctx context.Context, invoice *Invoice) error

	// Save updates the invoice and replaces its lines, checking the version
	Save(ctx context.Context, invoice *Invoice) error

	Delete(ctx context.Context, id uuid.UUID) error
}

// ReadingStore gives access to the readings of meters. Inside MeterRepository.WithMeterLock
// it is bound to the transaction holding the meter lock.
type ReadingStore interface {
	// ListByMeter returns all readings of a meter ordered by date
	ListByMeter(ctx context.Context, meterID uuid.UUID) ([]*MeterReading, error)

	FindReadingByID(ctx context.Context, id uuid.UUID) (*MeterReading, error)

	CreateReading(ctx context.Context, reading *MeterReading) error

	UpdateReading(ctx context.Context, reading *MeterReading) error

	DeleteReading(ctx context.Context, id uuid.UUID) error
}

// MeterRepository defines persistence for meters and their readings
type MeterRepository interface {
	ReadingStore

	FindByID(ctx context.Context, id uuid.UUID) (*Meter, error)

	// FindByBuilding returns the active meters of a building with the given scope
	FindByBuilding(ctx context.Context, buildingID uuid.UUID, scope MeterScope) ([]Meter, error)

	// ReadingsOn returns the readings recorded on date for the given meters, keyed by meter ID
	ReadingsOn(ctx context.Context, meterIDs []uuid.UUID, date time.Time) (map[uuid.UUID]*MeterReading, error)

	Save(ctx context.Context, meter *Meter) error

	// WithMeterLock runs fn in a transaction that serializes writers of the meter's readings
	WithMeterLock(ctx context.Context, meterID uuid.UUID, fn func(ctx context.Context, store ReadingStore) error) error
}
