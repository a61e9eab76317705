package billing

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// MeterScope tells whether a meter measures a whole building or a single unit
type MeterScope string

const (
	MeterScopeBuilding MeterScope = "building"
	MeterScopeUnit     MeterScope = "unit"
)

// Meter is a utility meter linked to a service
type Meter struct {
	shared.BaseAggregateRoot
	Code       string
	Scope      MeterScope
	BuildingID uuid.UUID
	UnitID     *uuid.UUID
	ServiceID  uuid.UUID
	Active     bool
}

// NewMeter creates an active meter. Unit meters must reference a unit.
func NewMeter(code string, scope MeterScope, buildingID uuid.UUID, unitID *uuid.UUID, serviceID uuid.UUID) (*Meter, error) {
	if buildingID == uuid.Nil {
		return nil, shared.InvalidInput("Building ID cannot be empty")
	}
	if serviceID == uuid.Nil {
		return nil, shared.InvalidInput("Service ID cannot be empty")
	}
	switch scope {
	case MeterScopeBuilding:
		unitID = nil
	case MeterScopeUnit:
		if unitID == nil || *unitID == uuid.Nil {
			return nil, shared.InvalidInput("Unit meters must reference a unit")
		}
	default:
		return nil, shared.InvalidInput("Unknown meter scope")
	}
	return &Meter{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              code,
		Scope:             scope,
		BuildingID:        buildingID,
		UnitID:            unitID,
		ServiceID:         serviceID,
		Active:            true,
	}, nil
}

// MeterReading is one recorded value of a meter on a date. Previous and
// Consumption are derived from the meter's ordered reading history.
type MeterReading struct {
	ID          uuid.UUID
	MeterID     uuid.UUID
	ReadingDate time.Time
	Current     decimal.Decimal
	Previous    decimal.Decimal
	Consumption decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewMeterReading creates a reading. Derived fields are filled by RecalculateReadings.
func NewMeterReading(meterID uuid.UUID, date time.Time, current decimal.Decimal) (*MeterReading, error) {
	if meterID == uuid.Nil {
		return nil, shared.InvalidInput("Meter ID cannot be empty")
	}
	if date.IsZero() {
		return nil, shared.InvalidInput("Reading date is required")
	}
	if current.IsNegative() {
		return nil, shared.InvalidInput("Reading value cannot be negative")
	}
	now := time.Now()
	return &MeterReading{
		ID:          uuid.New(),
		MeterID:     meterID,
		ReadingDate: DateOnly(date),
		Current:     current,
		Previous:    decimal.Zero,
		Consumption: current,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// SortReadings orders readings by date, oldest first
func SortReadings(readings []*MeterReading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].ReadingDate.Before(readings[j].ReadingDate)
	})
}

// RecalculateReadings re-derives Previous and Consumption over the full history of
// one meter. Readings are sorted by date in place; the first reading has a previous
// value of zero. It returns the readings whose derived values changed.
func RecalculateReadings(readings []*MeterReading) []*MeterReading {
	SortReadings(readings)

	var changed []*MeterReading
	previous := decimal.Zero
	for _, r := range readings {
		consumption := r.Current.Sub(previous)
		if !r.Previous.Equal(previous) || !r.Consumption.Equal(consumption) {
			r.Previous = previous
			r.Consumption = consumption
			changed = append(changed, r)
		}
		previous = r.Current
	}
	return changed
}
