package billing

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// RentType determines how rent is computed for a billing period
type RentType string

const (
	RentTypeMonthly RentType = "monthly"
	RentTypeDaily   RentType = "daily"
)

// IsValid checks if the rent type is known
func (r RentType) IsValid() bool {
	return r == RentTypeMonthly || r == RentTypeDaily
}

// Contract is a lease of a unit to a customer
type Contract struct {
	shared.BaseAggregateRoot
	UnitID     uuid.UUID
	CustomerID uuid.UUID
	RentType   RentType
	BaseRent   decimal.Decimal // per month for monthly contracts, per day for daily contracts
	StartDate  time.Time
	EndDate    time.Time
	Active     bool
}

// NewContract creates a new active contract
func NewContract(unitID, customerID uuid.UUID, rentType RentType, baseRent decimal.Decimal, start, end time.Time) (*Contract, error) {
	if unitID == uuid.Nil {
		return nil, shared.InvalidInput("Unit ID cannot be empty")
	}
	if customerID == uuid.Nil {
		return nil, shared.InvalidInput("Customer ID cannot be empty")
	}
	if !rentType.IsValid() {
		return nil, shared.InvalidInput(fmt.Sprintf("Unknown rent type %q", rentType))
	}
	if baseRent.IsNegative() {
		return nil, shared.InvalidInput("Base rent cannot be negative")
	}
	start, end = DateOnly(start), DateOnly(end)
	if !end.After(start) {
		return nil, shared.InvalidInput("Contract end date must be after start date")
	}

	return &Contract{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		UnitID:            unitID,
		CustomerID:        customerID,
		RentType:          rentType,
		BaseRent:          baseRent,
		StartDate:         start,
		EndDate:           end,
		Active:            true,
	}, nil
}

// Overlaps reports whether both contracts lease the same unit over intersecting date ranges
func (c *Contract) Overlaps(other *Contract) bool {
	if c.UnitID != other.UnitID || c.ID == other.ID {
		return false
	}
	return c.StartDate.Before(other.EndDate) && other.StartDate.Before(c.EndDate)
}

// Intersects reports whether the contract is in force for any part of [start, end).
// Contract ranges are half-open like billing periods.
func (c *Contract) Intersects(start, end time.Time) bool {
	return c.StartDate.Before(end) && start.Before(c.EndDate)
}

// Terminate deactivates the contract
func (c *Contract) Terminate() error {
	if !c.Active {
		return shared.InvalidState("Contract is already inactive")
	}
	c.Active = false
	c.IncrementVersion()
	return nil
}

// Rent is the computed rent charge for one billing period
type Rent struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Amount    decimal.Decimal
}

// ComputeRent computes the rent charge of a contract for [periodStart, periodEnd).
// Monthly contracts bill the base rent once; daily contracts bill base rate times
// the number of days, rounding partial days up.
func ComputeRent(c *Contract, periodStart, periodEnd time.Time) (Rent, error) {
	if !periodEnd.After(periodStart) {
		return Rent{}, shared.InvalidInput("Period end must be after period start")
	}

	switch c.RentType {
	case RentTypeMonthly:
		return Rent{
			Quantity:  decimal.NewFromInt(1),
			UnitPrice: c.BaseRent,
			Amount:    c.BaseRent,
		}, nil
	case RentTypeDaily:
		days := BillableDays(periodStart, periodEnd)
		qty := decimal.NewFromInt(days)
		return Rent{
			Quantity:  qty,
			UnitPrice: c.BaseRent,
			Amount:    c.BaseRent.Mul(qty),
		}, nil
	default:
		return Rent{}, shared.InvalidState(fmt.Sprintf("Contract has unknown rent type %q", c.RentType))
	}
}

// BillableDays returns the number of days in [start, end), counting a partial day as a full one
func BillableDays(start, end time.Time) int64 {
	return int64(math.Ceil(end.Sub(start).Hours() / 24))
}
