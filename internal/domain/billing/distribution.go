package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ErrNoUnitMeters is returned when a building meter has no unit meters to share its consumption
var ErrNoUnitMeters = shared.InvalidState("No unit meters to distribute building consumption across")

// UnitAllocation is the consumption attributed to one unit meter
type UnitAllocation struct {
	MeterID  uuid.UUID       `json:"meter_id"`
	UnitID   *uuid.UUID      `json:"unit_id,omitempty"`
	Metered  decimal.Decimal `json:"metered"`
	Share    decimal.Decimal `json:"share"`
	Allotted decimal.Decimal `json:"allotted"`
}

// Distribution splits one building meter reading among the unit meters of the same service
type Distribution struct {
	BuildingMeterID uuid.UUID        `json:"building_meter_id"`
	ServiceID       uuid.UUID        `json:"service_id"`
	ReadingDate     time.Time        `json:"reading_date"`
	Total           decimal.Decimal  `json:"total"`
	SumUnits        decimal.Decimal  `json:"sum_units"`
	Shared          decimal.Decimal  `json:"shared"`
	PerUnitShare    decimal.Decimal  `json:"per_unit_share"`
	Units           []UnitAllocation `json:"units"`
}

// DistributeConsumption allocates the consumption of a building reading. Every unit meter
// receives its own metered consumption plus an equal share of the unmetered remainder.
// unitReadings maps unit meter IDs to their reading on the same date; a unit meter
// without a reading counts as zero consumption. It returns ErrNoUnitMeters when
// unitMeters is empty.
func DistributeConsumption(building *Meter, reading *MeterReading, unitMeters []Meter, unitReadings map[uuid.UUID]*MeterReading) (*Distribution, error) {
	if len(unitMeters) == 0 {
		return nil, ErrNoUnitMeters
	}

	dist := &Distribution{
		BuildingMeterID: building.ID,
		ServiceID:       building.ServiceID,
		ReadingDate:     reading.ReadingDate,
		Total:           reading.Consumption,
		SumUnits:        decimal.Zero,
		Units:           make([]UnitAllocation, 0, len(unitMeters)),
	}

	for _, m := range unitMeters {
		metered := decimal.Zero
		if r, ok := unitReadings[m.ID]; ok && r != nil {
			metered = r.Consumption
		}
		dist.SumUnits = dist.SumUnits.Add(metered)
		dist.Units = append(dist.Units, UnitAllocation{
			MeterID: m.ID,
			UnitID:  m.UnitID,
			Metered: metered,
		})
	}

	dist.Shared = dist.Total.Sub(dist.SumUnits)
	dist.PerUnitShare = dist.Shared.Div(decimal.NewFromInt(int64(len(unitMeters))))
	for i := range dist.Units {
		dist.Units[i].Share = dist.PerUnitShare
		dist.Units[i].Allotted = dist.Units[i].Metered.Add(dist.PerUnitShare)
	}
	return dist, nil
}

// AllocationFor returns the allocation of a unit, if the distribution covers it
func (d *Distribution) AllocationFor(unitID uuid.UUID) (UnitAllocation, bool) {
	for _, u := range d.Units {
		if u.UnitID != nil && *u.UnitID == unitID {
			return u, true
		}
	}
	return UnitAllocation{}, false
}
