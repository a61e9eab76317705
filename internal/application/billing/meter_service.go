package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/billing"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/leasehold/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// MeterService records meter readings and allocates building consumption.
// Every reading write runs under the meter lock and is followed by a
// recalculation of the meter's full reading history.
type MeterService struct {
	meters   billing.MeterRepository
	services billing.ServiceRepository
	logger   *zap.Logger
}

// NewMeterService creates a new MeterService
func NewMeterService(meters billing.MeterRepository, services billing.ServiceRepository, logger *zap.Logger) *MeterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeterService{
		meters:   meters,
		services: services,
		logger:   logger.Named("meter_service"),
	}
}

// RegisterMeter creates a meter linked to an existing service
func (s *MeterService) RegisterMeter(ctx context.Context, input RegisterMeterInput) (*MeterDTO, error) {
	if _, err := s.services.FindByID(ctx, input.ServiceID); err != nil {
		return nil, err
	}
	meter, err := billing.NewMeter(input.Code, billing.MeterScope(input.Scope), input.BuildingID, input.UnitID, input.ServiceID)
	if err != nil {
		return nil, err
	}
	if err := s.meters.Save(ctx, meter); err != nil {
		return nil, err
	}

	logger.With(ctx, s.logger).Info("Meter registered",
		zap.String("meter_id", meter.ID.String()),
		zap.String("code", meter.Code),
		zap.String("scope", string(meter.Scope)),
	)
	return toMeterDTO(meter), nil
}

// RecordReading stores a reading and re-derives the meter's consumption chain
func (s *MeterService) RecordReading(ctx context.Context, input RecordReadingInput) (*ReadingDTO, error) {
	if _, err := s.meters.FindByID(ctx, input.MeterID); err != nil {
		return nil, err
	}
	reading, err := billing.NewMeterReading(input.MeterID, input.ReadingDate, input.Current)
	if err != nil {
		return nil, err
	}

	var result *billing.MeterReading
	err = s.meters.WithMeterLock(ctx, input.MeterID, func(ctx context.Context, store billing.ReadingStore) error {
		if err := store.CreateReading(ctx, reading); err != nil {
			return err
		}
		readings, _, err := s.recalculate(ctx, store, input.MeterID)
		if err != nil {
			return err
		}
		result = findReading(readings, reading.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.With(ctx, s.logger).Info("Meter reading recorded",
		zap.String("meter_id", input.MeterID.String()),
		zap.Time("reading_date", result.ReadingDate),
		zap.String("consumption", result.Consumption.String()),
	)
	return toReadingDTO(result), nil
}

// UpdateReading changes the value or date of a reading and re-derives the chain
func (s *MeterService) UpdateReading(ctx context.Context, input UpdateReadingInput) (*ReadingDTO, error) {
	existing, err := s.meters.FindReadingByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if input.Current != nil && input.Current.IsNegative() {
		return nil, shared.InvalidInput("Reading value cannot be negative")
	}

	var result *billing.MeterReading
	err = s.meters.WithMeterLock(ctx, existing.MeterID, func(ctx context.Context, store billing.ReadingStore) error {
		// Re-read under the lock; the reading may have changed or gone since.
		reading, err := store.FindReadingByID(ctx, input.ID)
		if err != nil {
			return err
		}
		if input.Current != nil {
			reading.Current = *input.Current
		}
		if input.ReadingDate != nil {
			if input.ReadingDate.IsZero() {
				return shared.InvalidInput("Reading date is required")
			}
			reading.ReadingDate = billing.DateOnly(*input.ReadingDate)
		}
		reading.UpdatedAt = time.Now()
		if err := store.UpdateReading(ctx, reading); err != nil {
			return err
		}
		readings, _, err := s.recalculate(ctx, store, reading.MeterID)
		if err != nil {
			return err
		}
		result = findReading(readings, reading.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.With(ctx, s.logger).Info("Meter reading updated",
		zap.String("reading_id", input.ID.String()),
		zap.String("meter_id", existing.MeterID.String()),
	)
	return toReadingDTO(result), nil
}

// DeleteReading removes a reading and re-derives the chain of the remaining ones
func (s *MeterService) DeleteReading(ctx context.Context, id uuid.UUID) error {
	existing, err := s.meters.FindReadingByID(ctx, id)
	if err != nil {
		return err
	}

	err = s.meters.WithMeterLock(ctx, existing.MeterID, func(ctx context.Context, store billing.ReadingStore) error {
		if err := store.DeleteReading(ctx, id); err != nil {
			return err
		}
		_, _, err := s.recalculate(ctx, store, existing.MeterID)
		return err
	})
	if err != nil {
		return err
	}

	logger.With(ctx, s.logger).Info("Meter reading deleted",
		zap.String("reading_id", id.String()),
		zap.String("meter_id", existing.MeterID.String()),
	)
	return nil
}

// RecalculateConsumption re-derives previous and consumption values over the
// full reading history of a meter, persisting only the readings that changed.
func (s *MeterService) RecalculateConsumption(ctx context.Context, meterID uuid.UUID) (*RecalculationResult, error) {
	result := &RecalculationResult{MeterID: meterID}
	err := s.meters.WithMeterLock(ctx, meterID, func(ctx context.Context, store billing.ReadingStore) error {
		readings, changed, err := s.recalculate(ctx, store, meterID)
		if err != nil {
			return err
		}
		result.Readings = len(readings)
		result.Changed = changed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// recalculate re-derives the chain of meterID within the locked store and
// returns the full ordered history.
func (s *MeterService) recalculate(ctx context.Context, store billing.ReadingStore, meterID uuid.UUID) ([]*billing.MeterReading, int, error) {
	readings, err := store.ListByMeter(ctx, meterID)
	if err != nil {
		return nil, 0, fmt.Errorf("list readings: %w", err)
	}
	changed := billing.RecalculateReadings(readings)
	for _, r := range changed {
		r.UpdatedAt = time.Now()
		if err := store.UpdateReading(ctx, r); err != nil {
			return nil, 0, fmt.Errorf("update reading %s: %w", r.ID, err)
		}
	}
	if len(changed) > 0 {
		logger.With(ctx, s.logger).Debug("Consumption recalculated",
			zap.String("meter_id", meterID.String()),
			zap.Int("readings", len(readings)),
			zap.Int("changed", len(changed)),
		)
	}
	return readings, len(changed), nil
}

// DistributeBuildingConsumption splits the consumption of every building meter
// of buildingID with a reading on readingDate among the unit meters of the same
// service. The tenant is the one of the tenant context carried by ctx. A
// building meter without unit meters for its service yields no distribution.
// The result is a report; billing records are not touched.
func (s *MeterService) DistributeBuildingConsumption(ctx context.Context, buildingID uuid.UUID, readingDate time.Time) ([]billing.Distribution, error) {
	date := billing.DateOnly(readingDate)
	log := logger.With(ctx, s.logger).With(
		zap.String("building_id", buildingID.String()),
		zap.String("reading_date", date.Format(time.DateOnly)),
	)

	buildingMeters, err := s.meters.FindByBuilding(ctx, buildingID, billing.MeterScopeBuilding)
	if err != nil {
		return nil, fmt.Errorf("load building meters: %w", err)
	}
	if len(buildingMeters) == 0 {
		return []billing.Distribution{}, nil
	}
	unitMeters, err := s.meters.FindByBuilding(ctx, buildingID, billing.MeterScopeUnit)
	if err != nil {
		return nil, fmt.Errorf("load unit meters: %w", err)
	}

	unitsByService := make(map[uuid.UUID][]billing.Meter)
	meterIDs := make([]uuid.UUID, 0, len(buildingMeters)+len(unitMeters))
	for _, m := range buildingMeters {
		meterIDs = append(meterIDs, m.ID)
	}
	for _, m := range unitMeters {
		unitsByService[m.ServiceID] = append(unitsByService[m.ServiceID], m)
		meterIDs = append(meterIDs, m.ID)
	}

	readings, err := s.meters.ReadingsOn(ctx, meterIDs, date)
	if err != nil {
		return nil, fmt.Errorf("load readings: %w", err)
	}

	distributions := make([]billing.Distribution, 0, len(buildingMeters))
	for i := range buildingMeters {
		building := &buildingMeters[i]
		reading, ok := readings[building.ID]
		if !ok {
			continue
		}
		dist, err := billing.DistributeConsumption(building, reading, unitsByService[building.ServiceID], readings)
		if errors.Is(err, billing.ErrNoUnitMeters) {
			log.Debug("Building meter has no unit meters, skipping",
				zap.String("meter_id", building.ID.String()),
				zap.String("service_id", building.ServiceID.String()),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		distributions = append(distributions, *dist)
	}

	log.Info("Building consumption distributed", zap.Int("distributions", len(distributions)))
	return distributions, nil
}

func findReading(readings []*billing.MeterReading, id uuid.UUID) *billing.MeterReading {
	for _, r := range readings {
		if r.ID == id {
			return r
		}
	}
	return nil
}
