package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/billing"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/leasehold/backend/internal/infrastructure/lock"
	"github.com/leasehold/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormMeterRepository implements billing.MeterRepository
type GormMeterRepository struct {
	db    DBProvider
	locks *lock.KeyedMutex
}

// NewGormMeterRepository creates a new GormMeterRepository. locks serializes
// writers of one meter inside this process and may be shared between repositories.
func NewGormMeterRepository(db DBProvider, locks *lock.KeyedMutex) *GormMeterRepository {
	if locks == nil {
		locks = lock.NewKeyedMutex()
	}
	return &GormMeterRepository{db: db, locks: locks}
}

// FindByID finds a meter by its ID
func (r *GormMeterRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Meter, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var model models.MeterModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Meter not found")
	}
	return model.ToDomain(), nil
}

// FindByBuilding returns the active meters of a building with the given scope, ordered by code
func (r *GormMeterRepository) FindByBuilding(ctx context.Context, buildingID uuid.UUID, scope billing.MeterScope) ([]billing.Meter, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var meterModels []models.MeterModel
	err = db.Where("building_id = ? AND scope = ? AND active = ?", buildingID, scope, true).
		Order("code ASC").
		Find(&meterModels).Error
	if err != nil {
		return nil, err
	}
	meters := make([]billing.Meter, len(meterModels))
	for i := range meterModels {
		meters[i] = *meterModels[i].ToDomain()
	}
	return meters, nil
}

// ReadingsOn returns the readings recorded on date for meterIDs, keyed by meter ID
func (r *GormMeterRepository) ReadingsOn(ctx context.Context, meterIDs []uuid.UUID, date time.Time) (map[uuid.UUID]*billing.MeterReading, error) {
	result := make(map[uuid.UUID]*billing.MeterReading, len(meterIDs))
	if len(meterIDs) == 0 {
		return result, nil
	}
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var readingModels []models.MeterReadingModel
	err = db.Where("meter_id IN ? AND reading_date = ?", meterIDs, billing.DateOnly(date)).
		Find(&readingModels).Error
	if err != nil {
		return nil, err
	}
	for i := range readingModels {
		reading := readingModels[i].ToDomain()
		result[reading.MeterID] = reading
	}
	return result, nil
}

// Save creates or updates a meter. Meter codes are unique within a tenant.
func (r *GormMeterRepository) Save(ctx context.Context, meter *billing.Meter) error {
	db, err := r.db.DB(ctx)
	if err != nil {
		return err
	}
	if err := db.Save(models.MeterModelFromDomain(meter)).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.AlreadyExists("Meter code " + meter.Code + " is already in use")
		}
		return err
	}
	return nil
}

// WithMeterLock runs fn in a transaction that holds the meter's lock: an in-process
// mutex per (database, meter) and, on postgres, a row lock on the meter. The store
// given to fn is bound to the transaction.
func (r *GormMeterRepository) WithMeterLock(ctx context.Context, meterID uuid.UUID, fn func(ctx context.Context, store billing.ReadingStore) error) error {
	unlock := r.locks.Lock(databaseKey(ctx) + "/" + meterID.String())
	defer unlock()

	db, err := r.db.DB(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		query := tx
		if tx.Dialector.Name() == "postgres" {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var meter models.MeterModel
		if err := query.Select("id").First(&meter, "id = ?", meterID).Error; err != nil {
			return notFound(err, "Meter not found")
		}
		return fn(ctx, &gormReadingStore{db: tx})
	})
}

// ListByMeter returns all readings of a meter ordered by date
func (r *GormMeterRepository) ListByMeter(ctx context.Context, meterID uuid.UUID) ([]*billing.MeterReading, error) {
	store, err := r.store(ctx)
	if err != nil {
		return nil, err
	}
	return store.ListByMeter(ctx, meterID)
}

// FindReadingByID finds a reading by its ID
func (r *GormMeterRepository) FindReadingByID(ctx context.Context, id uuid.UUID) (*billing.MeterReading, error) {
	store, err := r.store(ctx)
	if err != nil {
		return nil, err
	}
	return store.FindReadingByID(ctx, id)
}

// CreateReading inserts a reading outside of any meter lock
func (r *GormMeterRepository) CreateReading(ctx context.Context, reading *billing.MeterReading) error {
	store, err := r.store(ctx)
	if err != nil {
		return err
	}
	return store.CreateReading(ctx, reading)
}

// UpdateReading updates a reading outside of any meter lock
func (r *GormMeterRepository) UpdateReading(ctx context.Context, reading *billing.MeterReading) error {
	store, err := r.store(ctx)
	if err != nil {
		return err
	}
	return store.UpdateReading(ctx, reading)
}

// DeleteReading deletes a reading outside of any meter lock
func (r *GormMeterRepository) DeleteReading(ctx context.Context, id uuid.UUID) error {
	store, err := r.store(ctx)
	if err != nil {
		return err
	}
	return store.DeleteReading(ctx, id)
}

func (r *GormMeterRepository) store(ctx context.Context) (*gormReadingStore, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	return &gormReadingStore{db: db}, nil
}

// gormReadingStore implements billing.ReadingStore on one connection or transaction
type gormReadingStore struct {
	db *gorm.DB
}

func (s *gormReadingStore) ListByMeter(ctx context.Context, meterID uuid.UUID) ([]*billing.MeterReading, error) {
	var readingModels []models.MeterReadingModel
	err := s.db.WithContext(ctx).
		Where("meter_id = ?", meterID).
		Order("reading_date ASC").
		Find(&readingModels).Error
	if err != nil {
		return nil, err
	}
	readings := make([]*billing.MeterReading, len(readingModels))
	for i := range readingModels {
		readings[i] = readingModels[i].ToDomain()
	}
	return readings, nil
}

func (s *gormReadingStore) FindReadingByID(ctx context.Context, id uuid.UUID) (*billing.MeterReading, error) {
	var model models.MeterReadingModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Meter reading not found")
	}
	return model.ToDomain(), nil
}

func (s *gormReadingStore) CreateReading(ctx context.Context, reading *billing.MeterReading) error {
	err := s.db.WithContext(ctx).Create(models.MeterReadingModelFromDomain(reading)).Error
	if isDuplicateKey(err) {
		return shared.AlreadyExists("A reading already exists for this meter on " + reading.ReadingDate.Format(time.DateOnly))
	}
	return err
}

func (s *gormReadingStore) UpdateReading(ctx context.Context, reading *billing.MeterReading) error {
	result := s.db.WithContext(ctx).
		Model(&models.MeterReadingModel{}).
		Where("id = ?", reading.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(models.MeterReadingModelFromDomain(reading))
	if isDuplicateKey(result.Error) {
		return shared.AlreadyExists("A reading already exists for this meter on " + reading.ReadingDate.Format(time.DateOnly))
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NotFound("Meter reading not found")
	}
	return nil
}

func (s *gormReadingStore) DeleteReading(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.MeterReadingModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NotFound("Meter reading not found")
	}
	return nil
}
