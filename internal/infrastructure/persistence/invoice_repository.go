package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/billing"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/leasehold/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInvoiceRepository implements billing.InvoiceRepository
type GormInvoiceRepository struct {
	db DBProvider
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db DBProvider) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

func preloadLines(db *gorm.DB) *gorm.DB {
	return db.Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

// FindByID loads an invoice with its lines
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var model models.InvoiceModel
	if err := preloadLines(db).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Invoice not found")
	}
	return model.ToDomain(), nil
}

// List returns one page of invoices matching filter and the total number of matches
func (r *GormInvoiceRepository) List(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, int64, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := applyInvoiceFilter(db.Model(&models.InvoiceModel{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortField := ValidateSortField(filter.OrderBy, InvoiceSortFields, "created_at")
	sortOrder := ValidateSortOrder(filter.OrderDir)

	var invoiceModels []models.InvoiceModel
	err = preloadLines(applyInvoiceFilter(db, filter)).
		Order(sortField + " " + sortOrder).
		Order("id ASC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&invoiceModels).Error
	if err != nil {
		return nil, 0, err
	}

	invoices := make([]billing.Invoice, len(invoiceModels))
	for i := range invoiceModels {
		invoices[i] = *invoiceModels[i].ToDomain()
	}
	return invoices, total, nil
}

func applyInvoiceFilter(query *gorm.DB, filter billing.InvoiceFilter) *gorm.DB {
	if filter.ContractID != nil {
		query = query.Where("contract_id = ?", *filter.ContractID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		query = query.Where("period_start >= ?", billing.DateOnly(*filter.From))
	}
	if filter.To != nil {
		query = query.Where("period_start < ?", billing.DateOnly(*filter.To))
	}
	return query
}

// ExistsForPeriod reports whether the contract already has an invoice starting at periodStart
func (r *GormInvoiceRepository) ExistsForPeriod(ctx context.Context, contractID uuid.UUID, periodStart time.Time) (bool, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return false, err
	}
	var count int64
	err = db.Model(&models.InvoiceModel{}).
		Where("contract_id = ? AND period_start = ?", contractID, billing.DateOnly(periodStart)).
		Count(&count).Error
	return count > 0, err
}

// NumbersWithPrefix returns every invoice number starting with prefix
func (r *GormInvoiceRepository) NumbersWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var numbers []string
	err = db.Model(&models.InvoiceModel{}).
		Where(`invoice_number LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%").
		Pluck("invoice_number", &numbers).Error
	return numbers, err
}

// Create inserts the invoice and its lines in one transaction
func (r *GormInvoiceRepository) Create(ctx context.Context, invoice *billing.Invoice) error {
	db, err := r.db.DB(ctx)
	if err != nil {
		return err
	}
	model := models.InvoiceModelFromDomain(invoice)
	lines := model.Lines
	model.Lines = nil

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(model).Error; err != nil {
			return err
		}
		if len(lines) > 0 {
			return tx.Create(&lines).Error
		}
		return nil
	})
	if isDuplicateKey(err) {
		return shared.AlreadyExists(fmt.Sprintf("Invoice %s or an invoice for this contract and period already exists", invoice.InvoiceNumber))
	}
	return err
}

// Save updates the invoice and replaces its lines. The stored version must be the
// one the invoice was loaded with, i.e. one below its current version.
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	db, err := r.db.DB(ctx)
	if err != nil {
		return err
	}
	model := models.InvoiceModelFromDomain(invoice)
	lines := model.Lines
	model.Lines = nil

	return db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.InvoiceModel{}).
			Where("id = ? AND version = ?", invoice.ID, invoice.Version-1).
			Select("*").
			Omit("id", "created_at", clause.Associations).
			Updates(model)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&models.InvoiceLineModel{}).Error; err != nil {
			return err
		}
		if len(lines) > 0 {
			return tx.Create(&lines).Error
		}
		return nil
	})
}

// Delete removes an invoice and its lines
func (r *GormInvoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db, err := r.db.DB(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", id).Delete(&models.InvoiceLineModel{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.InvoiceModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NotFound("Invoice not found")
		}
		return nil
	})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
