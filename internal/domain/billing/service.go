package billing

import (
	"strings"

	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ServiceType distinguishes flat recurring fees from metered utilities
type ServiceType string

const (
	ServiceTypeFixed   ServiceType = "fixed"
	ServiceTypeMetered ServiceType = "metered"
)

// Service is a billable service offered by the tenant (cleaning, water, electricity, ...)
type Service struct {
	shared.BaseAggregateRoot
	Name         string
	Type         ServiceType
	DefaultPrice decimal.Decimal // flat fee for fixed services, price per unit for metered ones
	Active       bool
}

// NewService creates an active service
func NewService(name string, serviceType ServiceType, price decimal.Decimal) (*Service, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.InvalidInput("Service name cannot be empty")
	}
	if serviceType != ServiceTypeFixed && serviceType != ServiceTypeMetered {
		return nil, shared.InvalidInput("Unknown service type")
	}
	if price.IsNegative() {
		return nil, shared.InvalidInput("Service price cannot be negative")
	}
	return &Service{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Type:              serviceType,
		DefaultPrice:      price,
		Active:            true,
	}, nil
}

// ServiceLine builds the invoice line for a fixed-fee service: quantity 1 at the default price
func (s *Service) ServiceLine() InvoiceLine {
	line := NewInvoiceLine(LineTypeService, s.Name, decimal.NewFromInt(1), s.DefaultPrice)
	id := s.ID
	line.ServiceID = &id
	return line
}
