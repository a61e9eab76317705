package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/billing"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/leasehold/backend/internal/infrastructure/lock"
	"github.com/leasehold/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// ContractService manages lease contracts and the billable service catalog
type ContractService struct {
	contracts billing.ContractRepository
	services  billing.ServiceRepository
	locks     *lock.KeyedMutex
	logger    *zap.Logger
}

// NewContractService creates a new ContractService
func NewContractService(contracts billing.ContractRepository, services billing.ServiceRepository, logger *zap.Logger) *ContractService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContractService{
		contracts: contracts,
		services:  services,
		locks:     lock.NewKeyedMutex(),
		logger:    logger.Named("contract_service"),
	}
}

// CreateContract creates a contract. A unit cannot be leased by two active
// contracts over intersecting date ranges.
func (s *ContractService) CreateContract(ctx context.Context, input CreateContractInput) (*ContractDTO, error) {
	contract, err := billing.NewContract(input.UnitID, input.CustomerID, billing.RentType(input.RentType), input.BaseRent, input.StartDate, input.EndDate)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(input.UnitID.String())
	defer unlock()

	existing, err := s.contracts.FindActiveByUnit(ctx, input.UnitID)
	if err != nil {
		return nil, fmt.Errorf("load unit contracts: %w", err)
	}
	for i := range existing {
		if contract.Overlaps(&existing[i]) {
			return nil, shared.AlreadyExists(fmt.Sprintf("Unit is already leased from %s to %s",
				existing[i].StartDate.Format("2006-01-02"), existing[i].EndDate.Format("2006-01-02")))
		}
	}

	if err := s.contracts.Save(ctx, contract); err != nil {
		return nil, err
	}

	logger.With(ctx, s.logger).Info("Contract created",
		zap.String("contract_id", contract.ID.String()),
		zap.String("unit_id", contract.UnitID.String()),
		zap.String("rent_type", string(contract.RentType)),
	)
	return toContractDTO(contract), nil
}

// GetContract retrieves a contract by ID
func (s *ContractService) GetContract(ctx context.Context, id uuid.UUID) (*ContractDTO, error) {
	contract, err := s.contracts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toContractDTO(contract), nil
}

// TerminateContract deactivates a contract. Existing invoices are kept.
func (s *ContractService) TerminateContract(ctx context.Context, id uuid.UUID) (*ContractDTO, error) {
	contract, err := s.contracts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := contract.Terminate(); err != nil {
		return nil, err
	}
	if err := s.contracts.Save(ctx, contract); err != nil {
		return nil, err
	}

	logger.With(ctx, s.logger).Info("Contract terminated", zap.String("contract_id", id.String()))
	return toContractDTO(contract), nil
}

// CreateService adds a billable service
func (s *ContractService) CreateService(ctx context.Context, input CreateServiceInput) (*ServiceDTO, error) {
	service, err := billing.NewService(input.Name, billing.ServiceType(input.Type), input.DefaultPrice)
	if err != nil {
		return nil, err
	}
	if err := s.services.Save(ctx, service); err != nil {
		return nil, err
	}

	logger.With(ctx, s.logger).Info("Service created",
		zap.String("service_id", service.ID.String()),
		zap.String("name", service.Name),
	)
	return toServiceDTO(service), nil
}
