package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/apperrors"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/validation"
)

// CustomerService handles business logic related to customers.
type CustomerService struct {
	repo     repositories.CustomerRepository
	validate *validatorv10.Validate
	logger   *zap.Logger
}

// NewCustomerService creates a new CustomerService.
func NewCustomerService(repo repositories.CustomerRepository, validate *validatorv10.Validate, logger *zap.Logger) *CustomerService {
	return &CustomerService{repo: repo, validate: validate, logger: logger}
}

// ListCustomers retrieves all customers.
func (s *CustomerService) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	return s.repo.GetAll(ctx)
}

// GetCustomer retrieves a customer by ID.
func (s *CustomerService) GetCustomer(ctx context.Context, id uint) (*models.Customer, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateCustomer registers a customer, hashing the password before it is saved.
// An email that is already registered fails with a ConflictError.
func (s *CustomerService) CreateCustomer(ctx context.Context, req models.CreateCustomerRequest) (*models.Customer, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	email := req.Email

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, &apperrors.ConflictError{Resource: "customer", Field: "email", Value: email}
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	customer := &models.Customer{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       email,
		Password:    string(hashed),
		Address:     req.Address,
		PhoneNumber: req.PhoneNumber,
	}
	// the unique index still catches a concurrent registration of the same email
	if err := s.repo.Create(ctx, customer); err != nil {
		return nil, err
	}
	s.logger.Info("customer registered", zap.Uint("customer_id", customer.ID))
	return customer, nil
}

// UpdateCustomer applies the non-nil fields of req to an existing customer.
func (s *CustomerService) UpdateCustomer(ctx context.Context, id uint, req models.UpdateCustomerRequest) (*models.Customer, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.FirstName != nil {
		fields["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		fields["last_name"] = *req.LastName
	}
	if req.Address != nil {
		fields["address"] = *req.Address
	}
	if req.PhoneNumber != nil {
		fields["phone_number"] = *req.PhoneNumber
	}

	if err := s.repo.Update(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// DeleteCustomer deletes a customer by ID.
func (s *CustomerService) DeleteCustomer(ctx context.Context, id uint) error {
	return s.repo.Delete(ctx, id)
}
