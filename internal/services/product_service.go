package services

import (
	"context"

	validatorv10 "github.com/go-playground/validator/v10"

	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/validation"
)

// ProductService handles business logic related to products.
type ProductService struct {
	repo     repositories.ProductRepository
	validate *validatorv10.Validate
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository, validate *validatorv10.Validate) *ProductService {
	return &ProductService{
		repo:     repo,
		validate: validate,
	}
}

// ListProducts retrieves all products, or only those whose active flag equals *active.
func (s *ProductService) ListProducts(ctx context.Context, active *bool) ([]models.Product, error) {
	if active != nil {
		return s.repo.GetByActive(ctx, *active)
	}
	return s.repo.GetAll(ctx)
}

// GetProduct retrieves a single product by its ID.
func (s *ProductService) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateProduct creates a new product. Products are active unless the request says otherwise.
func (s *ProductService) CreateProduct(ctx context.Context, req models.CreateProductRequest) (*models.Product, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Inventory:   req.Inventory,
		ImageURL:    req.ImageURL,
		IsActive:    true,
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateProduct applies the non-nil fields of req to an existing product.
// Only those columns are written, so a concurrent order's inventory
// decrement is never overwritten by an edit that leaves inventory alone.
func (s *ProductService) UpdateProduct(ctx context.Context, id uint, req models.UpdateProductRequest) (*models.Product, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Price != nil {
		fields["price"] = *req.Price
	}
	if req.Inventory != nil {
		fields["inventory"] = *req.Inventory
	}
	if req.ImageURL != nil {
		fields["image_url"] = *req.ImageURL
	}
	if req.IsActive != nil {
		fields["is_active"] = *req.IsActive
	}

	if err := s.repo.Update(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// DeleteProduct deletes a product by its ID.
func (s *ProductService) DeleteProduct(ctx context.Context, id uint) error {
	return s.repo.Delete(ctx, id)
}

// DecreaseInventory removes quantity units from a product's stock.
func (s *ProductService) DecreaseInventory(ctx context.Context, id uint, quantity int) (*models.Product, error) {
	return s.repo.DecreaseInventory(ctx, id, quantity)
}
