package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mrops-br/product-store/internal/app/dto"
	"github.com/mrops-br/product-store/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ProductService handles product use cases
type ProductService struct {
	repo                  domain.ProductRepository
	tracer                trace.Tracer
	logger                *slog.Logger
	productCreatedCounter metric.Int64Counter
	productOperations     metric.Int64Counter
}

// NewProductService creates a new product service
func NewProductService(
	repo domain.ProductRepository,
	tracer trace.Tracer,
	meter metric.Meter,
	logger *slog.Logger,
) *ProductService {
	productCreatedCounter, _ := meter.Int64Counter(
		"products.created.total",
		metric.WithDescription("Total number of products created"),
	)

	productOperations, _ := meter.Int64Counter(
		"products.operations",
		metric.WithDescription("Total number of product operations"),
	)

	return &ProductService{
		repo:                  repo,
		tracer:                tracer,
		logger:                logger,
		productCreatedCounter: productCreatedCounter,
		productOperations:     productOperations,
	}
}

func (s *ProductService) recordOperation(ctx context.Context, operation, result string) {
	s.productOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("result", result),
		),
	)
}

// fail marks the span, logs and counts a failed operation. A missing
// product is a warning, anything else an error.
func (s *ProductService) fail(ctx context.Context, span trace.Span, operation, msg string, err error, attrs ...any) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)

	result := "failure"
	if errors.Is(err, domain.ErrProductNotFound) {
		result = "not_found"
		s.logger.WarnContext(ctx, msg, attrs...)
	} else {
		s.logger.ErrorContext(ctx, msg, append(attrs, slog.String("error", err.Error()))...)
	}
	s.recordOperation(ctx, operation, result)
	return err
}

// CreateProduct creates a new product
func (s *ProductService) CreateProduct(ctx context.Context, req *dto.CreateProductRequest) (*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.CreateProduct")
	defer span.End()

	span.SetAttributes(
		attribute.String("product.name", req.Name),
		attribute.Float64("product.price", req.Price),
	)

	s.logger.InfoContext(ctx, "Creating product",
		slog.String("name", req.Name),
		slog.Float64("price", req.Price),
	)

	product, err := domain.NewProduct(req.Name, req.Description, req.Price)
	if err != nil {
		return nil, s.fail(ctx, span, "create", "Validation failed", err)
	}

	saved, err := s.repo.Save(ctx, product)
	if err != nil {
		return nil, s.fail(ctx, span, "create", "Failed to store product", err)
	}

	span.SetAttributes(attribute.Int64("product.id", saved.ID))
	s.productCreatedCounter.Add(ctx, 1)
	s.recordOperation(ctx, "create", "success")

	s.logger.InfoContext(ctx, "Product created successfully",
		slog.Int64("product_id", saved.ID),
	)

	span.SetStatus(codes.Ok, "Product created successfully")
	return dto.ToProductResponse(saved), nil
}

// GetProductByID retrieves a product by ID
func (s *ProductService) GetProductByID(ctx context.Context, id int64) (*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.GetProductByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("product.id", id))

	s.logger.InfoContext(ctx, "Getting product by ID",
		slog.Int64("product_id", id),
	)

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, span, "read", "Product not found", err, slog.Int64("product_id", id))
	}

	s.recordOperation(ctx, "read", "success")
	span.SetStatus(codes.Ok, "Product retrieved successfully")
	return dto.ToProductResponse(product), nil
}

// ListProducts retrieves one page of products
func (s *ProductService) ListProducts(ctx context.Context, req domain.PageRequest) (*dto.ProductPageResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.ListProducts")
	defer span.End()

	span.SetAttributes(
		attribute.Int("page.number", req.Page),
		attribute.Int("page.size", req.Size),
	)

	s.logger.InfoContext(ctx, "Listing products",
		slog.Int("page", req.Page),
		slog.Int("size", req.Size),
	)

	page, err := s.repo.FindAll(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, span, "list", "Failed to retrieve products", err)
	}

	span.SetAttributes(attribute.Int("product.count", len(page.Items)))
	s.recordOperation(ctx, "list", "success")

	s.logger.InfoContext(ctx, "Products listed successfully",
		slog.Int("count", len(page.Items)),
		slog.Int64("total", page.Total),
	)

	span.SetStatus(codes.Ok, "Products listed successfully")
	return dto.ToProductPageResponse(page), nil
}

// UpdateProduct replaces name, description and price of an existing product.
// The write goes through ProductRepository.Update, so a product deleted after the
// read is reported as not found instead of being recreated.
func (s *ProductService) UpdateProduct(ctx context.Context, id int64, req *dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.UpdateProduct")
	defer span.End()

	span.SetAttributes(attribute.Int64("product.id", id))

	s.logger.InfoContext(ctx, "Updating product",
		slog.Int64("product_id", id),
	)

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, span, "update", "Product not found", err, slog.Int64("product_id", id))
	}

	product.Name = req.Name
	product.Description = req.Description
	product.Price = req.Price
	if err := product.Validate(); err != nil {
		return nil, s.fail(ctx, span, "update", "Validation failed", err, slog.Int64("product_id", id))
	}

	saved, err := s.repo.Update(ctx, product)
	if err != nil {
		return nil, s.fail(ctx, span, "update", "Failed to store product", err, slog.Int64("product_id", id))
	}

	s.recordOperation(ctx, "update", "success")
	s.logger.InfoContext(ctx, "Product updated successfully",
		slog.Int64("product_id", id),
	)

	span.SetStatus(codes.Ok, "Product updated successfully")
	return dto.ToProductResponse(saved), nil
}

// DeleteProduct removes a product. Deleting an unknown id succeeds.
func (s *ProductService) DeleteProduct(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "ProductService.DeleteProduct")
	defer span.End()

	span.SetAttributes(attribute.Int64("product.id", id))

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return s.fail(ctx, span, "delete", "Failed to delete product", err, slog.Int64("product_id", id))
	}

	s.recordOperation(ctx, "delete", "success")
	s.logger.InfoContext(ctx, "Product deleted",
		slog.Int64("product_id", id),
	)

	span.SetStatus(codes.Ok, "Product deleted")
	return nil
}

// CountProducts returns the number of stored products
func (s *ProductService) CountProducts(ctx context.Context) (*dto.CountResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.CountProducts")
	defer span.End()

	n, err := s.repo.Count(ctx)
	if err != nil {
		return nil, s.fail(ctx, span, "count", "Failed to count products", err)
	}

	span.SetAttributes(attribute.Int64("product.total", n))
	s.recordOperation(ctx, "count", "success")

	span.SetStatus(codes.Ok, "Products counted")
	return &dto.CountResponse{Count: n}, nil
}
