// Package instrumented wraps a domain.ProductRepository with tracing,
// structured logging and metrics.
package instrumented

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mrops-br/product-store/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ProductRepository decorates another repository. Every call gets a span
// named ProductRepository.<Op>, a duration sample and, on failure, an error
// count. A missing product and a rejected argument are logged at WARN and
// not counted as errors.
type ProductRepository struct {
	next     domain.ProductRepository
	backend  string
	tracer   trace.Tracer
	logger   *slog.Logger
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

// NewProductRepository wraps next, reporting backend as db.system
func NewProductRepository(
	next domain.ProductRepository,
	backend string,
	tracer trace.Tracer,
	meter metric.Meter,
	logger *slog.Logger,
) *ProductRepository {
	errorCounter, _ := meter.Int64Counter(
		"products.repository.errors",
		metric.WithDescription("Total number of failed repository operations"),
	)

	duration, _ := meter.Float64Histogram(
		"products.repository.duration",
		metric.WithDescription("Repository operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &ProductRepository{
		next:     next,
		backend:  backend,
		tracer:   tracer,
		logger:   logger.With(slog.String("db.system", backend)),
		errors:   errorCounter,
		duration: duration,
	}
}

// Unwrap returns the decorated repository
func (r *ProductRepository) Unwrap() domain.ProductRepository {
	return r.next
}

func (r *ProductRepository) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", r.backend)),
	)
	span.SetAttributes(attrs...)
	return ctx, span, time.Now()
}

// callerError reports whether err was caused by the arguments rather than
// by the storage engine.
func callerError(err error) bool {
	return errors.Is(err, domain.ErrInvalidPageRequest) ||
		errors.Is(err, domain.ErrNilProduct) ||
		errors.Is(err, domain.ErrInvalidID)
}

func (r *ProductRepository) finish(ctx context.Context, span trace.Span, op string, started time.Time, err error) {
	elapsed := float64(time.Since(started).Microseconds()) / 1000

	result := "success"
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, domain.ErrProductNotFound):
		result = "not_found"
		span.RecordError(err)
		span.SetStatus(codes.Error, "Product not found")
		r.logger.WarnContext(ctx, "Product not found", slog.String("operation", op))
	case callerError(err):
		result = "invalid_request"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.WarnContext(ctx, "Repository operation rejected",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
	default:
		result = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.ErrorContext(ctx, "Repository operation failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		r.errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("db.system", r.backend),
			attribute.String("operation", op),
		))
	}

	r.duration.Record(ctx, elapsed, metric.WithAttributes(
		attribute.String("db.system", r.backend),
		attribute.String("operation", op),
		attribute.String("result", result),
	))
}

// Save stores the product
func (r *ProductRepository) Save(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	var attrs []attribute.KeyValue
	if product != nil {
		attrs = append(attrs,
			attribute.Int64("product.id", product.ID),
			attribute.String("product.name", product.Name),
		)
	}
	ctx, span, started := r.start(ctx, "Save", attrs...)
	defer span.End()

	saved, err := r.next.Save(ctx, product)
	r.finish(ctx, span, "Save", started, err)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("product.id", saved.ID))
	r.logger.DebugContext(ctx, "Product saved in repository",
		slog.Int64("product_id", saved.ID),
		slog.String("product_name", saved.Name),
	)
	return saved, nil
}

// Update overwrites an existing product
func (r *ProductRepository) Update(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	var attrs []attribute.KeyValue
	if product != nil {
		attrs = append(attrs,
			attribute.Int64("product.id", product.ID),
			attribute.String("product.name", product.Name),
		)
	}
	ctx, span, started := r.start(ctx, "Update", attrs...)
	defer span.End()

	updated, err := r.next.Update(ctx, product)
	r.finish(ctx, span, "Update", started, err)
	if err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "Product updated in repository",
		slog.Int64("product_id", updated.ID),
		slog.String("product_name", updated.Name),
	)
	return updated, nil
}

// FindByID retrieves a product by ID
func (r *ProductRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	ctx, span, started := r.start(ctx, "FindByID", attribute.Int64("product.id", id))
	defer span.End()

	product, err := r.next.FindByID(ctx, id)
	r.finish(ctx, span, "FindByID", started, err)
	if err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "Product found in repository",
		slog.Int64("product_id", id),
		slog.String("product_name", product.Name),
	)
	return product, nil
}

// FindAll retrieves one page of products
func (r *ProductRepository) FindAll(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	ctx, span, started := r.start(ctx, "FindAll",
		attribute.Int("page.number", req.Page),
		attribute.Int("page.size", req.Size),
	)
	defer span.End()

	page, err := r.next.FindAll(ctx, req)
	r.finish(ctx, span, "FindAll", started, err)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("product.count", len(page.Items)),
		attribute.Int64("product.total", page.Total),
	)
	r.logger.DebugContext(ctx, "Products retrieved from repository",
		slog.Int("count", len(page.Items)),
		slog.Int64("total", page.Total),
	)
	return page, nil
}

// DeleteByID removes a product
func (r *ProductRepository) DeleteByID(ctx context.Context, id int64) error {
	ctx, span, started := r.start(ctx, "DeleteByID", attribute.Int64("product.id", id))
	defer span.End()

	err := r.next.DeleteByID(ctx, id)
	r.finish(ctx, span, "DeleteByID", started, err)
	return err
}

// Count returns the number of stored products
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	ctx, span, started := r.start(ctx, "Count")
	defer span.End()

	n, err := r.next.Count(ctx)
	r.finish(ctx, span, "Count", started, err)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("product.total", n))
	return n, nil
}

// ExistsByID reports whether a product exists
func (r *ProductRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	ctx, span, started := r.start(ctx, "ExistsByID", attribute.Int64("product.id", id))
	defer span.End()

	ok, err := r.next.ExistsByID(ctx, id)
	r.finish(ctx, span, "ExistsByID", started, err)
	return ok, err
}

var _ domain.ProductRepository = (*ProductRepository)(nil)
