// Package documents archives delivery documents of confirmed sales in the blob store.
package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/blob"
	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/service/sales"
)

// DefaultPrefix is the key prefix documents are stored under.
const DefaultPrefix = "documents"

// Renderer turns the provenance view of a sale into a document.
type Renderer interface {
	Render(w io.Writer, detail models.SaleDetail) error
	ContentType() string
	Extension() string
}

// JSONRenderer writes the sale detail as indented JSON. Downstream PDF generation
// consumes this shape.
type JSONRenderer struct{}

func (JSONRenderer) Render(w io.Writer, detail models.SaleDetail) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(detail)
}

func (JSONRenderer) ContentType() string { return "application/json" }
func (JSONRenderer) Extension() string   { return ".json" }

// SaleService is the part of the sales engine the exporter needs.
type SaleService interface {
	GetSale(ctx context.Context, saleID int64) (models.SaleDetail, error)
	AttachDocument(ctx context.Context, saleID int64, path string) (sales.MutationResult, error)
}

// Exporter renders a sale, stores the document and records its key on the sale.
type Exporter struct {
	sales    SaleService
	store    blob.Store
	renderer Renderer
	prefix   string
	logger   *zap.Logger
	now      func() time.Time
}

// NewExporter wires an exporter. A nil renderer means JSON.
func NewExporter(svc SaleService, store blob.Store, renderer Renderer, prefix string, logger *zap.Logger) *Exporter {
	if renderer == nil {
		renderer = JSONRenderer{}
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		sales:    svc,
		store:    store,
		renderer: renderer,
		prefix:   prefix,
		logger:   logger,
		now:      time.Now,
	}
}

// Key returns the object key for a sale document created at t, e.g.
// documents/VAV-000001-1714728600.json.
func (e *Exporter) Key(saleNumber string, t time.Time) string {
	return path.Join(e.prefix, saleNumber+"-"+strconv.FormatInt(t.Unix(), 10)+e.renderer.Extension())
}

// Export generates the delivery document of a confirmed or completed sale.
func (e *Exporter) Export(ctx context.Context, saleID int64) (sales.MutationResult, error) {
	detail, err := e.sales.GetSale(ctx, saleID)
	if err != nil {
		return sales.MutationResult{}, err
	}
	if detail.Sale.IsDraft() {
		return sales.MutationResult{}, fmt.Errorf("%w: sale %s is still draft; confirm it before issuing documents", models.ErrConflict, detail.Sale.SaleNumber)
	}

	var buf bytes.Buffer
	if err := e.renderer.Render(&buf, detail); err != nil {
		return sales.MutationResult{}, fmt.Errorf("%w: render document for %s: %v", models.ErrInternal, detail.Sale.SaleNumber, err)
	}

	key := e.Key(detail.Sale.SaleNumber, e.now())
	info, err := e.store.Put(ctx, key, &buf, blob.PutOptions{
		ContentType: e.renderer.ContentType(),
		Metadata:    map[string]string{"sale-number": detail.Sale.SaleNumber},
	})
	if err != nil {
		return sales.MutationResult{}, fmt.Errorf("%w: store document %s: %v", models.ErrInternal, key, err)
	}

	res, err := e.sales.AttachDocument(ctx, saleID, info.Key)
	if err != nil {
		return sales.MutationResult{}, err
	}
	e.logger.Info("delivery document stored",
		zap.String("sale_number", detail.Sale.SaleNumber),
		zap.String("key", info.Key),
		zap.String("driver", string(e.store.Driver())),
		zap.Int64("size", info.Size))
	return res, nil
}

// Open streams the stored delivery document of a sale. A sale without a document, or
// whose document is gone from the store, is NotFound. The caller closes the reader.
func (e *Exporter) Open(ctx context.Context, saleID int64) (blob.Info, io.ReadCloser, error) {
	detail, err := e.sales.GetSale(ctx, saleID)
	if err != nil {
		return blob.Info{}, nil, err
	}
	key := detail.Sale.DocumentPath
	if key == "" {
		return blob.Info{}, nil, fmt.Errorf("%w: sale %s has no delivery document", models.ErrNotFound, detail.Sale.SaleNumber)
	}

	info, rc, err := e.store.Get(ctx, key)
	switch {
	case errors.Is(err, blob.ErrNotFound):
		e.logger.Warn("delivery document missing from store",
			zap.String("sale_number", detail.Sale.SaleNumber),
			zap.String("key", key))
		return blob.Info{}, nil, fmt.Errorf("%w: document %s of sale %s", models.ErrNotFound, key, detail.Sale.SaleNumber)
	case err != nil:
		return blob.Info{}, nil, fmt.Errorf("%w: read document %s: %v", models.ErrInternal, key, err)
	}
	if info.ContentType == "" {
		info.ContentType = "application/octet-stream"
	}
	return info, rc, nil
}
