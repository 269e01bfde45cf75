package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/blob"
	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/service/sales"
)

// SalesService is the sales engine surface exposed over HTTP.
type SalesService interface {
	CreateSale(ctx context.Context, req models.CreateSaleRequest) (sales.CreateSaleResult, error)
	ConfigureBags(ctx context.Context, req models.ConfigureBagsRequest) (sales.ConfigureBagsResult, error)
	UpdateStatus(ctx context.Context, saleID int64, status string) (sales.MutationResult, error)
	UpdateDraft(ctx context.Context, req models.UpdateDraftRequest) (sales.MutationResult, error)
	GetSale(ctx context.Context, saleID int64) (models.SaleDetail, error)
	ListSales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, models.Pagination, error)
	ListAvailableOperations(ctx context.Context, filter models.OperationFilter) ([]models.AvailableOperation, error)
	ListSizes(ctx context.Context) ([]models.Size, error)
}

// DocumentExporter generates and serves delivery documents.
type DocumentExporter interface {
	Export(ctx context.Context, saleID int64) (sales.MutationResult, error)
	Open(ctx context.Context, saleID int64) (blob.Info, io.ReadCloser, error)
}

// EventDispatcher delivers committed events to collaborators.
type EventDispatcher interface {
	Dispatch(ctx context.Context, events ...models.Event) error
}

// SalesHandler adapts the sales engine to HTTP.
type SalesHandler struct {
	svc    SalesService
	docs   DocumentExporter
	events EventDispatcher
	logger *zap.Logger

	inflight sync.WaitGroup
}

// NewSalesHandler constructs the HTTP handler adapter. docs and events may be nil.
func NewSalesHandler(svc SalesService, docs DocumentExporter, events EventDispatcher, logger *zap.Logger) *SalesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SalesHandler{svc: svc, docs: docs, events: events, logger: logger}
}

// Register mounts the sales routes on r.
func (h *SalesHandler) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.GET("/sales/operations", h.ListOperations)
	api.POST("/sales", h.CreateSale)
	api.GET("/sales", h.ListSales)
	api.GET("/sales/:id", h.GetSale)
	api.PUT("/sales/:id/bags", h.ConfigureBags)
	api.PATCH("/sales/:id", h.UpdateDraft)
	api.PATCH("/sales/:id/status", h.UpdateStatus)
	api.POST("/sales/:id/document", h.ExportDocument)
	api.GET("/sales/:id/document", h.DownloadDocument)
	api.GET("/sizes", h.ListSizes)
}

// ListOperations serves GET /api/sales/operations.
func (h *SalesHandler) ListOperations(c *gin.Context) {
	filter := models.OperationFilter{
		DateFrom: c.Query("dateFrom"),
		DateTo:   c.Query("dateTo"),
	}
	if raw := c.Query("processed"); raw != "" {
		processed, err := strconv.ParseBool(raw)
		if err != nil {
			h.badRequest(c, "processed must be true or false")
			return
		}
		filter.Processed = processed
	}

	ops, err := h.svc.ListAvailableOperations(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "operations": nonNil(ops)})
}

// CreateSale serves POST /api/sales.
func (h *SalesHandler) CreateSale(c *gin.Context) {
	var req models.CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	res, err := h.svc.CreateSale(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"sale":       res.Sale,
		"operations": res.Operations,
		"totals":     res.Totals,
	})
	h.dispatch(c, res.Events)
}

// ListSales serves GET /api/sales.
func (h *SalesHandler) ListSales(c *gin.Context) {
	filter := models.SaleFilter{
		DateFrom: c.Query("dateFrom"),
		DateTo:   c.Query("dateTo"),
	}
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseSaleStatus(raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		filter.Status = &status
	}
	var err error
	if filter.Page, err = intQuery(c, "page"); err != nil {
		h.badRequest(c, "page must be an integer")
		return
	}
	if filter.PageSize, err = intQuery(c, "pageSize"); err != nil {
		h.badRequest(c, "pageSize must be an integer")
		return
	}

	list, page, err := h.svc.ListSales(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sales": nonNil(list), "pagination": page})
}

// GetSale serves GET /api/sales/:id.
func (h *SalesHandler) GetSale(c *gin.Context) {
	id, ok := h.saleID(c)
	if !ok {
		return
	}
	detail, err := h.svc.GetSale(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"sale":            detail.Sale,
		"bags":            nonNil(detail.Bags),
		"operationClaims": nonNil(detail.OperationClaims),
	})
}

// ConfigureBags serves PUT /api/sales/:id/bags.
func (h *SalesHandler) ConfigureBags(c *gin.Context) {
	id, ok := h.saleID(c)
	if !ok {
		return
	}
	var req models.ConfigureBagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	req.SaleID = id

	res, err := h.svc.ConfigureBags(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sale": res.Sale, "bags": res.Bags})
	h.dispatch(c, res.Events)
}

// UpdateDraft serves PATCH /api/sales/:id.
func (h *SalesHandler) UpdateDraft(c *gin.Context) {
	id, ok := h.saleID(c)
	if !ok {
		return
	}
	var req models.UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	req.SaleID = id

	res, err := h.svc.UpdateDraft(c.Request.Context(), req)
	h.respondMutation(c, res, err)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus serves PATCH /api/sales/:id/status.
func (h *SalesHandler) UpdateStatus(c *gin.Context) {
	id, ok := h.saleID(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	res, err := h.svc.UpdateStatus(c.Request.Context(), id, req.Status)
	h.respondMutation(c, res, err)
}

// ExportDocument serves POST /api/sales/:id/document.
func (h *SalesHandler) ExportDocument(c *gin.Context) {
	id, ok := h.saleID(c)
	if !ok {
		return
	}
	if h.docs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "document export is not configured"})
		return
	}

	res, err := h.docs.Export(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pdfPath": res.Sale.DocumentPath, "sale": res.Sale})
	h.dispatch(c, res.Events)
}

// DownloadDocument serves GET /api/sales/:id/document.
func (h *SalesHandler) DownloadDocument(c *gin.Context) {
	id, ok := h.saleID(c)
	if !ok {
		return
	}
	if h.docs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "document export is not configured"})
		return
	}

	info, rc, err := h.docs.Open(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer rc.Close()

	size := info.Size
	if size <= 0 {
		size = -1
	}
	c.DataFromReader(http.StatusOK, size, info.ContentType, rc, map[string]string{
		"Content-Disposition": `attachment; filename="` + path.Base(info.Key) + `"`,
	})
}

// ListSizes serves GET /api/sizes.
func (h *SalesHandler) ListSizes(c *gin.Context) {
	sizes, err := h.svc.ListSizes(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sizes": nonNil(sizes)})
}

func (h *SalesHandler) respondMutation(c *gin.Context, res sales.MutationResult, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sale": res.Sale})
	h.dispatch(c, res.Events)
}

// dispatch delivers events of a committed change in the background, after the
// response is written. Delivery failures are only logged.
func (h *SalesHandler) dispatch(c *gin.Context, events []models.Event) {
	if h.events == nil || len(events) == 0 {
		return
	}
	ctx := context.WithoutCancel(c.Request.Context())
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		if err := h.events.Dispatch(ctx, events...); err != nil {
			h.logger.Warn("event dispatch incomplete", zap.Error(err))
		}
	}()
}

// Wait blocks until every background event dispatch has returned.
func (h *SalesHandler) Wait() {
	h.inflight.Wait()
}

func (h *SalesHandler) saleID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "sale id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *SalesHandler) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

// fail maps error kinds onto HTTP statuses. Internal details stay in the logs.
func (h *SalesHandler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"success": false, "error": msg})
}

// StatusFor returns the HTTP status of an engine error.
func StatusFor(err error) int {
	switch kind := models.KindOf(err); {
	case errors.Is(kind, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(kind, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(kind, models.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
