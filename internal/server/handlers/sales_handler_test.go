package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	blobmemory "github.com/mamadbah2/shellsale/internal/blob/memory"
	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/repository/memory"
	"github.com/mamadbah2/shellsale/internal/service/documents"
	"github.com/mamadbah2/shellsale/internal/service/sales"
)

func ptr[T any](v T) *T { return &v }

type captured struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (c *captured) Dispatch(_ context.Context, events ...models.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
	return c.err
}

func (c *captured) types() []models.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.EventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	engine  *gin.Engine
	handler *SalesHandler
	svc     *sales.Service
	events  *captured
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	require.NoError(t, store.SeedCatalog(context.Background(), models.Catalog{
		Sizes: []models.Size{
			{ID: 1, Code: "T3", Name: "Taglia 3", MinAnimalsPerKg: ptr[int64](400), MaxAnimalsPerKg: ptr[int64](600)},
		},
		Baskets: []models.Basket{{ID: 10, PhysicalNumber: 7, FlupsyID: 1}},
		Operations: []models.Operation{
			{ID: 101, Type: models.OperationTypeSaleHarvest, BasketID: 10, Date: "2024-05-02", AnimalCount: ptr[int64](5000), TotalWeight: ptr(10.0), AnimalsPerKg: ptr(500.0), SizeID: ptr[int64](1)},
			{ID: 102, Type: models.OperationTypeSaleHarvest, BasketID: 10, Date: "2024-05-02", AnimalCount: ptr[int64](2000), TotalWeight: ptr(4.0), AnimalsPerKg: ptr(500.0)},
		},
	}))

	logger := zaptest.NewLogger(t)
	svc := sales.NewService(store, nil, logger)
	docs := documents.NewExporter(svc, blobmemory.New(), nil, "", logger)
	events := &captured{}

	handler := NewSalesHandler(svc, docs, events, logger)
	engine := gin.New()
	handler.Register(engine)
	return &harness{engine: engine, handler: handler, svc: svc, events: events}
}

func (h *harness) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	h.handler.Wait()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func bagsBody() map[string]any {
	return map[string]any{
		"bags": []map[string]any{{
			"sizeCode":         "T3",
			"animalCount":      4000,
			"originalWeight":   10,
			"weightLoss":       1.5,
			"referenceDensity": 500,
			"allocations": []map[string]any{{
				"sourceOperationId": 101,
				"sourceBasketId":    10,
				"allocatedAnimals":  4000,
				"allocatedWeight":   8.5,
				"sourceDensity":     500,
				"sourceSizeCode":    "T3",
			}},
		}},
	}
}

func (h *harness) createSale(t *testing.T, ops ...int64) int64 {
	t.Helper()
	rec, body := h.do(t, http.MethodPost, "/api/sales", map[string]any{
		"operationIds": ops,
		"customer":     map[string]any{"name": "Pescheria Adriatica"},
		"saleDate":     "2024-05-03",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return int64(body["sale"].(map[string]any)["id"].(float64))
}

func TestSaleWorkflow(t *testing.T) {
	h := newHarness(t)

	rec, body := h.do(t, http.MethodPost, "/api/sales", map[string]any{"operationIds": []int64{101}})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, body["success"])
	sale := body["sale"].(map[string]any)
	assert.Equal(t, "VAV-000001", sale["saleNumber"])
	assert.Equal(t, "draft", sale["status"])
	assert.Len(t, body["operations"], 1)
	id := int64(sale["id"].(float64))

	rec, body = h.do(t, http.MethodPut, fmt.Sprintf("/api/sales/%d/bags", id), bagsBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bags := body["bags"].([]any)
	require.Len(t, bags, 1)
	bag := bags[0].(map[string]any)
	assert.Equal(t, 8.5, bag["totalWeight"])
	assert.Equal(t, 475.0, bag["animalsPerKg"])

	rec, body = h.do(t, http.MethodPatch, fmt.Sprintf("/api/sales/%d", id), map[string]any{"notes": " fragile "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "fragile", body["sale"].(map[string]any)["notes"])

	rec, _ = h.do(t, http.MethodPatch, fmt.Sprintf("/api/sales/%d/status", id), map[string]any{"status": "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body = h.do(t, http.MethodPost, fmt.Sprintf("/api/sales/%d/document", id), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Regexp(t, `^documents/VAV-000001-\d+\.json$`, body["pdfPath"])

	rec, body = h.do(t, http.MethodGet, fmt.Sprintf("/api/sales/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirmed", body["sale"].(map[string]any)["status"])
	assert.Len(t, body["bags"], 1)
	claims := body["operationClaims"].([]any)
	require.Len(t, claims, 1)
	assert.Equal(t, 7.0, claims[0].(map[string]any)["basketPhysicalNumber"])

	assert.Equal(t, []models.EventType{
		models.EventSaleCreated,
		models.EventBagsConfigured,
		models.EventDraftUpdated,
		models.EventStatusChanged,
		models.EventDocumentStored,
	}, h.events.types())
}

func TestErrorStatusMapping(t *testing.T) {
	h := newHarness(t)
	id := h.createSale(t, 101)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"malformed json", http.MethodPost, "/api/sales", "{", http.StatusBadRequest},
		{"empty operations", http.MethodPost, "/api/sales", map[string]any{"operationIds": []int64{}}, http.StatusBadRequest},
		{"unknown operation", http.MethodPost, "/api/sales", map[string]any{"operationIds": []int64{999}}, http.StatusNotFound},
		{"claimed operation", http.MethodPost, "/api/sales", map[string]any{"operationIds": []int64{101}}, http.StatusConflict},
		{"bad id", http.MethodGet, "/api/sales/abc", nil, http.StatusBadRequest},
		{"unknown sale", http.MethodGet, "/api/sales/999", nil, http.StatusNotFound},
		{"empty bags", http.MethodPut, fmt.Sprintf("/api/sales/%d/bags", id), map[string]any{"bags": []any{}}, http.StatusBadRequest},
		{"stale version", http.MethodPatch, fmt.Sprintf("/api/sales/%d", id), map[string]any{"notes": "x", "expectedVersion": 42}, http.StatusConflict},
		{"unknown status", http.MethodPatch, fmt.Sprintf("/api/sales/%d/status", id), map[string]any{"status": "shipped"}, http.StatusBadRequest},
		{"confirm without bags", http.MethodPatch, fmt.Sprintf("/api/sales/%d/status", id), map[string]any{"status": "confirmed"}, http.StatusConflict},
		{"document of draft", http.MethodPost, fmt.Sprintf("/api/sales/%d/document", id), nil, http.StatusConflict},
		{"bad page", http.MethodGet, "/api/sales?page=x", nil, http.StatusBadRequest},
		{"page size too large", http.MethodGet, "/api/sales?pageSize=500", nil, http.StatusBadRequest},
		{"page too large", http.MethodGet, "/api/sales?page=9223372036854775807", nil, http.StatusBadRequest},
		{"bad status filter", http.MethodGet, "/api/sales?status=open", nil, http.StatusBadRequest},
		{"bad processed flag", http.MethodGet, "/api/sales/operations?processed=maybe", nil, http.StatusBadRequest},
		{"bad date", http.MethodGet, "/api/sales/operations?dateFrom=03/05/2024", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := h.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestListEndpoints(t *testing.T) {
	h := newHarness(t)
	h.createSale(t, 101)

	rec, body := h.do(t, http.MethodGet, "/api/sales?status=draft&page=1&pageSize=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["sales"], 1)
	page := body["pagination"].(map[string]any)
	assert.Equal(t, 1.0, page["totalCount"])
	assert.Equal(t, 10.0, page["pageSize"])

	rec, body = h.do(t, http.MethodGet, "/api/sales?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["sales"])

	rec, body = h.do(t, http.MethodGet, "/api/sales/operations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ops := body["operations"].([]any)
	require.Len(t, ops, 1)
	assert.Equal(t, 102.0, ops[0].(map[string]any)["operationId"])

	rec, body = h.do(t, http.MethodGet, "/api/sales/operations?processed=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ops = body["operations"].([]any)
	require.Len(t, ops, 1)
	assert.Equal(t, 101.0, ops[0].(map[string]any)["operationId"])

	rec, body = h.do(t, http.MethodGet, "/api/sizes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["sizes"], 1)
}

func TestDispatchFailureDoesNotFailRequest(t *testing.T) {
	h := newHarness(t)
	h.events.err = errors.New("bus down")

	rec, body := h.do(t, http.MethodPost, "/api/sales", map[string]any{"operationIds": []int64{101}})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []models.EventType{models.EventSaleCreated}, h.events.types())
}

type blockingDispatcher struct {
	release chan struct{}
	done    chan struct{}
}

func (b *blockingDispatcher) Dispatch(context.Context, ...models.Event) error {
	<-b.release
	close(b.done)
	return nil
}

func TestResponseDoesNotWaitForDispatch(t *testing.T) {
	h := newHarness(t)
	slow := &blockingDispatcher{release: make(chan struct{}), done: make(chan struct{})}
	handler := NewSalesHandler(h.svc, nil, slow, zaptest.NewLogger(t))
	engine := gin.New()
	handler.Register(engine)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sales", bytes.NewReader([]byte(`{"operationIds":[101]}`)))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	select {
	case <-slow.done:
		t.Fatal("dispatch finished before it was released")
	default:
	}
	close(slow.release)
	handler.Wait()
	<-slow.done
}

func (h *harness) confirmedSale(t *testing.T) int64 {
	t.Helper()
	id := h.createSale(t, 101)
	rec, _ := h.do(t, http.MethodPut, fmt.Sprintf("/api/sales/%d/bags", id), bagsBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, _ = h.do(t, http.MethodPatch, fmt.Sprintf("/api/sales/%d/status", id), map[string]any{"status": "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return id
}

func TestDownloadDocument(t *testing.T) {
	h := newHarness(t)
	id := h.confirmedSale(t)
	path := fmt.Sprintf("/api/sales/%d/document", id)

	rec, body := h.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no document exported yet")
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])

	rec, body = h.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	key := body["pdfPath"].(string)

	rec = httptest.NewRecorder()
	h.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), key[len("documents/"):])
	var doc models.SaleDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "VAV-000001", doc.Sale.SaleNumber)
	assert.Len(t, doc.Bags, 1)
}

func TestDownloadDocumentMissingFromStore(t *testing.T) {
	h := newHarness(t)
	id := h.confirmedSale(t)
	_, err := h.svc.AttachDocument(context.Background(), id, "documents/VAV-000001-1.json")
	require.NoError(t, err)

	rec, body := h.do(t, http.MethodGet, fmt.Sprintf("/api/sales/%d/document", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])

	rec, _ = h.do(t, http.MethodGet, "/api/sales/999/document", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type brokenService struct{ SalesService }

func (brokenService) ListSizes(context.Context) ([]models.Size, error) {
	return nil, fmt.Errorf("%w: list_sizes: connection reset", models.ErrInternal)
}

func TestInternalErrorsAreMasked(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewSalesHandler(brokenService{}, nil, nil, zaptest.NewLogger(t)).Register(engine)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sizes", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"internal server error"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sales/1/document", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(fmt.Errorf("%w: x", models.ErrValidation)))
	assert.Equal(t, http.StatusNotFound, StatusFor(models.ErrNotFound))
	assert.Equal(t, http.StatusConflict, StatusFor(fmt.Errorf("wrap: %w", models.ErrConflict)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}
