package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date wire format used for sale and operation dates.
const DateLayout = "2006-01-02"

// SaleNumberPrefix prefixes every human-readable sale code.
const SaleNumberPrefix = "VAV-"

// SaleStatus enumerates the lifecycle states of a sale.
type SaleStatus string

const (
	SaleStatusDraft     SaleStatus = "draft"
	SaleStatusConfirmed SaleStatus = "confirmed"
	SaleStatusCompleted SaleStatus = "completed"
)

// ParseSaleStatus validates a raw status value.
func ParseSaleStatus(raw string) (SaleStatus, error) {
	switch status := SaleStatus(raw); status {
	case SaleStatusDraft, SaleStatusConfirmed, SaleStatusCompleted:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q, allowed values: draft, confirmed, completed", ErrValidation, raw)
	}
}

// FormatSaleNumber renders the display code for a sequence value, e.g. VAV-000042.
func FormatSaleNumber(seq int64) string {
	return fmt.Sprintf("%s%06d", SaleNumberPrefix, seq)
}

// CustomerSnapshot is the denormalized customer data frozen on a sale.
type CustomerSnapshot struct {
	ID           *int64 `bson:"id,omitempty" json:"id,omitempty"`
	Name         string `bson:"name" json:"name"`
	BusinessName string `bson:"business_name,omitempty" json:"businessName,omitempty"`
	VatNumber    string `bson:"vat_number,omitempty" json:"vatNumber,omitempty"`
	Address      string `bson:"address,omitempty" json:"address,omitempty"`
	City         string `bson:"city,omitempty" json:"city,omitempty"`
	Province     string `bson:"province,omitempty" json:"province,omitempty"`
	PostalCode   string `bson:"postal_code,omitempty" json:"postalCode,omitempty"`
	Phone        string `bson:"phone,omitempty" json:"phone,omitempty"`
	Email        string `bson:"email,omitempty" json:"email,omitempty"`
}

// Sale is one commercial transaction assembled from claimed harvest operations.
type Sale struct {
	ID              int64             `bson:"_id" json:"id"`
	SaleNumber      string            `bson:"sale_number" json:"saleNumber"`
	CustomerID      *int64            `bson:"customer_id,omitempty" json:"customerId"`
	CustomerName    string            `bson:"customer_name" json:"customerName"`
	CustomerDetails *CustomerSnapshot `bson:"customer_details,omitempty" json:"customerDetails"`
	SaleDate        string            `bson:"sale_date" json:"saleDate"`
	Status          SaleStatus        `bson:"status" json:"status"`
	TotalAnimals    int64             `bson:"total_animals" json:"totalAnimals"`
	TotalWeight     float64           `bson:"total_weight" json:"totalWeight"`
	TotalBags       int               `bson:"total_bags" json:"totalBags"`
	Notes           string            `bson:"notes,omitempty" json:"notes,omitempty"`
	DocumentPath    string            `bson:"pdf_path,omitempty" json:"pdfPath,omitempty"`
	Version         int64             `bson:"version" json:"version"`
	CreatedAt       time.Time         `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time         `bson:"updated_at" json:"updatedAt"`
}

// IsDraft reports whether bag configuration is still permitted.
func (s Sale) IsDraft() bool {
	return s.Status == SaleStatusDraft
}

// OperationClaim binds a harvest operation exclusively to one sale and freezes its
// quantities at claim time.
type OperationClaim struct {
	ID                   int64   `bson:"_id" json:"id"`
	SaleID               int64   `bson:"sale_id" json:"advancedSaleId"`
	OperationID          int64   `bson:"operation_id" json:"operationId"`
	BasketID             int64   `bson:"basket_id" json:"basketId"`
	OriginalAnimals      int64   `bson:"original_animals" json:"originalAnimals"`
	OriginalWeight       float64 `bson:"original_weight" json:"originalWeight"`
	OriginalAnimalsPerKg float64 `bson:"original_animals_per_kg" json:"originalAnimalsPerKg"`
	IncludedInSale       bool    `bson:"included_in_sale" json:"includedInSale"`

	// Read-side decorations joined from the catalog.
	BasketPhysicalNumber *int   `bson:"-" json:"basketPhysicalNumber,omitempty"`
	Date                 string `bson:"-" json:"date,omitempty"`
}

// CreateSaleRequest is the input of the sale aggregate builder.
type CreateSaleRequest struct {
	OperationIDs []int64           `json:"operationIds"`
	Customer     *CustomerSnapshot `json:"customer,omitempty"`
	SaleDate     string            `json:"saleDate,omitempty"`
	Notes        string            `json:"notes,omitempty"`
}

// SaleTotals aggregates animal count and weight over claims or bags.
type SaleTotals struct {
	TotalAnimals int64   `json:"totalAnimals"`
	TotalWeight  float64 `json:"totalWeight"`
	TotalBags    int     `json:"totalBags"`
}

// UpdateDraftRequest carries the editable header fields of a draft sale. Nil fields are
// left untouched.
type UpdateDraftRequest struct {
	SaleID          int64             `json:"-"`
	Notes           *string           `json:"notes,omitempty"`
	SaleDate        *string           `json:"saleDate,omitempty"`
	Customer        *CustomerSnapshot `json:"customer,omitempty"`
	ExpectedVersion *int64            `json:"expectedVersion,omitempty"`
}

// SaleFilter narrows ListSales.
type SaleFilter struct {
	Status   *SaleStatus
	DateFrom string
	DateTo   string
	Page     int
	PageSize int
}

// Pagination mirrors the paging metadata returned with sale listings.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}

// SaleDetail is the full provenance view of a sale. Its JSON shape is the input
// contract of the delivery document renderer.
type SaleDetail struct {
	Sale            Sale             `json:"sale"`
	Bags            []Bag            `json:"bags"`
	OperationClaims []OperationClaim `json:"operationClaims"`
}
