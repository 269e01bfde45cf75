package models

import "time"

// EventType names the domain events emitted by sale mutations.
type EventType string

const (
	EventSaleCreated    EventType = "sale.created"
	EventBagsConfigured EventType = "sale.bags_configured"
	EventStatusChanged  EventType = "sale.status_changed"
	EventDraftUpdated   EventType = "sale.draft_updated"
	EventDocumentStored EventType = "sale.document_stored"
)

// Event describes a committed change to a sale. Core operations return events instead
// of notifying collaborators themselves; the transport layer dispatches them.
type Event struct {
	ID             string     `json:"id"`
	Type           EventType  `json:"type"`
	SaleID         int64      `json:"saleId"`
	SaleNumber     string     `json:"saleNumber"`
	Status         SaleStatus `json:"status"`
	PreviousStatus SaleStatus `json:"previousStatus,omitempty"`
	Totals         SaleTotals `json:"totals"`
	CustomerName   string     `json:"customerName,omitempty"`
	SaleDate       string     `json:"saleDate,omitempty"`
	Version        int64      `json:"version"`
	OccurredAt     time.Time  `json:"occurredAt"`
}
