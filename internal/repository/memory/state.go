package memory

import (
	"sort"

	"github.com/mamadbah2/shellsale/internal/domain/models"
)

// Counters holds the sequence values of the store.
type Counters struct {
	SaleNumber int64 `json:"sale_number"`
	Sale       int64 `json:"sale"`
	Claim      int64 `json:"claim"`
	Bag        int64 `json:"bag"`
	Allocation int64 `json:"allocation"`
}

// Snapshot is a point-in-time, JSON-serialisable copy of the store state.
type Snapshot struct {
	Sales      []models.Sale           `json:"sales"`
	Claims     []models.OperationClaim `json:"claims"`
	Bags       []models.Bag            `json:"bags"`
	Operations []models.Operation      `json:"operations"`
	Baskets    []models.Basket         `json:"baskets"`
	Sizes      []models.Size           `json:"sizes"`
	Counters   Counters                `json:"counters"`
}

type state struct {
	sales      map[int64]models.Sale
	claims     map[int64]models.OperationClaim
	claimByOp  map[int64]int64
	bags       map[int64]models.Bag
	operations map[int64]models.Operation
	baskets    map[int64]models.Basket
	sizes      map[int64]models.Size
	counters   Counters
}

func newState() state {
	return state{
		sales:      make(map[int64]models.Sale),
		claims:     make(map[int64]models.OperationClaim),
		claimByOp:  make(map[int64]int64),
		bags:       make(map[int64]models.Bag),
		operations: make(map[int64]models.Operation),
		baskets:    make(map[int64]models.Basket),
		sizes:      make(map[int64]models.Size),
	}
}

func (s state) clone() state {
	cp := newState()
	for k, v := range s.sales {
		cp.sales[k] = cloneSale(v)
	}
	for k, v := range s.claims {
		cp.claims[k] = v
	}
	for k, v := range s.claimByOp {
		cp.claimByOp[k] = v
	}
	for k, v := range s.bags {
		cp.bags[k] = cloneBag(v)
	}
	for k, v := range s.operations {
		cp.operations[k] = v
	}
	for k, v := range s.baskets {
		cp.baskets[k] = v
	}
	for k, v := range s.sizes {
		cp.sizes[k] = v
	}
	cp.counters = s.counters
	return cp
}

func (s state) snapshot() Snapshot {
	snap := Snapshot{Counters: s.counters}
	for _, v := range s.sales {
		snap.Sales = append(snap.Sales, cloneSale(v))
	}
	for _, v := range s.claims {
		snap.Claims = append(snap.Claims, v)
	}
	for _, v := range s.bags {
		snap.Bags = append(snap.Bags, cloneBag(v))
	}
	for _, v := range s.operations {
		snap.Operations = append(snap.Operations, v)
	}
	for _, v := range s.baskets {
		snap.Baskets = append(snap.Baskets, v)
	}
	for _, v := range s.sizes {
		snap.Sizes = append(snap.Sizes, v)
	}

	// ordered by id so snapshots of equal states compare equal
	sort.Slice(snap.Sales, func(i, j int) bool { return snap.Sales[i].ID < snap.Sales[j].ID })
	sort.Slice(snap.Claims, func(i, j int) bool { return snap.Claims[i].ID < snap.Claims[j].ID })
	sort.Slice(snap.Bags, func(i, j int) bool { return snap.Bags[i].ID < snap.Bags[j].ID })
	sort.Slice(snap.Operations, func(i, j int) bool { return snap.Operations[i].ID < snap.Operations[j].ID })
	sort.Slice(snap.Baskets, func(i, j int) bool { return snap.Baskets[i].ID < snap.Baskets[j].ID })
	sort.Slice(snap.Sizes, func(i, j int) bool { return snap.Sizes[i].ID < snap.Sizes[j].ID })
	return snap
}

func stateFromSnapshot(snap Snapshot) state {
	st := newState()
	for _, v := range snap.Sales {
		st.sales[v.ID] = cloneSale(v)
	}
	for _, v := range snap.Claims {
		st.claims[v.ID] = v
		st.claimByOp[v.OperationID] = v.ID
	}
	for _, v := range snap.Bags {
		st.bags[v.ID] = cloneBag(v)
	}
	for _, v := range snap.Operations {
		st.operations[v.ID] = v
	}
	for _, v := range snap.Baskets {
		st.baskets[v.ID] = v
	}
	for _, v := range snap.Sizes {
		st.sizes[v.ID] = v
	}
	st.counters = snap.Counters
	return st
}

func cloneSale(s models.Sale) models.Sale {
	if s.CustomerID != nil {
		id := *s.CustomerID
		s.CustomerID = &id
	}
	if s.CustomerDetails != nil {
		details := *s.CustomerDetails
		s.CustomerDetails = &details
	}
	return s
}

func cloneBag(b models.Bag) models.Bag {
	b.Allocations = append([]models.Allocation(nil), b.Allocations...)
	return b
}
