package models

// OperationTypeSaleHarvest marks harvest-weighing operations that can be sold.
const OperationTypeSaleHarvest = "sale-harvest"

// Operation is a recorded weighing event against a basket, owned by the operations
// collaborator and read by the sales engine.
type Operation struct {
	ID           int64    `bson:"_id" json:"id"`
	Type         string   `bson:"type" json:"type"`
	BasketID     int64    `bson:"basket_id" json:"basketId"`
	Date         string   `bson:"date" json:"date"`
	AnimalCount  *int64   `bson:"animal_count,omitempty" json:"animalCount"`
	TotalWeight  *float64 `bson:"total_weight,omitempty" json:"totalWeight"`
	AnimalsPerKg *float64 `bson:"animals_per_kg,omitempty" json:"animalsPerKg"`
	SizeID       *int64   `bson:"size_id,omitempty" json:"sizeId"`
}

// Sellable reports whether the operation carries the measurements a claim snapshots.
func (o Operation) Sellable() bool {
	return o.Type == OperationTypeSaleHarvest && o.AnimalCount != nil && o.TotalWeight != nil && o.AnimalsPerKg != nil
}

// Basket is a physical container tracked through a growth cycle.
type Basket struct {
	ID             int64  `bson:"_id" json:"id"`
	PhysicalNumber int    `bson:"physical_number" json:"physicalNumber"`
	FlupsyID       int64  `bson:"flupsy_id" json:"flupsyId"`
	CycleCode      string `bson:"cycle_code,omitempty" json:"cycleCode,omitempty"`
}

// Size is a commercial size class defined by a density range.
type Size struct {
	ID              int64  `bson:"_id" json:"id"`
	Code            string `bson:"code" json:"code"`
	Name            string `bson:"name" json:"name"`
	MinAnimalsPerKg *int64 `bson:"min_animals_per_kg,omitempty" json:"minAnimalsPerKg"`
	MaxAnimalsPerKg *int64 `bson:"max_animals_per_kg,omitempty" json:"maxAnimalsPerKg"`
}

// Contains reports whether a density falls inside the size range. Sizes without a
// complete range never match.
func (s Size) Contains(animalsPerKg int64) bool {
	if s.MinAnimalsPerKg == nil || s.MaxAnimalsPerKg == nil {
		return false
	}
	return animalsPerKg >= *s.MinAnimalsPerKg && animalsPerKg <= *s.MaxAnimalsPerKg
}

// Catalog groups the reference data imported into embedded deployments.
type Catalog struct {
	Sizes      []Size      `json:"sizes"`
	Baskets    []Basket    `json:"baskets"`
	Operations []Operation `json:"operations"`
}

// OperationFilter narrows ListAvailableOperations.
type OperationFilter struct {
	DateFrom  string
	DateTo    string
	Processed bool
}

// AvailableOperation is a harvest operation decorated for selection screens.
type AvailableOperation struct {
	OperationID          int64   `json:"operationId"`
	BasketID             int64   `json:"basketId"`
	Date                 string  `json:"date"`
	AnimalCount          int64   `json:"animalCount"`
	TotalWeight          float64 `json:"totalWeight"`
	AnimalsPerKg         float64 `json:"animalsPerKg"`
	SizeID               *int64  `json:"sizeId"`
	BasketPhysicalNumber *int    `json:"basketPhysicalNumber"`
	SizeCode             string  `json:"sizeCode"`
	SizeName             string  `json:"sizeName"`
	Processed            bool    `json:"processed"`
}
