package models

// Bag is one physical packed unit belonging to a sale.
type Bag struct {
	ID                   int64   `bson:"_id" json:"id"`
	SaleID               int64   `bson:"sale_id" json:"advancedSaleId"`
	BagNumber            int     `bson:"bag_number" json:"bagNumber"`
	SizeCode             string  `bson:"size_code" json:"sizeCode"`
	TotalWeight          float64 `bson:"total_weight" json:"totalWeight"` // final weight, kg
	OriginalWeight       float64 `bson:"original_weight" json:"originalWeight"`
	WeightLoss           float64 `bson:"weight_loss" json:"weightLoss"`
	AnimalCount          int64   `bson:"animal_count" json:"animalCount"`
	AnimalsPerKg         float64 `bson:"animals_per_kg" json:"animalsPerKg"`
	OriginalAnimalsPerKg float64 `bson:"original_animals_per_kg" json:"originalAnimalsPerKg"`
	WastePercentage      float64 `bson:"waste_percentage" json:"wastePercentage"`
	Notes                string  `bson:"notes,omitempty" json:"notes,omitempty"`

	Allocations []Allocation `bson:"allocations" json:"allocations"`
}

// Allocation records how many animals and how much weight a source operation/basket
// contributed to a bag.
type Allocation struct {
	ID                 int64   `bson:"id" json:"id"`
	BagID              int64   `bson:"bag_id" json:"-"`
	SourceOperationID  int64   `bson:"source_operation_id" json:"sourceOperationId"`
	SourceBasketID     int64   `bson:"source_basket_id" json:"sourceBasketId"`
	AllocatedAnimals   int64   `bson:"allocated_animals" json:"allocatedAnimals"`
	AllocatedWeight    float64 `bson:"allocated_weight" json:"allocatedWeight"`
	SourceAnimalsPerKg float64 `bson:"source_animals_per_kg" json:"sourceAnimalsPerKg"`
	SourceSizeCode     string  `bson:"source_size_code" json:"sourceSizeCode"`

	BasketPhysicalNumber *int `bson:"-" json:"basketPhysicalNumber,omitempty"`
}

// AllocationInput is one provenance line supplied with a bag.
type AllocationInput struct {
	SourceOperationID int64   `json:"sourceOperationId"`
	SourceBasketID    int64   `json:"sourceBasketId"`
	AllocatedAnimals  int64   `json:"allocatedAnimals"`
	AllocatedWeight   float64 `json:"allocatedWeight"`
	SourceDensity     float64 `json:"sourceDensity"`
	SourceSizeCode    string  `json:"sourceSizeCode"`
}

// BagInput is the caller's packing instruction for a single bag.
type BagInput struct {
	SizeCode         string            `json:"sizeCode"`
	AnimalCount      int64             `json:"animalCount"`
	OriginalWeight   float64           `json:"originalWeight"`
	WeightLoss       float64           `json:"weightLoss"`
	ReferenceDensity float64           `json:"referenceDensity"`
	WastePercentage  float64           `json:"wastePercentage,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	Allocations      []AllocationInput `json:"allocations"`
}

// ConfigureBagsRequest replaces the full bag set of a draft sale.
type ConfigureBagsRequest struct {
	SaleID          int64      `json:"-"`
	Bags            []BagInput `json:"bags"`
	ExpectedVersion *int64     `json:"expectedVersion,omitempty"`
}
