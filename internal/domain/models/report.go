package models

import "time"

// SalesDigest aggregates sales activity over a reporting window.
type SalesDigest struct {
	From          time.Time          `json:"from"`
	To            time.Time          `json:"to"`
	SalesByStatus map[SaleStatus]int `json:"salesByStatus"`
	TotalAnimals  int64              `json:"totalAnimals"`
	TotalWeight   float64            `json:"totalWeight"`
	TotalBags     int                `json:"totalBags"`
	Customers     []string           `json:"customers"`
	OpenDrafts    []string           `json:"openDrafts"`
	GeneratedAt   time.Time          `json:"generatedAt"`
}
