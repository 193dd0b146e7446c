// internal/models/product.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Product struct {
	BaseModel
	FarmerID    uuid.UUID      `json:"farmer_id" gorm:"type:uuid;not null;index"`
	Name        string         `json:"name" gorm:"size:255;not null"`
	Description string         `json:"description" gorm:"type:text"`
	Category    string         `json:"category" gorm:"size:100;index"`
	Price       float64        `json:"price" gorm:"type:decimal(10,2);not null"`
	Quantity    int            `json:"quantity" gorm:"not null;default:0"`
	Unit        string         `json:"unit" gorm:"size:20;default:'kg'"`
	Images      pq.StringArray `json:"images" gorm:"type:text[]"`
	Tags        pq.StringArray `json:"tags" gorm:"type:text[]"`
	Status      ProductStatus  `json:"status" gorm:"type:varchar(20);default:'available';index"`
	SalesCount  int64          `json:"sales_count" gorm:"default:0"`

	// Denormalized rating aggregates, recomputed whenever a rating is
	// added, changed, or removed.
	AverageRating float64 `json:"average_rating" gorm:"type:decimal(3,1);default:0"`
	TotalRatings  int64   `json:"total_ratings" gorm:"default:0"`

	// Relationships
	Farmer User `json:"farmer,omitempty" gorm:"foreignKey:FarmerID"`
}

// InStock reports whether the product can currently satisfy a request for
// the given quantity.
func (p *Product) InStock(quantity int) bool {
	return p.Status == ProductStatusAvailable && p.Quantity >= quantity
}
