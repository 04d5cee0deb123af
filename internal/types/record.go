package types

import (
	"time"

	"gorm.io/datatypes"
)

// PackageRecord is the document-store row for one ContentPackage. The full
// package document lives in Doc; the scalar columns exist only for partition
// routing, filtering and optimistic concurrency.
type PackageRecord struct {
	ID           string `gorm:"column:id;primaryKey"`
	PartitionKey string `gorm:"column:partition_key;index"`

	Subject string `gorm:"column:subject;index"`
	Unit    string `gorm:"column:unit;index"`
	Status  string `gorm:"column:status;index"`

	// Version mirrors storage_metadata.version inside Doc. Replace uses it
	// for compare-and-swap.
	Version int `gorm:"column:version"`

	Doc datatypes.JSON `gorm:"column:doc;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (PackageRecord) TableName() string { return "content_package" }
