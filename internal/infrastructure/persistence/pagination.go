package persistence

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// paginate applies offset pagination when both page and pageSize are set
func paginate(query *gorm.DB, page, pageSize int) *gorm.DB {
	if page > 0 && pageSize > 0 {
		offset := (page - 1) * pageSize
		query = query.Offset(offset).Limit(pageSize)
	}
	return query
}

// whereVariant matches the nullable variant_id column against an optional id
func whereVariant(query *gorm.DB, variantID *uuid.UUID) *gorm.DB {
	if variantID == nil {
		return query.Where("variant_id IS NULL")
	}
	return query.Where("variant_id = ?", *variantID)
}
