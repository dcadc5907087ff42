package data

import (
	"time"

	"github.com/pitabwire/util"
	"gorm.io/gorm"
)

// Model carries the columns every persisted record shares. Records are
// soft deleted unless removed with an unscoped query.
type Model struct {
	ID         string `gorm:"type:varchar(50);primaryKey"`
	CreatedAt  time.Time
	ModifiedAt time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

// BeforeCreate assigns an id and stamps the record unless the caller
// already did.
func (m *Model) BeforeCreate(_ *gorm.DB) error {
	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = util.IDString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.ModifiedAt = now
	return nil
}

func (m *Model) BeforeUpdate(_ *gorm.DB) error {
	m.ModifiedAt = time.Now().UTC()
	return nil
}
