package history

import (
	"context"

	"gorm.io/gorm"

	"github.com/pitabwire/autotranslate/data"
	"github.com/pitabwire/autotranslate/datastore"
)

// Record is the database row of an Entry.
type Record struct {
	data.Model

	FromLang    string `gorm:"type:varchar(35);uniqueIndex:idx_history_lookup"`
	ToLang      string `gorm:"type:varchar(35);uniqueIndex:idx_history_lookup"`
	Text        string `gorm:"type:text;uniqueIndex:idx_history_lookup"`
	Translation string `gorm:"type:text"`
}

func (Record) TableName() string {
	return "translation_history"
}

func (r *Record) toEntry() Entry {
	return Entry{
		ID:          r.ID,
		From:        r.FromLang,
		To:          r.ToLang,
		Text:        r.Text,
		Translation: r.Translation,
		CreatedAt:   r.CreatedAt,
	}
}

// SQLStore keeps history in postgres.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore migrates the history table and returns a store over db.
func NewSQLStore(ctx context.Context, db *gorm.DB) (*SQLStore, error) {
	if err := datastore.Migrate(ctx, db, &Record{}); err != nil {
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

// Add stores entry, replacing an earlier entry with the same lookup.
func (s *SQLStore) Add(ctx context.Context, entry Entry) (Entry, error) {
	record := &Record{
		FromLang:    entry.From,
		ToLang:      entry.To,
		Text:        entry.Text,
		Translation: entry.Translation,
	}
	record.ID = entry.ID
	record.CreatedAt = entry.CreatedAt

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().
			Where("from_lang = ? AND to_lang = ? AND text = ?", entry.From, entry.To, entry.Text).
			Delete(&Record{}).Error; err != nil {
			return err
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return Entry{}, err
	}
	return record.toEntry(), nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&Record{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Find(ctx context.Context, lookup Lookup) (*Entry, error) {
	var record Record
	err := s.db.WithContext(ctx).
		Where("from_lang = ? AND to_lang = ? AND text = ?", lookup.From, lookup.To, lookup.Text).
		First(&record).Error
	if err != nil {
		if data.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	entry := record.toEntry()
	return &entry, nil
}

func (s *SQLStore) List(ctx context.Context, offset int, limit int) ([]Entry, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&Record{}).Count(&total).Error; err != nil {
		return nil, err
	}
	start, end := window(int(total), offset, limit)
	if start == end {
		return []Entry{}, nil
	}

	var records []Record
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(start).
		Limit(end - start).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(records))
	for i := range records {
		out = append(out, records[i].toEntry())
	}
	return out, nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Unscoped().
		Delete(&Record{}).Error
}
