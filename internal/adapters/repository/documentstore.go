package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// documentRow maps the upstream documents table.
type documentRow struct {
	ID               string            `gorm:"primaryKey;type:varchar(64)"`
	DocumentType     string            `gorm:"type:varchar(32)"`
	EntityType       string            `gorm:"type:varchar(32)"`
	EntityID         string            `gorm:"type:varchar(64);index"`
	ProcessingStatus string            `gorm:"type:varchar(32)"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb"`
	UpdatedAt        time.Time
}

func (documentRow) TableName() string { return "documents" }

func (r documentRow) toModel() *model.Document {
	return &model.Document{
		ID:               r.ID,
		DocumentType:     r.DocumentType,
		EntityType:       r.EntityType,
		EntityID:         r.EntityID,
		ProcessingStatus: r.ProcessingStatus,
		Metadata:         map[string]any(r.Metadata),
	}
}

// DocumentStore reads documents and merges keys into their metadata.
type DocumentStore struct {
	db  *gorm.DB
	log logger.Logger
}

// NewDocumentStore creates a document store over db.
func NewDocumentStore(db *DB, opts ...Option) *DocumentStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Get().Named("document_store")
	}
	return &DocumentStore{db: db.gorm, log: o.log}
}

// FindDocument loads one document.
func (s *DocumentStore) FindDocument(ctx context.Context, id string) (*model.Document, error) {
	defer observe("find_document", time.Now())
	if id == "" {
		return nil, ErrEmptyID
	}
	var row documentRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find document %s: %w", id, err)
	}
	return row.toModel(), nil
}

// HasStructuredData reports whether extraction already wrote to id.
func (s *DocumentStore) HasStructuredData(ctx context.Context, id string) (bool, error) {
	doc, err := s.FindDocument(ctx, id)
	if err != nil {
		return false, err
	}
	return doc.HasStructuredData(), nil
}

// MergeMetadata sets metadata[key] = value and leaves every other key in
// place. The read and the write share one transaction.
func (s *DocumentStore) MergeMetadata(ctx context.Context, id, key string, value any) error {
	defer observe("merge_metadata", time.Now())
	if id == "" {
		return ErrEmptyID
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("id = ?", id)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var row documentRow
		if err := q.Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("document %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("load document %s: %w", id, err)
		}

		merged := datatypes.JSONMap{}
		for k, v := range row.Metadata {
			merged[k] = v
		}
		merged[key] = value

		if err := tx.Model(&documentRow{}).Where("id = ?", id).
			Updates(map[string]any{"metadata": merged, "updated_at": time.Now().UTC()}).Error; err != nil {
			return fmt.Errorf("write metadata %s: %w", id, err)
		}
		s.log.Debug(ctx, "document metadata merged",
			logger.String("document_id", id),
			logger.String("key", key),
			logger.Int("keys", len(merged)))
		return nil
	})
}
