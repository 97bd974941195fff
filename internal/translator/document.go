package translator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ria8651/open-msupply/internal/store"
	omsync "github.com/ria8651/open-msupply/internal/sync"
	"github.com/ria8651/open-msupply/internal/types"
	"github.com/ria8651/open-msupply/internal/validation"
)

// DocumentTable is the sync table name carrying document versions.
const DocumentTable = "document"

// DocumentTranslator stores document versions and dispatches their
// derived-table updates by document type.
type DocumentTranslator struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDocumentTranslator creates a translator resolving handlers from registry.
func NewDocumentTranslator(registry *Registry, logger *slog.Logger) *DocumentTranslator {
	return &DocumentTranslator{registry: registry, logger: logger}
}

// TableName returns "document".
func (t *DocumentTranslator) TableName() string {
	return DocumentTable
}

// Integrate inserts the document version and runs its handler.
// Document types this site does not know are skipped without writing.
func (t *DocumentTranslator) Integrate(ctx context.Context, w Writer, record *omsync.SyncBufferRecord) error {
	if record.Action != omsync.ActionUpsert {
		return fmt.Errorf("document %s: %w", record.Action, ErrUnsupportedAction)
	}

	doc, err := parseDocument(record)
	if err != nil {
		return err
	}

	handler, err := t.resolve(ctx, w, doc.Type)
	if err != nil {
		return err
	}
	if handler == nil {
		t.logger.Warn("received unknown document type",
			"component", "translator",
			"document_type", doc.Type,
			"record_id", record.RecordID,
		)
		return nil
	}

	inserted, err := w.InsertDocument(ctx, doc)
	if err != nil {
		return err
	}
	if inserted {
		if err := recordChange(ctx, w, DocumentTable, doc.ID, omsync.ActionUpsert, record.Data, nil); err != nil {
			return err
		}
	}
	return handler.Integrate(ctx, w, doc)
}

// resolve returns nil without error for unknown document types.
func (t *DocumentTranslator) resolve(ctx context.Context, w Writer, documentType string) (DocumentHandler, error) {
	if h, ok := t.registry.DocumentHandler(documentType); ok {
		return h, nil
	}

	reg, err := w.DocumentRegistryByType(ctx, documentType)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if h, ok := t.registry.CategoryHandler(reg.Category); ok {
		return h, nil
	}
	return nil, nil
}

func parseDocument(record *omsync.SyncBufferRecord) (*types.Document, error) {
	var doc types.Document
	if err := json.Unmarshal(record.Data, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	var c validation.Collector
	c.Add(validation.ValidateRequired("name", doc.Name))
	c.Add(validation.ValidateRequired("type", doc.Type))
	if doc.Datetime.IsZero() {
		c.Add(&validation.ValidationError{Field: "datetime", Message: "is required"})
	}
	if len(doc.Data) == 0 {
		c.Add(&validation.ValidationError{Field: "data", Message: "is required"})
	}
	if err := c.Err("document"); err != nil {
		return nil, err
	}

	if doc.ID == "" {
		doc.ID = record.RecordID
	}
	if doc.ID != record.RecordID {
		return nil, fmt.Errorf("document id %q, record id %q: %w", doc.ID, record.RecordID, store.ErrIDMismatch)
	}
	if doc.Status == "" {
		doc.Status = "ACTIVE"
	}
	return &doc, nil
}

// decodeDocumentData unmarshals doc.Data, reporting failures as schema errors.
func decodeDocumentData(doc *types.Document, v any) error {
	if err := json.Unmarshal(doc.Data, v); err != nil {
		return &validation.SchemaError{
			DocumentType: doc.Type,
			Errors:       []validation.ValidationError{{Field: "data", Message: err.Error()}},
		}
	}
	return nil
}

func ownerID(doc *types.Document) (string, error) {
	if doc.OwnerNameID == nil || *doc.OwnerNameID == "" {
		return "", fmt.Errorf("%s %s: %w", doc.Type, doc.Name, ErrMissingOwner)
	}
	return *doc.OwnerNameID, nil
}
