package translator

import (
	"sort"
	"sync"

	"github.com/ria8651/open-msupply/internal/types"
)

// Registry maps table names to translators and document types to handlers.
// It is populated once at process start and read concurrently afterwards.
type Registry struct {
	mu         sync.RWMutex
	tables     map[string]TableTranslator
	documents  map[string]DocumentHandler
	categories map[types.DocumentCategory]DocumentHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tables:     make(map[string]TableTranslator),
		documents:  make(map[string]DocumentHandler),
		categories: make(map[types.DocumentCategory]DocumentHandler),
	}
}

// Register adds a table translator.
// Panics if a translator for the same table is already registered.
func (r *Registry) Register(t TableTranslator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.TableName()
	if _, exists := r.tables[name]; exists {
		panic("translator already registered: " + name)
	}
	r.tables[name] = t
}

// RegisterDocument adds a handler for one document type.
// A type handler takes precedence over the category handler of its registry row.
func (r *Registry) RegisterDocument(documentType string, h DocumentHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.documents[documentType]; exists {
		panic("document handler already registered: " + documentType)
	}
	r.documents[documentType] = h
}

// RegisterCategory adds the handler used for every type registered under category.
func (r *Registry) RegisterCategory(category types.DocumentCategory, h DocumentHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.categories[category]; exists {
		panic("document category already registered: " + string(category))
	}
	r.categories[category] = h
}

// Get returns the translator for a table.
func (r *Registry) Get(tableName string) (TableTranslator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[tableName]
	return t, ok
}

// DocumentHandler returns the handler registered for a document type.
func (r *Registry) DocumentHandler(documentType string) (DocumentHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.documents[documentType]
	return h, ok
}

// CategoryHandler returns the handler registered for a document category.
func (r *Registry) CategoryHandler(category types.DocumentCategory) (DocumentHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.categories[category]
	return h, ok
}

// RegisteredTables returns the sorted names of all registered tables.
func (r *Registry) RegisteredTables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tables))
	for n := range r.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
