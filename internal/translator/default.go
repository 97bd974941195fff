package translator

import (
	"context"
	"log/slog"

	"github.com/ria8651/open-msupply/internal/types"
)

// NewDefaultRegistry returns a registry holding every translator this site
// integrates: the column-mapped central tables, documents, and the patient,
// program enrolment and encounter categories.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry()
	for _, schema := range Schemas() {
		r.Register(NewSchemaTranslator(schema))
	}
	r.Register(NewDocumentTranslator(r, logger))

	r.RegisterCategory(types.CategoryPatient, PatientHandler{})
	r.RegisterCategory(types.CategoryProgramEnrolment, ProgramEnrolmentHandler{})
	r.RegisterCategory(types.CategoryEncounter, EncounterHandler{})
	r.RegisterCategory(types.CategoryCustom, DocumentHandlerFunc(
		func(_ context.Context, _ Writer, _ *types.Document) error { return nil },
	))
	return r
}
