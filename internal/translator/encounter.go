package translator

import (
	"context"
	"encoding/json"
	"time"

	omsync "github.com/ria8651/open-msupply/internal/sync"
	"github.com/ria8651/open-msupply/internal/types"
	"github.com/ria8651/open-msupply/internal/validation"
)

var encounterStatuses = []string{"PENDING", "VISITED", "CANCELLED"}

type schemaEncounter struct {
	CreatedDatetime string  `json:"createdDatetime"`
	StartDatetime   string  `json:"startDatetime"`
	EndDatetime     *string `json:"endDatetime"`
	Status          *string `json:"status"`
	Clinician       *struct {
		ID *string `json:"id"`
	} `json:"clinician"`
}

type validatedEncounter struct {
	created     time.Time
	start       time.Time
	end         *time.Time
	status      *string
	clinicianID *string
}

// validateEncounter checks an encounter payload against its schema.
// Errors embed the document type.
func validateEncounter(doc *types.Document) (*validatedEncounter, error) {
	var se schemaEncounter
	if err := decodeDocumentData(doc, &se); err != nil {
		return nil, err
	}

	var c validation.Collector
	v := &validatedEncounter{status: se.Status}

	start, verr := validation.ValidateRFC3339("startDatetime", se.StartDatetime)
	c.Add(verr)
	v.start = start

	// Older encounters omit createdDatetime; the document time stands in.
	v.created = doc.Datetime
	if se.CreatedDatetime != "" {
		created, verr := validation.ValidateRFC3339("createdDatetime", se.CreatedDatetime)
		c.Add(verr)
		v.created = created
	}

	if se.EndDatetime != nil {
		end, verr := validation.ValidateRFC3339("endDatetime", *se.EndDatetime)
		c.Add(verr)
		if verr == nil && !start.IsZero() && end.Before(start) {
			c.Add(&validation.ValidationError{Field: "endDatetime", Message: "must not be before startDatetime"})
		}
		v.end = &end
	}
	if se.Status != nil {
		c.Add(validation.ValidateEnum("status", *se.Status, encounterStatuses))
	}
	if se.Clinician != nil && se.Clinician.ID != nil && *se.Clinician.ID != "" {
		v.clinicianID = se.Clinician.ID
	}

	if err := c.Err(doc.Type); err != nil {
		return nil, err
	}
	return v, nil
}

// EncounterHandler keeps the encounter row for a document name.
type EncounterHandler struct{}

// Integrate validates the encounter and upserts its row.
func (EncounterHandler) Integrate(ctx context.Context, w Writer, doc *types.Document) error {
	patientID, err := ownerID(doc)
	if err != nil {
		return err
	}
	v, err := validateEncounter(doc)
	if err != nil {
		return err
	}

	e := &types.Encounter{
		ID:              doc.ID,
		DocumentName:    doc.Name,
		DocumentType:    doc.Type,
		PatientID:       patientID,
		ContextID:       doc.ContextID,
		CreatedDatetime: v.created,
		StartDatetime:   v.start,
		EndDatetime:     v.end,
		Status:          v.status,
		ClinicianID:     v.clinicianID,
	}
	if err := w.UpsertEncounter(ctx, e); err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return recordChange(ctx, w, "encounter", e.ID, omsync.ActionUpsert, payload, nil)
}
