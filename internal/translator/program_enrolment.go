package translator

import (
	"context"
	"encoding/json"

	omsync "github.com/ria8651/open-msupply/internal/sync"
	"github.com/ria8651/open-msupply/internal/types"
	"github.com/ria8651/open-msupply/internal/validation"
)

var enrolmentStatuses = []string{"ACTIVE", "OPTED_OUT", "TRANSFERRED_OUT", "PAUSED"}

type schemaProgramEnrolment struct {
	EnrolmentDatetime  string  `json:"enrolmentDatetime"`
	ProgramEnrolmentID *string `json:"programEnrolmentId"`
	Status             *string `json:"status"`
}

// ProgramEnrolmentHandler keeps the program_enrolment row for a document name.
type ProgramEnrolmentHandler struct{}

// Integrate upserts the enrolment of the document's owning patient.
func (ProgramEnrolmentHandler) Integrate(ctx context.Context, w Writer, doc *types.Document) error {
	patientID, err := ownerID(doc)
	if err != nil {
		return err
	}

	var se schemaProgramEnrolment
	if err := decodeDocumentData(doc, &se); err != nil {
		return err
	}

	var c validation.Collector
	enrolledAt, verr := validation.ValidateRFC3339("enrolmentDatetime", se.EnrolmentDatetime)
	c.Add(verr)
	if se.ProgramEnrolmentID != nil {
		validation.ValidateText(&c, "programEnrolmentId", *se.ProgramEnrolmentID, 255)
	}
	if se.Status != nil {
		c.Add(validation.ValidateEnum("status", *se.Status, enrolmentStatuses))
	}
	if err := c.Err(doc.Type); err != nil {
		return err
	}

	e := &types.ProgramEnrolment{
		ID:                 doc.ID,
		DocumentName:       doc.Name,
		DocumentType:       doc.Type,
		PatientID:          patientID,
		ContextID:          doc.ContextID,
		EnrolmentDatetime:  enrolledAt,
		ProgramEnrolmentID: se.ProgramEnrolmentID,
		Status:             se.Status,
	}
	if err := w.UpsertProgramEnrolment(ctx, e); err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return recordChange(ctx, w, "program_enrolment", e.ID, omsync.ActionUpsert, payload, nil)
}
