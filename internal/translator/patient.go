package translator

import (
	"context"
	"encoding/json"

	omsync "github.com/ria8651/open-msupply/internal/sync"
	"github.com/ria8651/open-msupply/internal/types"
	"github.com/ria8651/open-msupply/internal/validation"
)

var genders = []string{
	"FEMALE", "MALE", "TRANSGENDER_FEMALE", "TRANSGENDER_MALE", "NON_BINARY", "UNKNOWN",
}

type schemaPatient struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	Gender      *string `json:"gender"`
	DateOfBirth *string `json:"dateOfBirth"`
	IsDeceased  bool    `json:"isDeceased"`
}

// PatientHandler keeps the patient row in step with the latest Patient document.
type PatientHandler struct{}

// Integrate upserts the patient row, marked as sync-originated.
func (PatientHandler) Integrate(ctx context.Context, w Writer, doc *types.Document) error {
	var sp schemaPatient
	if err := decodeDocumentData(doc, &sp); err != nil {
		return err
	}

	var c validation.Collector
	c.Add(validation.ValidateRequired("id", sp.ID))
	validation.ValidateText(&c, "code", sp.Code, 100)
	if sp.FirstName != nil {
		validation.ValidateText(&c, "firstName", *sp.FirstName, 255)
	}
	if sp.LastName != nil {
		validation.ValidateText(&c, "lastName", *sp.LastName, 255)
	}
	if sp.Gender != nil {
		c.Add(validation.ValidateEnum("gender", *sp.Gender, genders))
	}
	if sp.DateOfBirth != nil {
		c.Add(validation.ValidateDate("dateOfBirth", *sp.DateOfBirth))
	}
	if err := c.Err(doc.Type); err != nil {
		return err
	}

	p := &types.Patient{
		ID:               sp.ID,
		Code:             sp.Code,
		FirstName:        sp.FirstName,
		LastName:         sp.LastName,
		Gender:           sp.Gender,
		DateOfBirth:      sp.DateOfBirth,
		IsDeceased:       sp.IsDeceased,
		DocumentDatetime: doc.Datetime,
		IsSyncUpdate:     true,
	}
	written, err := w.UpsertPatient(ctx, p)
	if err != nil || !written {
		return err
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return recordChange(ctx, w, "patient", p.ID, omsync.ActionUpsert, payload, nil)
}
