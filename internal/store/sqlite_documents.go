package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ria8651/open-msupply/internal/types"
)

// StoresBySiteID returns the stores whose authoritative copy lives on siteID.
func (q *queries) StoresBySiteID(ctx context.Context, siteID int64) ([]types.StoreRow, error) {
	rows, err := q.conn.QueryContext(ctx, `
		SELECT id, name_id, code, site_id FROM store WHERE site_id = ? ORDER BY id
	`, siteID)
	if err != nil {
		return nil, fmt.Errorf("query stores for site %d: %w", siteID, err)
	}
	defer rows.Close()

	stores := make([]types.StoreRow, 0)
	for rows.Next() {
		var s types.StoreRow
		if err := rows.Scan(&s.ID, &s.NameID, &s.Code, &s.SiteID); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

// DocumentRegistryByType returns the registry entry for a document type.
func (q *queries) DocumentRegistryByType(ctx context.Context, documentType string) (*types.DocumentRegistryRow, error) {
	var r types.DocumentRegistryRow
	var category string
	err := q.conn.QueryRowContext(ctx, `
		SELECT id, document_type, category, context_id, name
		FROM document_registry WHERE document_type = ?
		ORDER BY id LIMIT 1
	`, documentType).Scan(&r.ID, &r.DocumentType, &category, &r.ContextID, &r.Name)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document registry %s: %w", documentType, err)
	}
	r.Category = types.DocumentCategory(category)
	return &r, nil
}

// InsertDocument stores a document version. Versions are immutable, so an
// existing id is left untouched. Reports whether a row was inserted.
func (q *queries) InsertDocument(ctx context.Context, doc *types.Document) (bool, error) {
	parents := doc.ParentIDs
	if parents == nil {
		parents = []string{}
	}
	parentIDs, err := json.Marshal(parents)
	if err != nil {
		return false, fmt.Errorf("marshal parent ids: %w", err)
	}
	status := doc.Status
	if status == "" {
		status = "ACTIVE"
	}

	result, err := q.conn.ExecContext(ctx, `
		INSERT INTO document (id, name, parent_ids, user_id, datetime, type, data, status, owner_name_id, context_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, doc.ID, doc.Name, string(parentIDs), doc.UserID, formatTime(doc.Datetime),
		doc.Type, string(doc.Data), status, doc.OwnerNameID, doc.ContextID)
	if err != nil {
		return false, fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n > 0, nil
}

// LatestDocument returns the newest version of the named document.
func (q *queries) LatestDocument(ctx context.Context, name string) (*types.Document, error) {
	var d types.Document
	var parentIDs, datetime, data string
	err := q.conn.QueryRowContext(ctx, `
		SELECT id, name, parent_ids, user_id, datetime, type, data, status, owner_name_id, context_id
		FROM document WHERE name = ?
		ORDER BY datetime DESC, id DESC LIMIT 1
	`, name).Scan(&d.ID, &d.Name, &parentIDs, &d.UserID, &datetime, &d.Type, &data,
		&d.Status, &d.OwnerNameID, &d.ContextID)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest document %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(parentIDs), &d.ParentIDs); err != nil {
		return nil, fmt.Errorf("parse parent ids of %s: %w", d.ID, err)
	}
	if d.Datetime, err = parseTime(datetime); err != nil {
		return nil, fmt.Errorf("parse datetime of %s: %w", d.ID, err)
	}
	d.Data = json.RawMessage(data)
	return &d, nil
}

// UpsertPatient writes the patient row unless a newer document already produced it.
// Reports whether the row was written.
func (q *queries) UpsertPatient(ctx context.Context, p *types.Patient) (bool, error) {
	result, err := q.conn.ExecContext(ctx, `
		INSERT INTO patient (id, code, first_name, last_name, gender, date_of_birth, is_deceased, document_datetime, is_sync_update)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			gender = excluded.gender,
			date_of_birth = excluded.date_of_birth,
			is_deceased = excluded.is_deceased,
			document_datetime = excluded.document_datetime,
			is_sync_update = excluded.is_sync_update
		WHERE excluded.document_datetime >= patient.document_datetime
	`, p.ID, p.Code, p.FirstName, p.LastName, p.Gender, p.DateOfBirth, p.IsDeceased,
		formatTime(p.DocumentDatetime), p.IsSyncUpdate)
	if err != nil {
		return false, fmt.Errorf("upsert patient %s: %w", p.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n > 0, nil
}

// GetPatient returns a patient by id.
func (q *queries) GetPatient(ctx context.Context, id string) (*types.Patient, error) {
	var p types.Patient
	var datetime string
	err := q.conn.QueryRowContext(ctx, `
		SELECT id, code, first_name, last_name, gender, date_of_birth, is_deceased, document_datetime, is_sync_update
		FROM patient WHERE id = ?
	`, id).Scan(&p.ID, &p.Code, &p.FirstName, &p.LastName, &p.Gender, &p.DateOfBirth,
		&p.IsDeceased, &datetime, &p.IsSyncUpdate)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	if p.DocumentDatetime, err = parseTime(datetime); err != nil {
		return nil, fmt.Errorf("parse document_datetime of %s: %w", id, err)
	}
	return &p, nil
}

// UpsertProgramEnrolment writes the enrolment row keyed by document name.
func (q *queries) UpsertProgramEnrolment(ctx context.Context, e *types.ProgramEnrolment) error {
	_, err := q.conn.ExecContext(ctx, `
		INSERT INTO program_enrolment (id, document_name, document_type, patient_id, context_id, enrolment_datetime, program_enrolment_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_name) DO UPDATE SET
			document_type = excluded.document_type,
			patient_id = excluded.patient_id,
			context_id = excluded.context_id,
			enrolment_datetime = excluded.enrolment_datetime,
			program_enrolment_id = excluded.program_enrolment_id,
			status = excluded.status
	`, e.ID, e.DocumentName, e.DocumentType, e.PatientID, e.ContextID,
		formatTime(e.EnrolmentDatetime), e.ProgramEnrolmentID, e.Status)
	if err != nil {
		return fmt.Errorf("upsert program enrolment %s: %w", e.DocumentName, err)
	}
	return nil
}

// GetProgramEnrolment returns the enrolment derived from the named document.
func (q *queries) GetProgramEnrolment(ctx context.Context, documentName string) (*types.ProgramEnrolment, error) {
	var e types.ProgramEnrolment
	var enrolled string
	err := q.conn.QueryRowContext(ctx, `
		SELECT id, document_name, document_type, patient_id, context_id, enrolment_datetime, program_enrolment_id, status
		FROM program_enrolment WHERE document_name = ?
	`, documentName).Scan(&e.ID, &e.DocumentName, &e.DocumentType, &e.PatientID, &e.ContextID,
		&enrolled, &e.ProgramEnrolmentID, &e.Status)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get program enrolment %s: %w", documentName, err)
	}
	if e.EnrolmentDatetime, err = parseTime(enrolled); err != nil {
		return nil, fmt.Errorf("parse enrolment_datetime of %s: %w", documentName, err)
	}
	return &e, nil
}

// UpsertEncounter writes the encounter row keyed by document name.
func (q *queries) UpsertEncounter(ctx context.Context, e *types.Encounter) error {
	_, err := q.conn.ExecContext(ctx, `
		INSERT INTO encounter (id, document_name, document_type, patient_id, context_id, created_datetime, start_datetime, end_datetime, status, clinician_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_name) DO UPDATE SET
			document_type = excluded.document_type,
			patient_id = excluded.patient_id,
			context_id = excluded.context_id,
			start_datetime = excluded.start_datetime,
			end_datetime = excluded.end_datetime,
			status = excluded.status,
			clinician_id = excluded.clinician_id
	`, e.ID, e.DocumentName, e.DocumentType, e.PatientID, e.ContextID,
		formatTime(e.CreatedDatetime), formatTime(e.StartDatetime), formatNullableTime(e.EndDatetime),
		e.Status, e.ClinicianID)
	if err != nil {
		return fmt.Errorf("upsert encounter %s: %w", e.DocumentName, err)
	}
	return nil
}

// GetEncounter returns the encounter derived from the named document.
func (q *queries) GetEncounter(ctx context.Context, documentName string) (*types.Encounter, error) {
	var e types.Encounter
	var created, start string
	var end sql.NullString
	err := q.conn.QueryRowContext(ctx, `
		SELECT id, document_name, document_type, patient_id, context_id, created_datetime, start_datetime, end_datetime, status, clinician_id
		FROM encounter WHERE document_name = ?
	`, documentName).Scan(&e.ID, &e.DocumentName, &e.DocumentType, &e.PatientID, &e.ContextID,
		&created, &start, &end, &e.Status, &e.ClinicianID)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get encounter %s: %w", documentName, err)
	}
	if e.CreatedDatetime, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_datetime of %s: %w", documentName, err)
	}
	if e.StartDatetime, err = parseTime(start); err != nil {
		return nil, fmt.Errorf("parse start_datetime of %s: %w", documentName, err)
	}
	if e.EndDatetime, err = parseNullableTime(end); err != nil {
		return nil, fmt.Errorf("parse end_datetime of %s: %w", documentName, err)
	}
	return &e, nil
}

// CountRows returns the number of rows in a schema-described table.
func (q *queries) CountRows(ctx context.Context, schema TableSchema) (int64, error) {
	if !schema.Valid() {
		return 0, fmt.Errorf("%s: %w", schema.Name, ErrUnknownSchema)
	}
	var n int64
	if err := q.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+schema.Name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", schema.Name, err)
	}
	return n, nil
}
