package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rawblock/empi-engine/internal/dberrors"
	"github.com/rawblock/empi-engine/pkg/models"
)

const demographicColumns = `record_id, given_name, middle_name, family_name, name_day, gender,
	address_1, address_2, city, state, postal_code, ssn, organization, system, system_id,
	is_active, uq_hash, composite_key, composite_name, composite_name_day_postal_code,
	touched_by, touched_ts, transaction_key`

func scanDemographic(row pgx.Row) (models.Demographic, error) {
	var d models.Demographic
	err := row.Scan(
		&d.RecordID, &d.GivenName, &d.MiddleName, &d.FamilyName, &d.NameDay, &d.Gender,
		&d.Address1, &d.Address2, &d.City, &d.State, &d.PostalCode, &d.SSN,
		&d.Organization, &d.System, &d.SystemID, &d.IsActive, &d.UQHash,
		&d.CompositeKey, &d.CompositeName, &d.CompositeNameDayPostal,
		&d.TouchedBy, &d.TouchedTS, &d.TransactionKey,
	)
	return d, err
}

// InsertDemographic inserts a new Demographic row. A uq_hash collision
// surfaces as a dberrors.DuplicateRecord error (the ingest processor treats
// this as a non-fatal skip).
func (s *Store) InsertDemographic(ctx context.Context, d models.Demographic) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO demographic (`+demographicColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		d.RecordID, d.GivenName, d.MiddleName, d.FamilyName, d.NameDay, d.Gender,
		d.Address1, d.Address2, d.City, d.State, d.PostalCode, d.SSN,
		d.Organization, d.System, d.SystemID, d.IsActive, d.UQHash,
		d.CompositeKey, d.CompositeName, d.CompositeNameDayPostal,
		d.TouchedBy, d.TouchedTS, d.TransactionKey,
	)
	if err != nil && isUniqueViolation(err) {
		return dberrors.Wrap(dberrors.DuplicateRecord, "uq_hash collision", err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	// pgx wraps Postgres errors as *pgconn.PgError with code 23505 for
	// unique_violation; string-matching the code avoids importing pgconn
	// solely for this check.
	return err != nil && (containsCode(err, "23505"))
}

func containsCode(err error, code string) bool {
	type sqlState interface{ SQLState() string }
	var s sqlState
	if errors.As(err, &s) {
		return s.SQLState() == code
	}
	return false
}

// GetDemographic loads one Demographic row by record_id.
func (s *Store) GetDemographic(ctx context.Context, recordID int64) (models.Demographic, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+demographicColumns+` FROM demographic WHERE record_id = $1`, recordID)
	d, err := scanDemographic(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Demographic{}, false, nil
	}
	return d, err == nil, err
}

// SetDemographicActive flips is_active and stamps the touching transaction.
func (s *Store) SetDemographicActive(ctx context.Context, recordID int64, active bool, touchedBy, transactionKey string, ts time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE demographic SET is_active = $1, touched_by = $2, touched_ts = $3, transaction_key = $4 WHERE record_id = $5`,
		active, touchedBy, ts, transactionKey, recordID,
	)
	return err
}

// DeleteDemographic hard-deletes a Demographic row.
func (s *Store) DeleteDemographic(ctx context.Context, recordID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM demographic WHERE record_id = $1`, recordID)
	return err
}

// FindCoarseCandidates implements engine.CoarseFinder: every other record
// sharing postal_code, name_day, or family_name with record.
func (s *Store) FindCoarseCandidates(ctx context.Context, record models.Demographic) ([]models.Demographic, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+demographicColumns+` FROM demographic
		 WHERE record_id != $1 AND (postal_code = $2 OR name_day = $3 OR family_name = $4)`,
		record.RecordID, record.PostalCode, record.NameDay, record.FamilyName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Demographic
	for rows.Next() {
		d, err := scanDemographic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertArchive snapshots a Demographic row into demographic_archive.
func (s *Store) InsertArchive(ctx context.Context, a models.DemographicArchive) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO demographic_archive (archive_id, record_id, given_name, middle_name, family_name,
			name_day, gender, address_1, address_2, city, state, postal_code, ssn, organization,
			system, system_id, uq_hash, composite_key, composite_name, composite_name_day_postal_code,
			archive_transaction_key, transaction_key, touched_by, touched_ts)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		a.ArchiveID, a.RecordID, a.GivenName, a.MiddleName, a.FamilyName, a.NameDay, a.Gender,
		a.Address1, a.Address2, a.City, a.State, a.PostalCode, a.SSN, a.Organization,
		a.System, a.SystemID, a.UQHash, a.CompositeKey, a.CompositeName, a.CompositeNameDayPostal,
		a.ArchiveTransactionKey, a.TransactionKey, a.TouchedBy, a.TouchedTS,
	)
	return err
}

// GetArchive loads the most recent archive row for record_id, used by
// delete_action's restore-from-archive path.
func (s *Store) GetArchive(ctx context.Context, recordID int64) (models.DemographicArchive, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT archive_id, record_id, given_name, middle_name, family_name, name_day, gender,
			address_1, address_2, city, state, postal_code, ssn, organization, system, system_id,
			uq_hash, composite_key, composite_name, composite_name_day_postal_code,
			archive_transaction_key, transaction_key, touched_by, touched_ts
		 FROM demographic_archive WHERE record_id = $1 ORDER BY archive_id DESC LIMIT 1`,
		recordID,
	)
	var a models.DemographicArchive
	err := row.Scan(
		&a.ArchiveID, &a.RecordID, &a.GivenName, &a.MiddleName, &a.FamilyName, &a.NameDay, &a.Gender,
		&a.Address1, &a.Address2, &a.City, &a.State, &a.PostalCode, &a.SSN, &a.Organization,
		&a.System, &a.SystemID, &a.UQHash, &a.CompositeKey, &a.CompositeName, &a.CompositeNameDayPostal,
		&a.ArchiveTransactionKey, &a.TransactionKey, &a.TouchedBy, &a.TouchedTS,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DemographicArchive{}, false, nil
	}
	return a, err == nil, err
}

// DeleteArchive drops the archive row after a successful restore.
func (s *Store) DeleteArchive(ctx context.Context, archiveID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM demographic_archive WHERE archive_id = $1`, archiveID)
	return err
}

// InsertTelecom writes a contact-point row tied to a Demographic record.
func (s *Store) InsertTelecom(ctx context.Context, t models.Telecom) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO telecom (telecom_id, record_id, telecom_system, value, "use", touched_by, touched_ts, transaction_key)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		t.TelecomID, t.RecordID, t.TelecomSystem, t.Value, t.Use, t.TouchedBy, t.TouchedTS, t.TransactionKey,
	)
	return err
}
