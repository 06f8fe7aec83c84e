package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/db"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

var dialect = goqu.Dialect("postgres")

var columns = []any{
	"id", "patient_id", "provider_id", "resource_id", "appointment_type_id", "type",
	"appointment_date", "start_at", "end_at", "duration_minutes", "buffer_minutes", "reserved_until",
	"status", "booking_source", "price", "notes",
	"checked_in_at", "completed_at", "cancelled_at", "cancellation_reason",
	"rescheduled_from", "rescheduled_to", "created_at", "updated_at",
}

const selectColumns = `id, patient_id, provider_id, resource_id, appointment_type_id, type,
	appointment_date, start_at, end_at, duration_minutes, buffer_minutes, reserved_until,
	status, booking_source, price, notes,
	checked_in_at, completed_at, cancelled_at, cancellation_reason,
	rescheduled_from, rescheduled_to, created_at, updated_at`

const activeStatusSQL = `('scheduled', 'confirmed', 'checked_in')`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.ResourceID,
		&a.AppointmentTypeID,
		&a.Type,
		&a.Date,
		&a.StartAt,
		&a.EndAt,
		&a.DurationMinutes,
		&a.BufferMinutes,
		&a.ReservedUntil,
		&a.Status,
		&a.Source,
		&a.Price,
		&a.Notes,
		&a.CheckedInAt,
		&a.CompletedAt,
		&a.CancelledAt,
		&a.CancellationReason,
		&a.RescheduledFrom,
		&a.RescheduledTo,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, db.Classify(err, "appointment")
	}
	return &a, nil
}

func collect(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, "appointment")
	}
	return out, nil
}

// dateOnly strips the clock so pgx encodes the intended calendar day.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Reads

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	query, args, err := listQuery(f)
	if err != nil {
		return nil, apperr.Internal("build appointment query", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err, "appointment")
	}
	return collect(rows)
}

func listQuery(f ListFilter) (string, []any, error) {
	ds := dialect.From("appointments").Select(columns...).Prepared(true)

	if f.Date != nil {
		ds = ds.Where(goqu.C("appointment_date").Eq(dateOnly(*f.Date)))
	}
	if f.From != nil {
		ds = ds.Where(goqu.C("appointment_date").Gte(dateOnly(*f.From)))
	}
	if f.To != nil {
		ds = ds.Where(goqu.C("appointment_date").Lte(dateOnly(*f.To)))
	}
	if f.ProviderID != nil {
		ds = ds.Where(goqu.Ex{"provider_id": f.ProviderID.String()})
	}
	if f.PatientID != nil {
		ds = ds.Where(goqu.Ex{"patient_id": f.PatientID.String()})
	}
	if f.Status != nil {
		ds = ds.Where(goqu.Ex{"status": string(*f.Status)})
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	ds = ds.Order(goqu.I("appointment_date").Asc(), goqu.I("start_at").Asc()).
		Limit(uint(limit)).
		Offset(uint(offset))

	return ds.ToSQL()
}

func (r *PgRepository) Upcoming(ctx context.Context, patientID uuid.UUID, now time.Time, limit int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND status IN `+activeStatusSQL+`
		  AND end_at > $2
		ORDER BY start_at
		LIMIT $3
	`, patientID, now, limit)
	if err != nil {
		return nil, db.Classify(err, "appointment")
	}
	return collect(rows)
}

func (r *PgRepository) CountOnDate(ctx context.Context, date time.Time, providerID *uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE appointment_date = $1
		  AND status NOT IN ('cancelled', 'rescheduled')
		  AND ($2::uuid IS NULL OR provider_id = $2)
	`, dateOnly(date), providerID).Scan(&n)
	if err != nil {
		return 0, db.Classify(err, "appointment")
	}
	return n, nil
}

func (r *PgRepository) ActiveBetween(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM appointments
		WHERE status IN `+activeStatusSQL+`
		  AND start_at < $2
		  AND reserved_until > $1
		ORDER BY start_at
	`, from, to)
	if err != nil {
		return nil, db.Classify(err, "appointment")
	}
	return collect(rows)
}

func (r *PgRepository) FindOverdue(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM appointments
		WHERE status IN ('scheduled', 'confirmed')
		  AND start_at < $1
		ORDER BY start_at
	`, cutoff)
	if err != nil {
		return nil, db.Classify(err, "appointment")
	}
	return collect(rows)
}

// Writes

func (r *PgRepository) Insert(ctx context.Context, a Appointment) (*Appointment, error) {
	var created *Appointment
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		created, err = insertChecked(ctx, tx, a)
		return err
	})
	if err != nil {
		return nil, db.Classify(err, "appointment")
	}
	return created, nil
}

// insertChecked re-checks approved time-off and looks for an overlapping active
// booking before inserting. It must run inside a transaction: the provider row is
// share-locked so a concurrent time-off write waits for the booking or is seen by
// it. The exclusion constraints catch whatever slips past the booking check.
func insertChecked(ctx context.Context, q db.Querier, a Appointment) (*Appointment, error) {
	if _, err := q.Exec(ctx, `SELECT id FROM providers WHERE id = $1 FOR SHARE`, a.ProviderID); err != nil {
		return nil, fmt.Errorf("lock provider: %w", err)
	}

	var timeOff bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM provider_time_off
			WHERE provider_id = $1
			  AND status = 'approved'
			  AND start_at < $3
			  AND end_at > $2
		)
	`, a.ProviderID, a.StartAt, a.ReservedUntil).Scan(&timeOff)
	if err != nil {
		return nil, fmt.Errorf("check time-off: %w", err)
	}
	if timeOff {
		return nil, apperr.SlotConflict("provider has approved time off during the requested time, re-check availability")
	}

	var conflict bool
	err = q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE status IN `+activeStatusSQL+`
			  AND start_at < $3
			  AND reserved_until > $2
			  AND (provider_id = $1 OR ($4::uuid IS NOT NULL AND resource_id = $4))
		)
	`, a.ProviderID, a.StartAt, a.ReservedUntil, a.ResourceID).Scan(&conflict)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	if conflict {
		return nil, apperr.SlotConflict("requested time overlaps an existing booking, re-check availability")
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	row := q.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, provider_id, resource_id, appointment_type_id, type,
			appointment_date, start_at, end_at, duration_minutes, buffer_minutes, reserved_until,
			status, booking_source, price, notes, rescheduled_from, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now(), now())
		RETURNING `+selectColumns,
		a.ID, a.PatientID, a.ProviderID, a.ResourceID, a.AppointmentTypeID, a.Type,
		dateOnly(a.Date), a.StartAt, a.EndAt, a.DurationMinutes, a.BufferMinutes, a.ReservedUntil,
		a.Status, a.Source, a.Price, a.Notes, a.RescheduledFrom)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from Status, upd StatusUpdate) (*Appointment, error) {
	return updateStatus(ctx, r.pool, id, from, upd)
}

func updateStatus(ctx context.Context, q db.Querier, id uuid.UUID, from Status, upd StatusUpdate) (*Appointment, error) {
	row := q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    checked_in_at = CASE WHEN $2 = 'checked_in' THEN $4 ELSE checked_in_at END,
		    completed_at = CASE WHEN $2 = 'completed' THEN $4 ELSE completed_at END,
		    cancelled_at = CASE WHEN $2 = 'cancelled' THEN $4 ELSE cancelled_at END,
		    cancellation_reason = COALESCE($5, cancellation_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+selectColumns,
		id, upd.To, from, upd.At, upd.Reason)
	return scanAppointment(row)
}

func (r *PgRepository) Reschedule(ctx context.Context, oldID uuid.UUID, from Status, next Appointment) (*Appointment, *Appointment, error) {
	var old, created *Appointment

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := updateStatus(ctx, tx, oldID, from, StatusUpdate{To: StatusRescheduled, At: time.Now()}); err != nil {
			return err
		}

		next.RescheduledFrom = &oldID
		var err error
		created, err = insertChecked(ctx, tx, next)
		if err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET rescheduled_to = $2,
			    updated_at = now()
			WHERE id = $1
			RETURNING `+selectColumns,
			oldID, created.ID)
		old, err = scanAppointment(row)
		return err
	})
	if err != nil {
		return nil, nil, db.Classify(err, "appointment")
	}
	return old, created, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
