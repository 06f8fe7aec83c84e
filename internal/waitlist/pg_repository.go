package waitlist

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling-engine/internal/db"
	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
)

const entryColumns = `id, patient_id, preferred_provider_id, appointment_type_id, preferred_days,
	preferred_time_start, preferred_time_end, urgency, status, notes,
	offered_provider_id, offered_start_at, notified_at, filled_appointment_id, created_at, updated_at`

const microsecondsPerMin = int64(time.Minute / time.Microsecond)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func toPgTime(t *slot.TimeOfDay) pgtype.Time {
	if t == nil {
		return pgtype.Time{}
	}
	return pgtype.Time{Microseconds: int64(*t) * microsecondsPerMin, Valid: true}
}

func fromPgTime(t pgtype.Time) *slot.TimeOfDay {
	if !t.Valid {
		return nil
	}
	v := slot.TimeOfDay(t.Microseconds / microsecondsPerMin)
	return &v
}

func toDays(days []time.Weekday) []int16 {
	out := make([]int16, len(days))
	for i, d := range days {
		out[i] = int16(d)
	}
	return out
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e          Entry
		days       []int16
		start, end pgtype.Time
	)
	err := row.Scan(
		&e.ID,
		&e.PatientID,
		&e.PreferredProviderID,
		&e.AppointmentTypeID,
		&days,
		&start,
		&end,
		&e.Urgency,
		&e.Status,
		&e.Notes,
		&e.OfferedProviderID,
		&e.OfferedStartAt,
		&e.NotifiedAt,
		&e.FilledAppointmentID,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, db.Classify(err, "waitlist entry")
	}
	e.PreferredDays = make([]time.Weekday, len(days))
	for i, d := range days {
		e.PreferredDays[i] = time.Weekday(d)
	}
	e.PreferredStart = fromPgTime(start)
	e.PreferredEnd = fromPgTime(end)
	return &e, nil
}

func collect(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, "waitlist entry")
	}
	return out, nil
}

func (r *PgRepository) Insert(ctx context.Context, e Entry) (*Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO waitlist_entries (
			id, patient_id, preferred_provider_id, appointment_type_id, preferred_days,
			preferred_time_start, preferred_time_end, urgency, status, notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+entryColumns,
		e.ID, e.PatientID, e.PreferredProviderID, e.AppointmentTypeID, toDays(e.PreferredDays),
		toPgTime(e.PreferredStart), toPgTime(e.PreferredEnd), e.Urgency, e.Status, e.Notes)
	return scanEntry(row)
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM waitlist_entries WHERE id = $1`, id)
	return scanEntry(row)
}

func (r *PgRepository) List(ctx context.Context, f ListFilter) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::uuid IS NULL OR patient_id = $2)
		ORDER BY created_at
	`, f.Status, f.PatientID)
	if err != nil {
		return nil, db.Classify(err, "waitlist entry")
	}
	return collect(rows)
}

func (r *PgRepository) WaitingFor(ctx context.Context, providerID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE status = 'waiting'
		  AND (preferred_provider_id IS NULL OR preferred_provider_id = $1)
		ORDER BY created_at
	`, providerID)
	if err != nil {
		return nil, db.Classify(err, "waitlist entry")
	}
	return collect(rows)
}

func (r *PgRepository) SetStatus(ctx context.Context, id uuid.UUID, from Status, upd StatusUpdate) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = $2,
		    notified_at = CASE WHEN $2 = 'notified' THEN $4 ELSE notified_at END,
		    offered_provider_id = COALESCE($5, offered_provider_id),
		    offered_start_at = COALESCE($6, offered_start_at),
		    filled_appointment_id = COALESCE($7, filled_appointment_id),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+entryColumns,
		id, upd.To, from, upd.At, upd.OfferedProviderID, upd.OfferedStartAt, upd.FilledAppointmentID)
	return scanEntry(row)
}

func (r *PgRepository) ExpireNotifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = 'expired', updated_at = now()
		WHERE status = 'notified'
		  AND notified_at < $1
	`, cutoff)
	if err != nil {
		return 0, db.Classify(err, "waitlist entry")
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) ExpireWaitingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = 'expired', updated_at = now()
		WHERE status = 'waiting'
		  AND created_at < $1
	`, cutoff)
	if err != nil {
		return 0, db.Classify(err, "waitlist entry")
	}
	return tag.RowsAffected(), nil
}
