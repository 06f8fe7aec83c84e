package directory

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

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const (
	providerColumns    = `id, first_name, last_name, status, resource_id, created_at, updated_at`
	resourceColumns    = `id, name, kind, active, created_at, updated_at`
	templateColumns    = `id, provider_id, day_of_week, start_time, end_time, created_at`
	timeOffColumns     = `id, provider_id, start_at, end_at, status, reason, created_at, updated_at`
	apptTypeColumns    = `id, name, code, duration_minutes, buffer_minutes, eligible_providers, online_bookable, active, created_at, updated_at`
	microsecondsPerMin = int64(time.Minute / time.Microsecond)
)

// Helpers

func pgTime(t slot.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * microsecondsPerMin, Valid: true}
}

func fromPgTime(t pgtype.Time) slot.TimeOfDay {
	return slot.TimeOfDay(t.Microseconds / microsecondsPerMin)
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(
		&p.ID,
		&p.FirstName,
		&p.LastName,
		&p.Status,
		&p.ResourceID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, db.Classify(err, "provider")
	}
	return &p, nil
}

func scanResource(row pgx.Row) (*Resource, error) {
	var r Resource
	err := row.Scan(&r.ID, &r.Name, &r.Kind, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, db.Classify(err, "resource")
	}
	return &r, nil
}

func scanTemplate(row pgx.Row) (*AvailabilityTemplate, error) {
	var t AvailabilityTemplate
	var day int16
	var start, end pgtype.Time

	err := row.Scan(&t.ID, &t.ProviderID, &day, &start, &end, &t.CreatedAt)
	if err != nil {
		return nil, db.Classify(err, "availability template")
	}

	t.DayOfWeek = time.Weekday(day)
	t.Start = fromPgTime(start)
	t.End = fromPgTime(end)
	return &t, nil
}

func scanTimeOff(row pgx.Row) (*TimeOffBlock, error) {
	var b TimeOffBlock
	err := row.Scan(
		&b.ID,
		&b.ProviderID,
		&b.Start,
		&b.End,
		&b.Status,
		&b.Reason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, db.Classify(err, "time-off block")
	}
	return &b, nil
}

func scanAppointmentType(row pgx.Row) (*AppointmentType, error) {
	var t AppointmentType
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Code,
		&t.DurationMinutes,
		&t.BufferMinutes,
		&t.EligibleProviders,
		&t.OnlineBookable,
		&t.Active,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, db.Classify(err, "appointment type")
	}
	return &t, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error), what string) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, what)
	}
	return out, nil
}

// Providers

func (r *PgRepository) CreateProvider(ctx context.Context, p Provider) (*Provider, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO providers (id, first_name, last_name, status, resource_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+providerColumns,
		p.ID, p.FirstName, p.LastName, p.Status, p.ResourceID)
	return scanProvider(row)
}

func (r *PgRepository) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id)
	return scanProvider(row)
}

func (r *PgRepository) ListProviders(ctx context.Context, status *ProviderStatus) ([]Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY last_name, first_name
	`, status)
	if err != nil {
		return nil, db.Classify(err, "provider")
	}
	return collect(rows, scanProvider, "provider")
}

func (r *PgRepository) UpdateProvider(ctx context.Context, p Provider) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE providers
		SET first_name = $2,
		    last_name = $3,
		    status = $4,
		    resource_id = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+providerColumns,
		p.ID, p.FirstName, p.LastName, p.Status, p.ResourceID)
	return scanProvider(row)
}

func (r *PgRepository) CountProvidersByStatus(ctx context.Context) (StatusCounts, error) {
	var c StatusCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'active'),
			count(*) FILTER (WHERE status = 'on_leave'),
			count(*) FILTER (WHERE status = 'inactive')
		FROM providers
	`).Scan(&c.Active, &c.OnLeave, &c.Inactive)
	if err != nil {
		return StatusCounts{}, db.Classify(err, "provider")
	}
	return c, nil
}

// Resources

func (r *PgRepository) CreateResource(ctx context.Context, res Resource) (*Resource, error) {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO resources (id, name, kind, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING `+resourceColumns,
		res.ID, res.Name, res.Kind, res.Active)
	return scanResource(row)
}

func (r *PgRepository) GetResource(ctx context.Context, id uuid.UUID) (*Resource, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id)
	return scanResource(row)
}

func (r *PgRepository) ListResources(ctx context.Context) ([]Resource, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+resourceColumns+` FROM resources ORDER BY name`)
	if err != nil {
		return nil, db.Classify(err, "resource")
	}
	return collect(rows, scanResource, "resource")
}

// Availability templates

func (r *PgRepository) ReplaceTemplates(ctx context.Context, providerID uuid.UUID, templates []AvailabilityTemplate) ([]AvailabilityTemplate, error) {
	var out []AvailabilityTemplate

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		// Serialize concurrent replacements for the same provider.
		if _, err := tx.Exec(ctx, `SELECT id FROM providers WHERE id = $1 FOR UPDATE`, providerID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM provider_availability WHERE provider_id = $1`, providerID); err != nil {
			return err
		}
		for _, t := range templates {
			if t.ID == uuid.Nil {
				t.ID = uuid.New()
			}
			row := tx.QueryRow(ctx, `
				INSERT INTO provider_availability (id, provider_id, day_of_week, start_time, end_time, created_at)
				VALUES ($1, $2, $3, $4, $5, now())
				RETURNING `+templateColumns,
				t.ID, providerID, int16(t.DayOfWeek), pgTime(t.Start), pgTime(t.End))
			saved, err := scanTemplate(row)
			if err != nil {
				return err
			}
			out = append(out, *saved)
		}
		return nil
	})
	if err != nil {
		return nil, db.Classify(err, "provider")
	}
	return out, nil
}

func (r *PgRepository) ListTemplates(ctx context.Context, providerID uuid.UUID) ([]AvailabilityTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+templateColumns+`
		FROM provider_availability
		WHERE provider_id = $1
		ORDER BY day_of_week, start_time
	`, providerID)
	if err != nil {
		return nil, db.Classify(err, "availability template")
	}
	return collect(rows, scanTemplate, "availability template")
}

func (r *PgRepository) TemplatesForDay(ctx context.Context, day time.Weekday, providerID *uuid.UUID) ([]ProviderTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.provider_id, a.day_of_week, a.start_time, a.end_time, a.created_at,
		       p.id, p.first_name, p.last_name, p.status, p.resource_id, p.created_at, p.updated_at
		FROM provider_availability a
		JOIN providers p ON p.id = a.provider_id
		WHERE a.day_of_week = $1
		  AND ($2::uuid IS NULL OR a.provider_id = $2)
		ORDER BY a.start_time, p.last_name
	`, int16(day), providerID)
	if err != nil {
		return nil, db.Classify(err, "availability template")
	}
	defer rows.Close()

	var out []ProviderTemplate
	for rows.Next() {
		var pt ProviderTemplate
		var d int16
		var start, end pgtype.Time
		err := rows.Scan(
			&pt.ID, &pt.ProviderID, &d, &start, &end, &pt.CreatedAt,
			&pt.Provider.ID, &pt.Provider.FirstName, &pt.Provider.LastName, &pt.Provider.Status,
			&pt.Provider.ResourceID, &pt.Provider.CreatedAt, &pt.Provider.UpdatedAt,
		)
		if err != nil {
			return nil, db.Classify(err, "availability template")
		}
		pt.DayOfWeek = time.Weekday(d)
		pt.Start = fromPgTime(start)
		pt.End = fromPgTime(end)
		out = append(out, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, "availability template")
	}
	return out, nil
}

// Time-off

// CreateTimeOff and SetTimeOffStatus hold the provider row lock, which bookings
// share while they check time-off, so an approval and a booking never both see
// the other as absent.
func (r *PgRepository) CreateTimeOff(ctx context.Context, b TimeOffBlock) (*TimeOffBlock, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	var created *TimeOffBlock
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT id FROM providers WHERE id = $1 FOR UPDATE`, b.ProviderID); err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO provider_time_off (id, provider_id, start_at, end_at, status, reason, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			RETURNING `+timeOffColumns,
			b.ID, b.ProviderID, b.Start, b.End, b.Status, b.Reason)
		var err error
		created, err = scanTimeOff(row)
		return err
	})
	if err != nil {
		return nil, db.Classify(err, "time-off block")
	}
	return created, nil
}

func (r *PgRepository) SetTimeOffStatus(ctx context.Context, id uuid.UUID, status TimeOffStatus) (*TimeOffBlock, error) {
	var updated *TimeOffBlock
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var providerID uuid.UUID
		err := tx.QueryRow(ctx, `
			SELECT p.id
			FROM providers p
			JOIN provider_time_off t ON t.provider_id = p.id
			WHERE t.id = $1
			FOR UPDATE OF p
		`, id).Scan(&providerID)
		if err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `
			UPDATE provider_time_off
			SET status = $2,
			    updated_at = now()
			WHERE id = $1
			RETURNING `+timeOffColumns,
			id, status)
		updated, err = scanTimeOff(row)
		return err
	})
	if err != nil {
		return nil, db.Classify(err, "time-off block")
	}
	return updated, nil
}

func (r *PgRepository) ListTimeOff(ctx context.Context, providerID uuid.UUID, from, to *time.Time) ([]TimeOffBlock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+timeOffColumns+`
		FROM provider_time_off
		WHERE provider_id = $1
		  AND ($2::timestamptz IS NULL OR end_at > $2)
		  AND ($3::timestamptz IS NULL OR start_at < $3)
		ORDER BY start_at
	`, providerID, from, to)
	if err != nil {
		return nil, db.Classify(err, "time-off block")
	}
	return collect(rows, scanTimeOff, "time-off block")
}

func (r *PgRepository) ApprovedTimeOff(ctx context.Context, providerIDs []uuid.UUID, from, to time.Time) ([]TimeOffBlock, error) {
	if len(providerIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+timeOffColumns+`
		FROM provider_time_off
		WHERE provider_id = ANY($1)
		  AND status = 'approved'
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`, providerIDs, from, to)
	if err != nil {
		return nil, db.Classify(err, "time-off block")
	}
	return collect(rows, scanTimeOff, "time-off block")
}

// Appointment types

func (r *PgRepository) CreateAppointmentType(ctx context.Context, t AppointmentType) (*AppointmentType, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.EligibleProviders == nil {
		t.EligibleProviders = []uuid.UUID{}
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointment_types
			(id, name, code, duration_minutes, buffer_minutes, eligible_providers, online_bookable, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+apptTypeColumns,
		t.ID, t.Name, t.Code, t.DurationMinutes, t.BufferMinutes, t.EligibleProviders, t.OnlineBookable, t.Active)
	return scanAppointmentType(row)
}

func (r *PgRepository) GetAppointmentType(ctx context.Context, id uuid.UUID) (*AppointmentType, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+apptTypeColumns+` FROM appointment_types WHERE id = $1`, id)
	return scanAppointmentType(row)
}

func (r *PgRepository) ListAppointmentTypes(ctx context.Context, activeOnly bool) ([]AppointmentType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptTypeColumns+`
		FROM appointment_types
		WHERE (NOT $1 OR active)
		ORDER BY name
	`, activeOnly)
	if err != nil {
		return nil, db.Classify(err, "appointment type")
	}
	return collect(rows, scanAppointmentType, "appointment type")
}
