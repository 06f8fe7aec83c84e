package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-scheduling-engine/internal/config"
	"github.com/hackgods/clinic-scheduling-engine/internal/db"
	"github.com/hackgods/clinic-scheduling-engine/internal/logging"
	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
)

type simConfig struct {
	baseURL      string
	duration     time.Duration
	workers      int
	bookingRatio float64
	cancelRatio  float64
	patients     int
	days         int
}

// dataPool is what workers pick from. Appointments grow as bookings succeed.
type dataPool struct {
	providers []uuid.UUID
	patients  []uuid.UUID
	dates     []string

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (p *dataPool) addAppointment(id uuid.UUID) {
	p.mu.Lock()
	p.appointments = append(p.appointments, id)
	p.mu.Unlock()
}

func (p *dataPool) randomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.appointments) == 0 {
		return uuid.Nil, false
	}
	return p.appointments[rng.IntN(len(p.appointments))], true
}

type opMetrics struct {
	total     atomic.Int64
	success   atomic.Int64
	conflict  atomic.Int64
	failed    atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (m *opMetrics) record(latency time.Duration, status int) {
	m.total.Add(1)
	switch {
	case status >= 200 && status < 300:
		m.success.Add(1)
	case status == http.StatusConflict:
		m.conflict.Add(1)
	default:
		m.failed.Add(1)
	}
	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

// percentile returns the q-th latency, q in [0,1].
func (m *opMetrics) percentile(q float64) time.Duration {
	m.mu.Lock()
	sorted := slices.Clone(m.latencies)
	m.mu.Unlock()
	if len(sorted) == 0 {
		return 0
	}
	slices.Sort(sorted)
	idx := min(int(float64(len(sorted))*q), len(sorted)-1)
	return sorted[idx]
}

type metrics struct {
	slots   opMetrics
	booking opMetrics
	confirm opMetrics
	cancel  opMetrics
	read    opMetrics
}

type simulator struct {
	cfg     simConfig
	loc     *time.Location
	pool    *dataPool
	client  *http.Client
	metrics metrics
}

func main() {
	var sc simConfig
	cmd := &cobra.Command{
		Use:          "simulate",
		Short:        "Drive concurrent booking traffic at a running api-server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), sc)
		},
	}
	f := cmd.Flags()
	f.StringVar(&sc.baseURL, "url", "http://localhost:8080", "api-server base URL")
	f.DurationVar(&sc.duration, "duration", 30*time.Second, "how long to run")
	f.IntVar(&sc.workers, "workers", 20, "concurrent clients")
	f.Float64Var(&sc.bookingRatio, "booking-ratio", 0.6, "share of operations that try to book")
	f.Float64Var(&sc.cancelRatio, "cancel-ratio", 0.1, "share of operations that cancel")
	f.IntVar(&sc.patients, "patients", 500, "distinct patient ids to book for")
	f.IntVar(&sc.days, "days", 5, "weekdays ahead to book into")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("simulation failed")
	}
}

func run(ctx context.Context, sc simConfig) error {
	if sc.workers <= 0 || sc.duration <= 0 {
		return fmt.Errorf("workers and duration must be > 0")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Init("simulate", cfg.Env, cfg.LogLevel)
	ctx = logger.WithContext(ctx)

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pg, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	cancel()
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	pool, err := loadDataPool(ctx, pg, sc, cfg.Scheduling.Location)
	if err != nil {
		return err
	}
	logger.Info().
		Int("providers", len(pool.providers)).
		Strs("dates", pool.dates).
		Int("workers", sc.workers).
		Dur("duration", sc.duration).
		Msg("simulation starting")

	sim := &simulator{
		cfg:    sc,
		loc:    cfg.Scheduling.Location,
		pool:   pool,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	sim.run(ctx)
	sim.report()

	overlaps, err := countOverlaps(ctx, pg)
	if err != nil {
		return err
	}
	if overlaps > 0 {
		return fmt.Errorf("found %d overlapping active appointment pairs", overlaps)
	}
	logger.Info().Msg("no overlapping appointments found")
	return nil
}

func loadDataPool(ctx context.Context, pg *pgxpool.Pool, sc simConfig, loc *time.Location) (*dataPool, error) {
	rows, err := pg.Query(ctx, `SELECT id FROM providers WHERE status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	providers, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no active providers, run seed first")
	}

	p := &dataPool{providers: providers}
	for range sc.patients {
		p.patients = append(p.patients, uuid.New())
	}
	day := time.Now().In(loc)
	for len(p.dates) < sc.days {
		day = day.AddDate(0, 0, 1)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		p.dates = append(p.dates, day.Format(time.DateOnly))
	}
	return p, nil
}

// countOverlaps looks for active appointments whose reserved windows intersect on
// the same provider. The booking path must keep this at zero.
func countOverlaps(ctx context.Context, pg *pgxpool.Pool) (int, error) {
	var n int
	err := pg.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.provider_id = b.provider_id
		 AND a.id < b.id
		 AND a.start_at < b.reserved_until
		 AND b.start_at < a.reserved_until
		WHERE a.status IN ('scheduled', 'confirmed', 'checked_in')
		  AND b.status IN ('scheduled', 'confirmed', 'checked_in')
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count overlaps: %w", err)
	}
	return n, nil
}

func (s *simulator) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.duration)
	defer cancel()

	var g errgroup.Group
	for i := range s.cfg.workers {
		g.Go(func() error {
			s.worker(ctx, uint64(i))
			return nil
		})
	}
	_ = g.Wait()
	zerolog.Ctx(ctx).Info().Msg("simulation complete")
}

func (s *simulator) worker(ctx context.Context, id uint64) {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), id))
	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.cfg.bookingRatio:
			s.book(ctx, rng)
		case r < s.cfg.bookingRatio+s.cfg.cancelRatio:
			s.cancelOne(ctx, rng)
		case rng.IntN(2) == 0:
			s.confirmOne(ctx, rng)
		default:
			s.readOne(ctx, rng)
		}
	}
}

// book lists a provider's free slots and races the other workers for one of them.
func (s *simulator) book(ctx context.Context, rng *rand.Rand) {
	providerID := s.pool.providers[rng.IntN(len(s.pool.providers))]
	date := s.pool.dates[rng.IntN(len(s.pool.dates))]

	var slots struct {
		Slots []slot.Slot `json:"slots"`
	}
	status, err := s.do(ctx, &s.metrics.slots, http.MethodGet,
		fmt.Sprintf("/slots?date=%s&provider_id=%s", date, providerID), nil, &slots)
	if err != nil || status != http.StatusOK {
		return
	}
	var free []slot.Slot
	for _, sl := range slots.Slots {
		if sl.Available {
			free = append(free, sl)
		}
	}
	if len(free) == 0 {
		return
	}
	// Bias toward the first few free slots so workers collide.
	pick := free[rng.IntN(min(len(free), 3))]

	body := map[string]any{
		"patient_id":     s.pool.patients[rng.IntN(len(s.pool.patients))],
		"provider_id":    providerID,
		"date":           date,
		"start_time":     slot.Of(pick.Start, s.loc),
		"booking_source": "online",
	}
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	status, err = s.do(ctx, &s.metrics.booking, http.MethodPost, "/appointments", body, &created)
	if err == nil && status == http.StatusCreated && created.ID != uuid.Nil {
		s.pool.addAppointment(created.ID)
	}
}

func (s *simulator) confirmOne(ctx context.Context, rng *rand.Rand) {
	if id, ok := s.pool.randomAppointment(rng); ok {
		_, _ = s.do(ctx, &s.metrics.confirm, http.MethodPost, "/appointments/"+id.String()+"/confirm", nil, nil)
	}
}

func (s *simulator) cancelOne(ctx context.Context, rng *rand.Rand) {
	if id, ok := s.pool.randomAppointment(rng); ok {
		body := map[string]string{"reason": "simulated cancellation"}
		_, _ = s.do(ctx, &s.metrics.cancel, http.MethodPost, "/appointments/"+id.String()+"/cancel", body, nil)
	}
}

func (s *simulator) readOne(ctx context.Context, rng *rand.Rand) {
	if id, ok := s.pool.randomAppointment(rng); ok {
		_, _ = s.do(ctx, &s.metrics.read, http.MethodGet, "/appointments/"+id.String(), nil, nil)
	}
}

// do sends one request and records it. Requests cut short by the end of the run
// are not recorded.
func (s *simulator) do(ctx context.Context, m *opMetrics, method, path string, in, out any) (int, error) {
	var body *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			m.record(latency, 0)
		}
		return 0, err
	}
	defer resp.Body.Close()

	m.record(latency, resp.StatusCode)
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *simulator) report() {
	fmt.Println("\n" + strings.Repeat("=", 72))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 72))
	fmt.Printf("Duration: %s  Workers: %d\n\n", s.cfg.duration, s.cfg.workers)

	printOp("List slots", &s.metrics.slots)
	printOp("Book", &s.metrics.booking)
	printOp("Confirm", &s.metrics.confirm)
	printOp("Cancel", &s.metrics.cancel)
	printOp("Read", &s.metrics.read)
}

func printOp(name string, m *opMetrics) {
	total := m.total.Load()
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total:     %d\n", total)
	fmt.Printf("  Success:   %d (%.1f%%)\n", m.success.Load(), pct(m.success.Load()))
	if c := m.conflict.Load(); c > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", c, pct(c))
	}
	if e := m.failed.Load(); e > 0 {
		fmt.Printf("  Errors:    %d (%.1f%%)\n", e, pct(e))
	}
	fmt.Printf("  Latency:   p50=%s p95=%s p99=%s\n\n",
		m.percentile(0.50).Round(time.Millisecond),
		m.percentile(0.95).Round(time.Millisecond),
		m.percentile(0.99).Round(time.Millisecond))
}
