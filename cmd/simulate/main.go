package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/session-scheduling/internal/auth"
	"github.com/hackgods/session-scheduling/internal/config"
	"github.com/hackgods/session-scheduling/internal/db"
	"github.com/hackgods/session-scheduling/internal/logging"
	"github.com/hackgods/session-scheduling/internal/scheduling"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	ConfirmRatio  float64
	ReadRatio     float64
	Clients       int
	WindowLimit   int
	WeeksAhead    int
	ContentionHit int // concurrent requests fired at a single slot before the run
}

// slot is a one-hour session a client can try to book.
type slot struct {
	ProviderID uuid.UUID
	OwnerID    uuid.UUID
	Date       scheduling.Date
	Start      scheduling.Clock
}

type DataPool struct {
	Slots   []slot
	Clients []auth.Principal

	clientTokens   map[uuid.UUID]string
	providerTokens map[uuid.UUID]string

	mu       sync.RWMutex
	bookings []createdBooking
}

type createdBooking struct {
	ID       uuid.UUID
	ClientID uuid.UUID
	OwnerID  uuid.UUID
}

func (dp *DataPool) AddBooking(b createdBooking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

func (dp *DataPool) RandomBooking(rng *rand.Rand) (createdBooking, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.bookings) == 0 {
		return createdBooking{}, false
	}
	return dp.bookings[rng.Intn(len(dp.bookings))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&om.Error, 1)
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict || status == http.StatusServiceUnavailable:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		idx := len(latencies) * p / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), pct(50), pct(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking      OperationMetrics
	Confirm      OperationMetrics
	ReadBooking  OperationMetrics
	ListClient   OperationMetrics
	Availability OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}
	logger := logging.Must(false)
	defer logger.Sync()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("confirm", cfg.ConfirmRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, db.PoolOptions{AppName: "session-scheduling-simulate"})
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	gateway := auth.NewGateway(baseCfg.JWTSecret, baseCfg.JWTTTL)
	dataPool, err := loadDataPool(ctx, pgPool, gateway, cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	logger.Info("data pool loaded", zap.Int("slots", len(dataPool.Slots)), zap.Int("clients", len(dataPool.Clients)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Contend()
	sim.Run()
	sim.PrintReport()

	overlaps, err := countOverlaps(context.Background(), pgPool)
	if err != nil {
		logger.Fatal("overlap audit", zap.Error(err))
	}
	if overlaps > 0 {
		logger.Error("double bookings detected", zap.Int("pairs", overlaps))
		os.Exit(1)
	}
	logger.Info("no overlapping active bookings")
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio:  getFloat("SIM_CONFIRM_RATIO", 0.2),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		Clients:       getInt("SIM_CLIENTS", 200),
		WindowLimit:   getInt("SIM_WINDOW_LIMIT", 500),
		WeeksAhead:    getInt("SIM_WEEKS_AHEAD", 4),
		ContentionHit: getInt("SIM_CONTENTION", 20),
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Clients <= 0 {
		return fmt.Errorf("SIM_CLIENTS must be > 0")
	}
	if cfg.WeeksAhead <= 0 {
		return fmt.Errorf("SIM_WEEKS_AHEAD must be > 0")
	}
	return nil
}

// loadDataPool expands stored availability windows into concrete one-hour
// slots over the coming weeks and mints tokens for every principal involved.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, gw *auth.Gateway, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{
		clientTokens:   make(map[uuid.UUID]string),
		providerTokens: make(map[uuid.UUID]string),
	}

	rows, err := pool.Query(ctx, `
		SELECT p.id, p.owner_id, w.weekday, w.start_minute, w.end_minute
		FROM availability_windows w
		JOIN provider_profiles p ON p.id = w.provider_id
		LIMIT $1
	`, cfg.WindowLimit)
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	defer rows.Close()

	today := scheduling.DateOf(time.Now())
	for rows.Next() {
		var (
			providerID, ownerID uuid.UUID
			weekday             int16
			startMin, endMin    int32
		)
		if err := rows.Scan(&providerID, &ownerID, &weekday, &startMin, &endMin); err != nil {
			return nil, err
		}
		if _, ok := dp.providerTokens[ownerID]; !ok {
			tok, err := gw.IssueToken(auth.Principal{ID: ownerID, Role: auth.RoleProvider})
			if err != nil {
				return nil, err
			}
			dp.providerTokens[ownerID] = tok
		}

		for week := 0; week < cfg.WeeksAhead; week++ {
			date := nextOn(today, scheduling.Weekday(weekday), week)
			for m := startMin; m+60 <= endMin; m += 60 {
				dp.Slots = append(dp.Slots, slot{
					ProviderID: providerID,
					OwnerID:    ownerID,
					Date:       date,
					Start:      scheduling.Clock(m),
				})
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := 0; i < cfg.Clients; i++ {
		p := auth.Principal{ID: uuid.New(), Role: auth.RoleClient}
		tok, err := gw.IssueToken(p)
		if err != nil {
			return nil, err
		}
		dp.Clients = append(dp.Clients, p)
		dp.clientTokens[p.ID] = tok
	}

	if len(dp.Slots) == 0 {
		return nil, fmt.Errorf("no availability loaded; run cmd/seed first")
	}
	return dp, nil
}

// nextOn returns the date of the given weekday in the week'th week after from.
func nextOn(from scheduling.Date, day scheduling.Weekday, week int) scheduling.Date {
	ahead := (int(day) - int(from.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return scheduling.DateOf(from.Time().AddDate(0, 0, ahead+7*week))
}

// Contend fires ContentionHit concurrent booking requests at one slot. Exactly
// one may succeed.
func (s *Simulator) Contend() {
	if s.config.ContentionHit <= 1 {
		return
	}
	target := s.pool.Slots[rand.Intn(len(s.pool.Slots))]

	var created int64
	var wg sync.WaitGroup
	for i := 0; i < s.config.ContentionHit; i++ {
		client := s.pool.Clients[i%len(s.pool.Clients)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _ := s.book(context.Background(), client, target)
			if status == http.StatusCreated {
				atomic.AddInt64(&created, 1)
			}
		}()
	}
	wg.Wait()

	if created > 1 {
		s.logger.Error("contention produced multiple bookings", zap.Int64("created", created))
		return
	}
	s.logger.Info("contention round complete",
		zap.Int("requests", s.config.ContentionHit),
		zap.Int64("created", created),
	)
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()

	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.ConfirmRatio:
			s.doConfirm(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doReadBooking(ctx, rng)
			case 1:
				s.doListClient(ctx, rng)
			case 2:
				s.doAvailability(ctx, rng)
			}
		}
	}
}

func (s *Simulator) book(ctx context.Context, client auth.Principal, sl slot) (int, error) {
	body, _ := json.Marshal(map[string]string{
		"provider_id":  sl.ProviderID.String(),
		"session_date": sl.Date.String(),
		"start_time":   sl.Start.String(),
		"end_time":     (sl.Start + 60).String(),
	})

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	status, err := s.call(ctx, http.MethodPost, "/bookings", s.pool.clientTokens[client.ID], body, &created)
	if status == http.StatusCreated && created.ID != uuid.Nil {
		s.pool.AddBooking(createdBooking{ID: created.ID, ClientID: client.ID, OwnerID: sl.OwnerID})
	}
	return status, err
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	sl := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	client := s.pool.Clients[rng.Intn(len(s.pool.Clients))]

	start := time.Now()
	status, err := s.book(ctx, client, sl)
	s.metrics.Booking.Record(time.Since(start), status, err)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.call(ctx, http.MethodPut, "/bookings/"+b.ID.String()+"/status",
		s.pool.providerTokens[b.OwnerID], []byte(`{"status":"CONFIRMED"}`), nil)
	// A booking already confirmed or cancelled answers 400, which is expected here.
	if status == http.StatusBadRequest {
		status = http.StatusConflict
	}
	s.metrics.Confirm.Record(time.Since(start), status, err)
}

func (s *Simulator) doReadBooking(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/bookings/"+b.ID.String(), s.pool.clientTokens[b.ClientID], nil, nil)
	s.metrics.ReadBooking.Record(time.Since(start), status, err)
}

func (s *Simulator) doListClient(ctx context.Context, rng *rand.Rand) {
	client := s.pool.Clients[rng.Intn(len(s.pool.Clients))]

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/bookings/client?page_size=20", s.pool.clientTokens[client.ID], nil, nil)
	s.metrics.ListClient.Record(time.Since(start), status, err)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	sl := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/providers/"+sl.ProviderID.String()+"/availability", "", nil, nil)
	s.metrics.Availability.Record(time.Since(start), status, err)
}

func (s *Simulator) call(ctx context.Context, method, path, token string, body []byte, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// countOverlaps counts pairs of active bookings that share a provider, a date
// and overlapping minutes.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings a
		JOIN bookings b
		  ON a.provider_id = b.provider_id
		 AND a.session_date = b.session_date
		 AND a.id < b.id
		 AND a.start_minute < b.end_minute
		 AND b.start_minute < a.end_minute
		WHERE a.status <> 'CANCELLED' AND b.status <> 'CANCELLED'
	`).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Read booking", &s.metrics.ReadBooking)
	printOperationReport("List client bookings", &s.metrics.ListClient)
	printOperationReport("Provider availability", &s.metrics.Availability)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	pctOf := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pctOf(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pctOf(conflict))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pctOf(failed))
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
