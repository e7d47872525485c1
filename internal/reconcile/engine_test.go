package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/viewdeal/viewdeal/internal/clock"
	contractdomain "github.com/viewdeal/viewdeal/internal/contract/domain"
	"github.com/viewdeal/viewdeal/internal/contract/repository"
	"github.com/viewdeal/viewdeal/internal/pricing"
	"github.com/viewdeal/viewdeal/internal/providers/billing"
	"github.com/viewdeal/viewdeal/internal/providers/views"
	revenueservice "github.com/viewdeal/viewdeal/internal/revenue/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type viewsStub struct {
	mu     sync.Mutex
	counts map[string]int64
	errs   map[string]error
}

func newViewsStub() *viewsStub {
	return &viewsStub{counts: map[string]int64{}, errs: map[string]error{}}
}

func (v *viewsStub) FetchViewCount(ctx context.Context, videoID string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.errs[videoID]; err != nil {
		return 0, err
	}
	count, ok := v.counts[videoID]
	if !ok {
		return 0, views.ErrFetchFailed
	}
	return count, nil
}

func (v *viewsStub) set(videoID string, count int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counts[videoID] = count
	delete(v.errs, videoID)
}

func (v *viewsStub) fail(videoID string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errs[videoID] = err
}

type usageCall struct {
	SubscriptionID string
	Units          int64
	IdempotencyKey string
}

type usageRecorder struct {
	mu        sync.Mutex
	calls     []usageCall
	reportErr error
}

func (u *usageRecorder) CreateSubscription(ctx context.Context, req billing.CreateSubscriptionRequest) (string, error) {
	return "sub_test", nil
}

func (u *usageRecorder) ReportUsage(ctx context.Context, subscriptionID string, units int64, idempotencyKey string, at time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.reportErr != nil {
		return u.reportErr
	}
	u.calls = append(u.calls, usageCall{SubscriptionID: subscriptionID, Units: units, IdempotencyKey: idempotencyKey})
	return nil
}

func (u *usageRecorder) CancelSubscription(ctx context.Context, subscriptionID string) error {
	return nil
}

func (u *usageRecorder) Calls() []usageCall {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]usageCall(nil), u.calls...)
}

func TestRunOnceFullCycle(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	contract := env.seedContract(t, "react_1", 40)
	env.views.set("react_1", 1500)

	// First sweep: 1500 views, two 1000-view blocks, 80 minor units.
	summary, err := env.engine.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.Reported != 1 || summary.Processed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	env.assertWatermark(t, contract, 1500)
	env.assertLedgerTotal(t, contract, 80)

	calls := env.billing.Calls()
	if len(calls) != 1 || calls[0].Units != 2 {
		t.Fatalf("unexpected usage calls: %+v", calls)
	}
	wantKey := fmt.Sprintf("rc:%d:1500", contract)
	if calls[0].IdempotencyKey != wantKey {
		t.Fatalf("idempotency key: want %s, got %s", wantKey, calls[0].IdempotencyKey)
	}

	// No growth: nothing billed, watermark untouched.
	summary, err = env.engine.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.Noops != 1 || summary.Reported != 0 {
		t.Fatalf("expected noop sweep, got %+v", summary)
	}
	env.assertLedgerTotal(t, contract, 80)

	// Regression: the count dropped below the watermark. Flagged, never billed,
	// never clawed back.
	env.views.set("react_1", 1499)
	summary, err = env.engine.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.Anomalies != 1 {
		t.Fatalf("expected anomaly, got %+v", summary)
	}
	env.assertWatermark(t, contract, 1500)
	env.assertLedgerTotal(t, contract, 80)

	// Growth resumes: only the unbilled remainder is charged.
	env.views.set("react_1", 2500)
	summary, err = env.engine.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.Reported != 1 {
		t.Fatalf("expected report, got %+v", summary)
	}
	env.assertWatermark(t, contract, 2500)
	env.assertLedgerTotal(t, contract, 120)
}

func TestRunOnceIsolatesContractFailures(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	broken := env.seedContract(t, "react_broken", 40)
	healthy := env.seedContract(t, "react_healthy", 40)
	env.views.fail("react_broken", views.ErrFetchFailed)
	env.views.set("react_healthy", 3000)

	summary, err := env.engine.RunOnce(ctx)
	if err == nil {
		t.Fatal("expected aggregated error for the broken contract")
	}
	if summary.Processed != 2 || summary.Reported != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	env.assertLedgerTotal(t, healthy, 120)
	env.assertWatermark(t, healthy, 3000)
	env.assertWatermark(t, broken, 0)
	env.assertLedgerTotal(t, broken, 0)
}

func TestRunOnceBillingFailureLeavesNoTrace(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	contract := env.seedContract(t, "react_1", 40)
	env.views.set("react_1", 5000)
	env.billing.reportErr = billing.ErrReportFailed

	summary, err := env.engine.RunOnce(ctx)
	if err == nil {
		t.Fatal("expected billing failure to surface")
	}
	if summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	env.assertWatermark(t, contract, 0)
	env.assertLedgerTotal(t, contract, 0)

	// Retry after the provider recovers picks up the same delta.
	env.billing.reportErr = nil
	if _, err := env.engine.RunOnce(ctx); err != nil {
		t.Fatalf("retry sweep: %v", err)
	}
	env.assertWatermark(t, contract, 5000)
	env.assertLedgerTotal(t, contract, 200)
}

func TestRunOnceDedupsReplayedCycle(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	contract := env.seedContract(t, "react_1", 40)
	env.views.set("react_1", 1200)

	if _, err := env.engine.RunOnce(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}

	// Force the watermark back as if the advance was lost, then sweep again
	// with the same observed count. The ledger key blocks double-counting and
	// the watermark catches up.
	if err := env.db.Exec(`UPDATE contracts SET last_reported_views = 0 WHERE id = ?`, contract).Error; err != nil {
		t.Fatalf("rewind watermark: %v", err)
	}
	summary, err := env.engine.RunOnce(ctx)
	if err != nil {
		t.Fatalf("replay sweep: %v", err)
	}
	if summary.Noops != 1 || summary.Reported != 0 {
		t.Fatalf("expected dedup noop, got %+v", summary)
	}
	env.assertWatermark(t, contract, 1200)
	env.assertLedgerTotal(t, contract, 80)
}

func TestRunOnceSkipsNonActive(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	env.seedContractStatus(t, "react_1", 40, contractdomain.StatusPending)
	env.seedContractStatus(t, "react_2", 40, contractdomain.StatusCancelled)
	env.views.set("react_1", 9000)
	env.views.set("react_2", 9000)

	summary, err := env.engine.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.Processed != 0 {
		t.Fatalf("inactive contracts must not be swept: %+v", summary)
	}
}

func TestRecoverWatermarks(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	contract := env.seedContract(t, "react_1", 40)
	env.views.set("react_1", 4200)
	if _, err := env.engine.RunOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if err := env.db.Exec(`UPDATE contracts SET last_reported_views = 100 WHERE id = ?`, contract).Error; err != nil {
		t.Fatalf("rewind watermark: %v", err)
	}

	recovered, err := env.engine.RecoverWatermarks(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected one recovery, got %d", recovered)
	}
	env.assertWatermark(t, contract, 4200)

	// A healthy watermark stays put.
	recovered, err = env.engine.RecoverWatermarks(ctx)
	if err != nil {
		t.Fatalf("recover again: %v", err)
	}
	if recovered != 0 {
		t.Fatalf("expected nothing to recover, got %d", recovered)
	}
}

type engineTestEnv struct {
	engine  *Engine
	db      *gorm.DB
	node    *snowflake.Node
	views   *viewsStub
	billing *usageRecorder
}

func (env *engineTestEnv) seedContract(t *testing.T, reactionVideoID string, rate int64) snowflake.ID {
	t.Helper()
	return env.seedContractStatus(t, reactionVideoID, rate, contractdomain.StatusActive)
}

func (env *engineTestEnv) seedContractStatus(t *testing.T, reactionVideoID string, rate int64, status contractdomain.ContractStatus) snowflake.ID {
	t.Helper()
	id := env.node.Generate()
	subID := "sub_" + reactionVideoID
	err := env.db.Exec(
		`INSERT INTO contracts (
			id, licensor_id, licensee_id, original_video_id, reaction_video_id,
			pricing_model, pricing_rate, currency, status, accepted_by_licensor,
			last_reported_views, billing_customer_ref, billing_subscription_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, env.node.Generate(), env.node.Generate(), "orig_"+reactionVideoID, reactionVideoID,
		pricing.ModelPerViews, rate, "USD", status, true,
		0, "cus_test", subID,
		time.Now().UTC(), time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	return id
}

func (env *engineTestEnv) assertWatermark(t *testing.T, id snowflake.ID, want int64) {
	t.Helper()
	var got int64
	if err := env.db.Raw(`SELECT last_reported_views FROM contracts WHERE id = ?`, id).Scan(&got).Error; err != nil {
		t.Fatalf("query watermark: %v", err)
	}
	if got != want {
		t.Fatalf("watermark: want %d, got %d", want, got)
	}
}

func (env *engineTestEnv) assertLedgerTotal(t *testing.T, id snowflake.ID, want int64) {
	t.Helper()
	var got int64
	if err := env.db.Raw(`SELECT COALESCE(SUM(amount), 0) FROM revenue_events WHERE contract_id = ?`, id).Scan(&got).Error; err != nil {
		t.Fatalf("query ledger: %v", err)
	}
	if got != want {
		t.Fatalf("ledger total: want %d, got %d", want, got)
	}
}

func setupEngine(t *testing.T) *engineTestEnv {
	t.Helper()

	db := openEngineDB(t)
	node := mustNode(t)
	viewsSource := newViewsStub()
	usage := &usageRecorder{}

	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	repo := repository.NewRepository(repository.Params{DB: db, Log: zap.NewNop(), Clock: fakeClock})
	ledger := revenueservice.NewLedger(revenueservice.Params{DB: db, Log: zap.NewNop(), GenID: node})

	engine, err := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fakeClock,
		Config: Config{
			BatchSize:      10,
			Workers:        2,
			AdapterTimeout: time.Second,
		},
		Repo:    repo,
		Views:   viewsSource,
		Billing: usage,
		Ledger:  ledger,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	return &engineTestEnv{
		engine:  engine,
		db:      db,
		node:    node,
		views:   viewsSource,
		billing: usage,
	}
}

func openEngineDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	stripForUpdate := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	}
	db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", stripForUpdate)
	db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", stripForUpdate)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := db.Exec(`CREATE TABLE contracts (
		id BIGINT PRIMARY KEY,
		licensor_id BIGINT NOT NULL,
		licensee_id BIGINT NOT NULL,
		original_video_id TEXT NOT NULL,
		reaction_video_id TEXT NOT NULL,
		pricing_model TEXT NOT NULL,
		pricing_rate BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		accepted_by_licensor BOOLEAN NOT NULL DEFAULT FALSE,
		last_reported_views BIGINT NOT NULL DEFAULT 0,
		billing_customer_ref TEXT,
		billing_subscription_id TEXT,
		metadata TEXT,
		accepted_at DATETIME,
		paid_at DATETIME,
		rejected_at DATETIME,
		cancelled_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create contracts: %v", err)
	}
	if err := db.Exec(`CREATE TABLE revenue_events (
		id BIGINT PRIMARY KEY,
		contract_id BIGINT NOT NULL,
		licensor_id BIGINT NOT NULL,
		licensee_id BIGINT NOT NULL,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		units BIGINT NOT NULL DEFAULT 0,
		reported_views BIGINT NOT NULL DEFAULT 0,
		idempotency_key TEXT NOT NULL UNIQUE,
		occurred_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create revenue_events: %v", err)
	}
	return db
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}
