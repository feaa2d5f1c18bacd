package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"irops/internal/model"
)

// Postgres persists runs, plans, restrictions and the webhook queue.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the schema if it does not exist. Plans and dispatch
// actions are stored as JSON documents keyed by (run_id, plan_id); only
// the columns we filter or join on are lifted out.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id text PRIMARY KEY,
			status text NOT NULL,
			flight_count int NOT NULL DEFAULT 0,
			strategies jsonb,
			error text,
			created_at timestamptz NOT NULL DEFAULT now(),
			started_at timestamptz,
			finished_at timestamptz
		)`,
		`CREATE TABLE IF NOT EXISTS run_results (
			run_id text PRIMARY KEY REFERENCES runs(id),
			recommended text,
			ranked jsonb,
			diagnostics jsonb
		)`,
		`CREATE TABLE IF NOT EXISTS plans (
			run_id text NOT NULL REFERENCES runs(id),
			id text NOT NULL,
			strategy text NOT NULL,
			payload jsonb NOT NULL,
			PRIMARY KEY (run_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS dispatch_actions (
			run_id text NOT NULL,
			plan_id text NOT NULL,
			actions jsonb NOT NULL,
			PRIMARY KEY (run_id, plan_id)
		)`,
		`CREATE TABLE IF NOT EXISTS restrictions (
			id text PRIMARY KEY,
			airport text,
			category text,
			payload jsonb NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id uuid PRIMARY KEY,
			url text NOT NULL,
			events jsonb NOT NULL,
			secret text,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id uuid PRIMARY KEY,
			subscription_id uuid,
			event_type text NOT NULL,
			url text NOT NULL,
			secret text,
			payload bytea,
			status text NOT NULL,
			attempts int NOT NULL DEFAULT 0,
			next_attempt_at timestamptz NOT NULL DEFAULT now(),
			last_error text,
			response_code int,
			latency_ms int,
			dedup_key text,
			delivered_at timestamptz,
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS webhook_deliveries_dedup
			ON webhook_deliveries (event_type, url, dedup_key)`,
		`CREATE INDEX IF NOT EXISTS webhook_deliveries_due
			ON webhook_deliveries (status, next_attempt_at)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) CreateRun(ctx context.Context, run model.Run) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO runs (id, status, flight_count, strategies, created_at) VALUES ($1,$2,$3,$4,$5)`,
		run.ID, run.Status, run.FlightCount, toJSON(run.Strategies), run.CreatedAt)
	return err
}

func (p *Postgres) SetRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	var res sql.Result
	var err error
	switch status {
	case model.RunRunning:
		res, err = p.db.ExecContext(ctx, `UPDATE runs SET status=$1, started_at=now() WHERE id=$2`, status, runID)
	case model.RunCompleted, model.RunFailed:
		res, err = p.db.ExecContext(ctx, `UPDATE runs SET status=$1, error=$2, finished_at=now() WHERE id=$3`, status, nullIfEmpty(errMsg), runID)
	default:
		res, err = p.db.ExecContext(ctx, `UPDATE runs SET status=$1 WHERE id=$2`, status, runID)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetRun(ctx context.Context, runID string) (model.Run, error) {
	var r model.Run
	var strategies []byte
	var errMsg sql.NullString
	var started, finished sql.NullTime
	row := p.db.QueryRowContext(ctx, `SELECT id, status, flight_count, strategies, error, created_at, started_at, finished_at FROM runs WHERE id=$1`, runID)
	if err := row.Scan(&r.ID, &r.Status, &r.FlightCount, &strategies, &errMsg, &r.CreatedAt, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, ErrNotFound
		}
		return r, err
	}
	_ = json.Unmarshal(strategies, &r.Strategies)
	r.Error = errMsg.String
	if started.Valid {
		t := started.Time
		r.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}

func (p *Postgres) ListRuns(ctx context.Context, cursor string, limit int) ([]model.Run, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id, status, flight_count, created_at FROM runs WHERE id > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id, status, flight_count, created_at FROM runs ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Run{}
	for rows.Next() {
		var r model.Run
		if err := rows.Scan(&r.ID, &r.Status, &r.FlightCount, &r.CreatedAt); err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) SaveRunResult(ctx context.Context, res model.RunResult) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO run_results (run_id, recommended, ranked, diagnostics) VALUES ($1,$2,$3,$4)
		ON CONFLICT (run_id) DO UPDATE SET recommended=EXCLUDED.recommended, ranked=EXCLUDED.ranked, diagnostics=EXCLUDED.diagnostics`,
		res.RunID, nullIfEmpty(res.Recommended), toJSON(res.Ranked), toJSON(res.Diagnostics))
	if err != nil {
		return err
	}
	for _, plan := range res.Plans {
		_, err = tx.ExecContext(ctx, `INSERT INTO plans (run_id, id, strategy, payload) VALUES ($1,$2,$3,$4)
			ON CONFLICT (run_id, id) DO UPDATE SET strategy=EXCLUDED.strategy, payload=EXCLUDED.payload`,
			res.RunID, plan.ID, plan.Strategy, toJSON(plan))
		if err != nil {
			return err
		}
	}
	for planID, acts := range res.Dispatch {
		_, err = tx.ExecContext(ctx, `INSERT INTO dispatch_actions (run_id, plan_id, actions) VALUES ($1,$2,$3)
			ON CONFLICT (run_id, plan_id) DO UPDATE SET actions=EXCLUDED.actions`,
			res.RunID, planID, toJSON(acts))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) GetRunResult(ctx context.Context, runID string) (model.RunResult, error) {
	res := model.RunResult{RunID: runID, Dispatch: map[string][]model.DispatchAction{}}
	var recommended sql.NullString
	var ranked, diags []byte
	row := p.db.QueryRowContext(ctx, `SELECT recommended, ranked, diagnostics FROM run_results WHERE run_id=$1`, runID)
	if err := row.Scan(&recommended, &ranked, &diags); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return res, ErrNotFound
		}
		return res, err
	}
	res.Recommended = recommended.String
	_ = json.Unmarshal(ranked, &res.Ranked)
	_ = json.Unmarshal(diags, &res.Diagnostics)

	rows, err := p.db.QueryContext(ctx, `SELECT payload FROM plans WHERE run_id=$1 ORDER BY id`, runID)
	if err != nil {
		return res, err
	}
	defer rows.Close()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return res, err
		}
		var plan model.Plan
		if err := json.Unmarshal(payload, &plan); err != nil {
			return res, err
		}
		res.Plans = append(res.Plans, plan)
	}
	if err := rows.Err(); err != nil {
		return res, err
	}

	dRows, err := p.db.QueryContext(ctx, `SELECT plan_id, actions FROM dispatch_actions WHERE run_id=$1`, runID)
	if err != nil {
		return res, err
	}
	defer dRows.Close()
	for dRows.Next() {
		var planID string
		var actions []byte
		if err := dRows.Scan(&planID, &actions); err != nil {
			return res, err
		}
		var acts []model.DispatchAction
		if err := json.Unmarshal(actions, &acts); err != nil {
			return res, err
		}
		res.Dispatch[planID] = acts
	}
	return res, dRows.Err()
}

func (p *Postgres) GetPlan(ctx context.Context, runID, planID string) (model.Plan, error) {
	var payload []byte
	row := p.db.QueryRowContext(ctx, `SELECT payload FROM plans WHERE run_id=$1 AND id=$2`, runID, planID)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Plan{}, ErrNotFound
		}
		return model.Plan{}, err
	}
	var plan model.Plan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return model.Plan{}, err
	}
	return plan, nil
}

func (p *Postgres) ListDispatch(ctx context.Context, runID, planID string) ([]model.DispatchAction, error) {
	var actions []byte
	row := p.db.QueryRowContext(ctx, `SELECT actions FROM dispatch_actions WHERE run_id=$1 AND plan_id=$2`, runID, planID)
	if err := row.Scan(&actions); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var acts []model.DispatchAction
	if err := json.Unmarshal(actions, &acts); err != nil {
		return nil, err
	}
	return acts, nil
}

func (p *Postgres) ReplaceRestrictions(ctx context.Context, rs []model.Restriction) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM restrictions`); err != nil {
		return 0, err
	}
	for _, r := range rs {
		_, err = tx.ExecContext(ctx, `INSERT INTO restrictions (id, airport, category, payload) VALUES ($1,$2,$3,$4)`,
			r.ID, nullIfEmpty(r.Scope.Airport), string(r.Category), toJSON(r))
		if err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rs), nil
}

func (p *Postgres) ListRestrictions(ctx context.Context, airport, category string) ([]model.Restriction, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT payload FROM restrictions
		WHERE ($1 = '' OR airport = $1) AND ($2 = '' OR category = $2) ORDER BY id`, airport, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Restriction{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r model.Restriction
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	s := model.Subscription{
		ID:        uuid.New().String(),
		URL:       req.URL,
		Events:    req.Events,
		Secret:    req.Secret,
		CreatedAt: time.Now().UTC(),
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret, created_at) VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.URL, toJSON(s.Events), nullIfEmpty(s.Secret), s.CreatedAt)
	if err != nil {
		return model.Subscription{}, err
	}
	return s, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, events, created_at FROM subscriptions WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, events, created_at FROM subscriptions ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &events, &s.CreatedAt); err != nil {
			return nil, "", err
		}
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, events, COALESCE(secret,''), created_at FROM subscriptions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret, &s.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(events, &s.Events)
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
		VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now(),$7)
		ON CONFLICT (event_type, url, dedup_key) DO NOTHING`, id, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(1 * time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
			id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`,
		id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func toJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func computeDedupKey(payload []byte) string {
	h := sha256.Sum256(payload)
	return hex.EncodeToString(h[:])
}
