package repo

import (
    "context"
    "errors"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"

    "github.com/mkoursha/sprintlens/internal/config"
    "github.com/mkoursha/sprintlens/internal/kpi"
    "github.com/mkoursha/sprintlens/internal/rollup"
    "github.com/mkoursha/sprintlens/internal/timeinstatus"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

// Report runs
func (r *Repository) StartReportRun(ctx context.Context, jql string) (int64, error) {
    const q = `INSERT INTO report_runs(started_at, jql, success) VALUES(now(), $1, false) RETURNING id`
    var id int64
    if err := r.db.Pool.QueryRow(ctx, q, jql).Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) FinishReportRun(ctx context.Context, id int64, issuesFetched int, success bool, errStr string) error {
    const q = `UPDATE report_runs SET finished_at=now(), issues_fetched=$2, success=$3, error=$4 WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, id, issuesFetched, success, errStr)
    return err
}

type LastRun struct {
    StartedAt     time.Time  `json:"started_at"`
    FinishedAt    *time.Time `json:"finished_at"`
    JQL           string     `json:"jql"`
    IssuesFetched int        `json:"issues_fetched"`
    Success       bool       `json:"success"`
    Error         string     `json:"error"`
}

func (r *Repository) GetLastRun(ctx context.Context) (*LastRun, error) {
    const q = `SELECT started_at, finished_at, coalesce(jql,''),
        coalesce(issues_fetched,0), coalesce(success,false), coalesce(error,'')
        FROM report_runs ORDER BY id DESC LIMIT 1`
    row := r.db.Pool.QueryRow(ctx, q)
    lr := &LastRun{}
    if err := row.Scan(&lr.StartedAt, &lr.FinishedAt, &lr.JQL, &lr.IssuesFetched, &lr.Success, &lr.Error); err != nil {
        return nil, err
    }
    return lr, nil
}

// SaveGroupStats persists the weighted stats of one grouping for a run.
func (r *Repository) SaveGroupStats(ctx context.Context, runID int64, grouping string, stats []kpi.GroupStat) error {
    if len(stats) == 0 { return nil }
    batch := &pgx.Batch{}
    const q = `INSERT INTO group_stats(run_id, grouping, key, ponderation, ticket_count)
        VALUES($1,$2,$3,$4,$5)
        ON CONFLICT (run_id, grouping, key) DO UPDATE SET
            ponderation=EXCLUDED.ponderation,
            ticket_count=EXCLUDED.ticket_count`
    for _, s := range stats { batch.Queue(q, runID, grouping, s.Key, s.Ponderation, s.TicketCount) }
    br := r.db.Pool.SendBatch(ctx, batch)
    defer br.Close()
    for range stats { if _, err := br.Exec(); err != nil { return err } }
    return nil
}

// SaveStatusStats persists the time-in-status rows for a run. The overall
// per-status rows go in with an empty issue_type; the per-type split uses the
// concrete type.
func (r *Repository) SaveStatusStats(ctx context.Context, runID int64, m timeinstatus.Metrics) error {
    type row struct {
        status, issueType string
        s                 timeinstatus.Stats
    }
    var rows []row
    for status, s := range m.ByStatus { rows = append(rows, row{status, "", s}) }
    for status, byType := range m.ByStatusAndType {
        for typ, s := range byType { rows = append(rows, row{status, typ, s}) }
    }
    if len(rows) == 0 { return nil }
    batch := &pgx.Batch{}
    const q = `INSERT INTO status_stats(run_id, status, issue_type, ticket_count,
            mean_hours, min_hours, max_hours, mean_days, min_days, max_days)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (run_id, status, issue_type) DO UPDATE SET
            ticket_count=EXCLUDED.ticket_count,
            mean_hours=EXCLUDED.mean_hours,
            min_hours=EXCLUDED.min_hours,
            max_hours=EXCLUDED.max_hours,
            mean_days=EXCLUDED.mean_days,
            min_days=EXCLUDED.min_days,
            max_days=EXCLUDED.max_days`
    for _, x := range rows {
        batch.Queue(q, runID, x.status, x.issueType, x.s.Count,
            x.s.MeanHours, x.s.MinHours, x.s.MaxHours, x.s.MeanDays, x.s.MinDays, x.s.MaxDays)
    }
    br := r.db.Pool.SendBatch(ctx, batch)
    defer br.Close()
    for range rows { if _, err := br.Exec(); err != nil { return err } }
    return nil
}

// SaveRollups persists every node of the computed forest for a run.
func (r *Repository) SaveRollups(ctx context.Context, runID int64, forest []*rollup.Node) error {
    n := rollup.Count(forest)
    if n == 0 { return nil }
    batch := &pgx.Batch{}
    const q = `INSERT INTO rollups(run_id, issue_key, parent_key, estimate_seconds,
            spent_seconds, story_points, progress_percent, overrun)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (run_id, issue_key) DO UPDATE SET
            parent_key=EXCLUDED.parent_key,
            estimate_seconds=EXCLUDED.estimate_seconds,
            spent_seconds=EXCLUDED.spent_seconds,
            story_points=EXCLUDED.story_points,
            progress_percent=EXCLUDED.progress_percent,
            overrun=EXCLUDED.overrun`
    rollup.Walk(forest, func(node *rollup.Node) {
        var parent any
        if node.Record.ParentID != nil { parent = *node.Record.ParentID }
        batch.Queue(q, runID, node.Record.ID, parent, node.RollupEstimateSeconds,
            node.RollupSpentSeconds, node.RollupStoryPoints, node.ProgressPercent, node.Overrun)
    })
    br := r.db.Pool.SendBatch(ctx, batch)
    defer br.Close()
    for i := 0; i < n; i++ { if _, err := br.Exec(); err != nil { return err } }
    return nil
}
