/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/rs/zerolog"

    "github.com/mkoursha/sprintlens/internal/config"
    "github.com/mkoursha/sprintlens/internal/domain"
    "github.com/mkoursha/sprintlens/internal/fetch"
    "github.com/mkoursha/sprintlens/internal/kpi"
    "github.com/mkoursha/sprintlens/internal/repo"
    "github.com/mkoursha/sprintlens/internal/rollup"
    "github.com/mkoursha/sprintlens/internal/timeinstatus"
)

type JiraClient interface {
    SearchPage(ctx context.Context, jql string, startAt, max int) (fetch.Page[domain.IssueRecord], error)
    ChangelogPage(ctx context.Context, key string, startAt, max int) (fetch.Page[domain.ChangeEvent], error)
    WorklogPage(ctx context.Context, key string, startAt, max int) (fetch.Page[domain.Worklog], error)
}

type LLM interface {
    Summarize(ctx context.Context, kpis map[string]float64, groups []kpi.GroupStat) (string, error)
}

type Notifier interface {
    SendMessagePlain(ctx context.Context, chatID int64, text string) error
    SendMarkdownV2(ctx context.Context, chatID int64, text string) error
}

type Service struct {
    cfg   config.Config
    log   zerolog.Logger
    repo  *repo.Repository
    jira  JiraClient
    llm   LLM
    tg    Notifier
    bands kpi.Bands
}

// New validates the derived settings up front so a bad band layout or a
// non-positive working day fails at startup instead of inside a report.
func New(cfg config.Config, log zerolog.Logger, r *repo.Repository, jira JiraClient, llm LLM, tg Notifier) (*Service, error) {
    bands, err := kpi.ParseBands(cfg.WeightBands)
    if err != nil { return nil, fmt.Errorf("weight bands: %w", err) }
    if cfg.WorkingHoursPerDay <= 0 {
        return nil, fmt.Errorf("working hours per day must be positive, got %v", cfg.WorkingHoursPerDay)
    }
    return &Service{cfg: cfg, log: log, repo: r, jira: jira, llm: llm, tg: tg, bands: bands}, nil
}

// Report is one full portfolio snapshot: the rolled-up forest, the
// time-in-status metrics, and the weighted groupings.
type Report struct {
    GeneratedAt  time.Time            `json:"generated_at"`
    Issues       int                  `json:"issues"`
    Forest       []*rollup.Node       `json:"forest"`
    TimeInStatus timeinstatus.Metrics `json:"time_in_status"`

    ByAssignee []kpi.GroupStat `json:"by_assignee"`
    ByTeam     []kpi.GroupStat `json:"by_team"`
    ByLabel    []kpi.GroupStat `json:"by_label"`
    ByBand     []kpi.GroupStat `json:"by_band"`

    HighWeightResolvedRate float64 `json:"high_weight_resolved_rate"`
    HighWeightPopulation   int     `json:"high_weight_population"`
}

// BuildReport runs the whole pipeline: batched fetch, per-issue history and
// worklog collection, forest rollup, time-in-status, and weighted KPIs. Any
// upstream failure aborts the report; there are no partial results.
func (s *Service) BuildReport(ctx context.Context) (*Report, error) {
    var runID int64
    if s.repo != nil {
        if id, err := s.repo.StartReportRun(ctx, s.cfg.JiraJQL); err != nil {
            s.log.Error().Err(err).Msg("start report run failed")
        } else { runID = id }
    }
    rep, err := s.buildReport(ctx)
    if s.repo != nil && runID != 0 {
        errStr := ""
        issues := 0
        if err != nil { errStr = err.Error() }
        if rep != nil { issues = rep.Issues }
        if ferr := s.repo.FinishReportRun(ctx, runID, issues, err == nil, errStr); ferr != nil {
            s.log.Error().Err(ferr).Msg("finish report run failed")
        }
        if err == nil { s.persistSnapshot(ctx, runID, rep) }
    }
    return rep, err
}

func (s *Service) buildReport(ctx context.Context) (*Report, error) {
    opts := fetch.Options{
        PageSize:             s.cfg.PageSize,
        MaxConcurrentBatches: s.cfg.MaxConcurrentBatches,
        BatchDelay:           s.cfg.BatchDelay,
    }
    records, err := fetch.AllPages(ctx, func(ctx context.Context, startAt, pageSize int) (fetch.Page[domain.IssueRecord], error) {
        return s.jira.SearchPage(ctx, s.cfg.JiraJQL, startAt, pageSize)
    }, opts)
    if err != nil { return nil, fmt.Errorf("search issues: %w", err) }
    s.log.Info().Int("issues", len(records)).Msg("issue search complete")

    histories, err := s.collectHistories(ctx, records, opts)
    if err != nil { return nil, err }

    now := time.Now().UTC()
    forest := rollup.ComputeRollups(rollup.BuildForest(records))
    tis, err := timeinstatus.Compute(histories, now, s.cfg.WorkingHoursPerDay, s.log)
    if err != nil { return nil, err }

    rep := &Report{
        GeneratedAt:  now,
        Issues:       len(records),
        Forest:       forest,
        TimeInStatus: tis,
    }
    if rep.ByAssignee, err = kpi.GroupWeighted(records, kpi.ByAssignee, s.bands); err != nil { return nil, err }
    if rep.ByTeam, err = kpi.GroupWeighted(records, kpi.ByTeam, s.bands); err != nil { return nil, err }
    if rep.ByLabel, err = kpi.GroupWeighted(records, kpi.ByLabel, s.bands); err != nil { return nil, err }
    if rep.ByBand, err = kpi.GroupWeighted(records, kpi.ByBand, s.bands); err != nil { return nil, err }
    rep.HighWeightResolvedRate, rep.HighWeightPopulation = kpi.ResolvedWithinRate(records, s.cfg.HighWeightMin, s.cfg.ResolveTarget)
    return rep, nil
}

// collectHistories fetches every issue's changelog and worklogs with a
// bounded worker pool. Worklog totals, when present, replace the aggregate
// timespent field since they carry the author-level truth.
func (s *Service) collectHistories(ctx context.Context, records []domain.IssueRecord, opts fetch.Options) ([]domain.IssueStatusHistory, error) {
    histories := make([]domain.IssueStatusHistory, len(records))
    workerCount := s.cfg.WorkersChangelog
    if workerCount <= 0 { workerCount = 6 }
    jobs := make(chan int)
    var wg sync.WaitGroup
    var mu sync.Mutex
    var firstErr error
    for w := 0; w < workerCount; w++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for i := range jobs {
                mu.Lock()
                failed := firstErr != nil
                mu.Unlock()
                if failed { continue }
                h, secs, err := s.issueHistory(ctx, records[i], opts)
                if err != nil {
                    mu.Lock()
                    if firstErr == nil { firstErr = err }
                    mu.Unlock()
                    continue
                }
                histories[i] = h
                if secs > 0 { records[i].TimeSpentSeconds = secs }
            }
        }()
    }
    for i := range records { jobs <- i }
    close(jobs)
    wg.Wait()
    if firstErr != nil { return nil, firstErr }
    return histories, nil
}

func (s *Service) issueHistory(ctx context.Context, rec domain.IssueRecord, opts fetch.Options) (domain.IssueStatusHistory, int64, error) {
    events, err := fetch.AllPages(ctx, func(ctx context.Context, startAt, pageSize int) (fetch.Page[domain.ChangeEvent], error) {
        return s.jira.ChangelogPage(ctx, rec.ID, startAt, pageSize)
    }, opts)
    if err != nil { return domain.IssueStatusHistory{}, 0, fmt.Errorf("changelog %s: %w", rec.ID, err) }
    worklogs, err := fetch.AllPages(ctx, func(ctx context.Context, startAt, pageSize int) (fetch.Page[domain.Worklog], error) {
        return s.jira.WorklogPage(ctx, rec.ID, startAt, pageSize)
    }, opts)
    if err != nil { return domain.IssueStatusHistory{}, 0, fmt.Errorf("worklogs %s: %w", rec.ID, err) }

    var trs []domain.StatusTransition
    for _, ev := range events { trs = append(trs, ev.Moves...) }
    sort.SliceStable(trs, func(i, j int) bool { return trs[i].At.Before(trs[j].At) })

    var secs int64
    for _, wl := range worklogs { secs += wl.Seconds }

    return domain.IssueStatusHistory{
        IssueKey:      rec.ID,
        IssueType:     rec.IssueType,
        CurrentStatus: rec.Status,
        Created:       rec.Created,
        Resolved:      rec.Resolved,
        Transitions:   trs,
    }, secs, nil
}

func (s *Service) persistSnapshot(ctx context.Context, runID int64, rep *Report) {
    if err := s.repo.SaveRollups(ctx, runID, rep.Forest); err != nil { s.log.Error().Err(err).Msg("save rollups failed") }
    for _, g := range []struct {
        name  string
        stats []kpi.GroupStat
    }{
        {"assignee", rep.ByAssignee},
        {"team", rep.ByTeam},
        {"label", rep.ByLabel},
        {"band", rep.ByBand},
    } {
        if err := s.repo.SaveGroupStats(ctx, runID, g.name, g.stats); err != nil {
            s.log.Error().Err(err).Str("grouping", g.name).Msg("save group stats failed")
        }
    }
    if err := s.repo.SaveStatusStats(ctx, runID, rep.TimeInStatus); err != nil { s.log.Error().Err(err).Msg("save status stats failed") }
}

// RunScheduledReport builds the report and delivers the rendered digest to
// the configured Telegram chats, with an optional LLM narrative appended.
func (s *Service) RunScheduledReport(ctx context.Context) error {
    s.log.Info().Msg("ScheduledReport: start")
    rep, err := s.BuildReport(ctx)
    if err != nil {
        s.log.Error().Err(err).Msg("ScheduledReport: build failed")
        return err
    }
    digest := s.renderDigest(rep)
    for _, chat := range s.cfg.TelegramChatIDs {
        for _, part := range chunkText(digest, 3800) {
            if err := s.tg.SendMarkdownV2(ctx, chat, part); err != nil {
                s.log.Error().Err(err).Int64("chat", chat).Msg("telegram send failed")
            }
        }
    }
    if s.llm != nil && strings.TrimSpace(s.cfg.OpenAIKey) != "" {
        kpis := map[string]float64{
            "issues":                        float64(rep.Issues),
            "high_weight_resolved_rate_pct": rep.HighWeightResolvedRate,
            "high_weight_population":        float64(rep.HighWeightPopulation),
        }
        if summary, err := s.llm.Summarize(ctx, kpis, rep.ByTeam); err != nil {
            s.log.Error().Err(err).Msg("llm summary failed")
        } else if summary != "" {
            for _, chat := range s.cfg.TelegramChatIDs {
                for _, part := range chunkText(summary, 3800) {
                    if err := s.tg.SendMessagePlain(ctx, chat, part); err != nil {
                        s.log.Error().Err(err).Int64("chat", chat).Msg("telegram send failed")
                    }
                }
            }
        }
    }
    s.log.Info().Int("issues", rep.Issues).Msg("ScheduledReport: done")
    return nil
}

func (s *Service) GetLastRun(ctx context.Context) (*repo.LastRun, error) {
    return s.repo.GetLastRun(ctx)
}

// renderDigest builds the MarkdownV2 summary for Telegram delivery.
func (s *Service) renderDigest(rep *Report) string {
    b := &strings.Builder{}
    fmt.Fprintf(b, "*SprintLens*\n")
    fmt.Fprintf(b, "%s\n\n", escapeMarkdownV2(rep.GeneratedAt.Format("2006-01-02 15:04 MST")))
    fmt.Fprintf(b, "*Issues:* %d\n", rep.Issues)
    fmt.Fprintf(b, "*Epics/roots:* %d\n", len(rep.Forest))
    fmt.Fprintf(b, "*High weight resolved in target:* %s%% of %d\n\n",
        escapeMarkdownV2(fmt.Sprintf("%.1f", rep.HighWeightResolvedRate)), rep.HighWeightPopulation)
    writeGroups := func(title string, stats []kpi.GroupStat) {
        if len(stats) == 0 { return }
        fmt.Fprintf(b, "*%s*\n", escapeMarkdownV2(title))
        limit := stats
        if len(limit) > 5 { limit = limit[:5] }
        for _, g := range limit {
            fmt.Fprintf(b, "%s: %s \\(%d tickets\\)\n",
                escapeMarkdownV2(g.Key), escapeMarkdownV2(fmt.Sprintf("%.1f", g.Ponderation)), g.TicketCount)
        }
        b.WriteString("\n")
    }
    writeGroups("Top teams by ponderation", rep.ByTeam)
    writeGroups("Weight bands", rep.ByBand)
    if len(rep.TimeInStatus.ByStatus) > 0 {
        type sl struct {
            status string
            stats  timeinstatus.Stats
        }
        var slow []sl
        for st, v := range rep.TimeInStatus.ByStatus { slow = append(slow, sl{st, v}) }
        sort.Slice(slow, func(i, j int) bool {
            if slow[i].stats.MeanDays == slow[j].stats.MeanDays { return slow[i].status < slow[j].status }
            return slow[i].stats.MeanDays > slow[j].stats.MeanDays
        })
        if len(slow) > 5 { slow = slow[:5] }
        fmt.Fprintf(b, "*Slowest statuses \\(working days, mean\\)*\n")
        for _, x := range slow {
            fmt.Fprintf(b, "%s: %s\n", escapeMarkdownV2(x.status), escapeMarkdownV2(fmt.Sprintf("%.1f", x.stats.MeanDays)))
        }
    }
    return b.String()
}

func escapeMarkdownV2(in string) string {
    repl := []string{"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)", "~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-", "=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!"}
    for i := 0; i < len(repl); i += 2 { in = strings.ReplaceAll(in, repl[i], repl[i+1]) }
    return in
}

// chunkText splits text into chunks of up to max runes, attempting to break on line boundaries.
func chunkText(s string, max int) []string {
    if max <= 0 { return []string{s} }
    var chunks []string
    lines := strings.Split(s, "\n")
    cur := ""
    curlen := 0
    for _, ln := range lines {
        rl := len([]rune(ln))
        if rl > max {
            if curlen > 0 { chunks = append(chunks, cur); cur = ""; curlen = 0 }
            r := []rune(ln)
            for i := 0; i < rl; i += max {
                j := i + max
                if j > rl { j = rl }
                chunks = append(chunks, string(r[i:j]))
            }
            continue
        }
        extra := rl
        if curlen > 0 { extra += 1 }
        if curlen+extra > max {
            chunks = append(chunks, cur)
            cur = ln
            curlen = rl
        } else {
            if curlen == 0 { cur = ln; curlen = rl } else { cur += "\n" + ln; curlen += extra }
        }
    }
    if curlen > 0 { chunks = append(chunks, cur) }
    if len(chunks) == 0 { chunks = []string{""} }
    return chunks
}
