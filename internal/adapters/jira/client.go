/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/mkoursha/sprintlens/internal/config"
    "github.com/mkoursha/sprintlens/internal/domain"
    "github.com/mkoursha/sprintlens/internal/fetch"
    "github.com/rs/zerolog"
)

type Client struct {
    baseURL string
    token   string
    user    string
    pass    string
    http    *http.Client
    log     zerolog.Logger
    apiVer  string

    storyPointsField string
    weightField      string
    epicLinkField    string
    teamField        string
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL: cfg.JiraBaseURL,
        token:   cfg.JiraPAT,
        user:    cfg.JiraUsername,
        pass:    cfg.JiraPassword,
        http:    &http.Client{Timeout: cfg.HTTPTimeout},
        log:     log,
        apiVer:  cfg.JiraAPIVersion,

        storyPointsField: cfg.StoryPointsField,
        weightField:      cfg.WeightField,
        epicLinkField:    cfg.EpicLinkField,
        teamField:        cfg.TeamField,
    }
}

func (c *Client) apiURL(path string, q url.Values) string {
    base := strings.TrimRight(c.baseURL, "/")
    if !strings.HasPrefix(path, "/") { path = "/" + path }
    u := base + path
    if len(q) > 0 { u = u + "?" + q.Encode() }
    return u
}

// doJSON performs one API call with up to three attempts on 429/5xx. These
// are transport-level retries under a single logical page fetch; a page that
// still fails after backoff surfaces as one retrieval failure to the caller.
func (c *Client) doJSON(ctx context.Context, method, u string, body any) (map[string]any, error) {
    if c.baseURL == "" { return nil, errors.New("jira: empty baseURL") }
    var payload []byte
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return nil, err }
        payload = b
    }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        var r io.Reader
        if payload != nil { r = bytes.NewReader(payload) }
        req, err := http.NewRequestWithContext(ctx, method, u, r)
        if err != nil { return nil, err }
        if payload != nil { req.Header.Set("Content-Type", "application/json") }
        if c.token != "" {
            req.Header.Set("Authorization", "Bearer "+c.token)
        } else if c.user != "" && c.pass != "" {
            req.SetBasicAuth(c.user, c.pass)
        }
        resp, err := c.http.Do(req)
        if err != nil {
            lastErr = err
        } else {
            out, retry, err := decodeResponse(resp)
            if err == nil { return out, nil }
            if !retry { return nil, err }
            lastErr = err
        }
        // backoff
        time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
    }
    return nil, lastErr
}

func decodeResponse(resp *http.Response) (out map[string]any, retry bool, err error) {
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        b, _ := io.ReadAll(resp.Body)
        err = fmt.Errorf("jira api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
        // retry on 429/5xx only
        return nil, resp.StatusCode == 429 || resp.StatusCode >= 500, err
    }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil { return nil, false, err }
    return out, false, nil
}

// SearchPage fetches one page of the issue search and normalizes the raw
// payload into IssueRecords. Total comes from the search response so the
// batched fetcher can plan the remaining pages.
func (c *Client) SearchPage(ctx context.Context, jql string, startAt, max int) (fetch.Page[domain.IssueRecord], error) {
    if jql == "" { return fetch.Page[domain.IssueRecord]{}, errors.New("jira: empty jql") }
    q := url.Values{}
    q.Set("jql", jql)
    if startAt > 0 { q.Set("startAt", fmt.Sprint(startAt)) }
    if max > 0 { q.Set("maxResults", fmt.Sprint(max)) }
    q.Set("fields", "*all")
    path := "/rest/api/2/search"
    if c.apiVer != "2" { path = "/rest/api/3/search" }
    m, err := c.doJSON(ctx, http.MethodGet, c.apiURL(path, q), nil)
    if err != nil { return fetch.Page[domain.IssueRecord]{}, err }
    total := 0
    if t, ok := m["total"].(float64); ok { total = int(t) }
    arr, _ := m["issues"].([]any)
    items := make([]domain.IssueRecord, 0, len(arr))
    for _, it := range arr {
        im, _ := it.(map[string]any)
        if im == nil { continue }
        if rec, ok := c.normalizeIssue(im); ok { items = append(items, rec) }
    }
    return fetch.Page[domain.IssueRecord]{Items: items, Total: total}, nil
}

// ChangelogPage fetches one page of an issue's changelog. One ChangeEvent
// per changelog entry keeps item counts aligned with the upstream total;
// entries without a status move come back with empty Moves.
func (c *Client) ChangelogPage(ctx context.Context, key string, startAt, max int) (fetch.Page[domain.ChangeEvent], error) {
    if key == "" { return fetch.Page[domain.ChangeEvent]{}, errors.New("jira: empty issue key") }
    q := url.Values{}
    if startAt > 0 { q.Set("startAt", fmt.Sprint(startAt)) }
    if max > 0 { q.Set("maxResults", fmt.Sprint(max)) }
    path := "/rest/api/2/issue/" + url.PathEscape(key) + "/changelog"
    if c.apiVer != "2" { path = "/rest/api/3/issue/" + url.PathEscape(key) + "/changelog" }
    m, err := c.doJSON(ctx, http.MethodGet, c.apiURL(path, q), nil)
    if err != nil { return fetch.Page[domain.ChangeEvent]{}, err }
    total := 0
    if t, ok := m["total"].(float64); ok { total = int(t) }
    var histories []any
    if vv, ok := m["values"].([]any); ok { histories = vv } else if vv, ok := m["histories"].([]any); ok { histories = vv }
    items := make([]domain.ChangeEvent, 0, len(histories))
    for _, h0 := range histories {
        hv, _ := h0.(map[string]any)
        if hv == nil { continue }
        ev := domain.ChangeEvent{IssueKey: key}
        if a, ok := hv["author"].(map[string]any); ok { ev.Author = toStrAny(a["displayName"]) }
        at := parseTimeUTC(hv["created"])
        if at == nil {
            // keep the entry so page counts stay aligned with the upstream total
            items = append(items, ev)
            continue
        }
        ev.At = *at
        hitems, _ := hv["items"].([]any)
        for _, it0 := range hitems {
            itm, _ := it0.(map[string]any)
            if itm == nil { continue }
            if !strings.EqualFold(toStrAny(itm["field"]), "status") { continue }
            var from *string
            if f := toStrAny(itm["fromString"]); f != "" { from = &f }
            ev.Moves = append(ev.Moves, domain.StatusTransition{
                IssueKey:   key,
                FromStatus: from,
                ToStatus:   toStrAny(itm["toString"]),
                At:         *at,
                Author:     ev.Author,
            })
        }
        items = append(items, ev)
    }
    return fetch.Page[domain.ChangeEvent]{Items: items, Total: total}, nil
}

// WorklogPage fetches one page of an issue's worklogs.
func (c *Client) WorklogPage(ctx context.Context, key string, startAt, max int) (fetch.Page[domain.Worklog], error) {
    if key == "" { return fetch.Page[domain.Worklog]{}, errors.New("jira: empty issue key") }
    q := url.Values{}
    if startAt > 0 { q.Set("startAt", fmt.Sprint(startAt)) }
    if max > 0 { q.Set("maxResults", fmt.Sprint(max)) }
    path := "/rest/api/2/issue/" + url.PathEscape(key) + "/worklog"
    if c.apiVer != "2" { path = "/rest/api/3/issue/" + url.PathEscape(key) + "/worklog" }
    m, err := c.doJSON(ctx, http.MethodGet, c.apiURL(path, q), nil)
    if err != nil { return fetch.Page[domain.Worklog]{}, err }
    total := 0
    if t, ok := m["total"].(float64); ok { total = int(t) }
    arr, _ := m["worklogs"].([]any)
    items := make([]domain.Worklog, 0, len(arr))
    for _, w0 := range arr {
        wi, _ := w0.(map[string]any)
        if wi == nil { continue }
        started := parseTimeUTC(wi["started"])
        if started == nil { continue }
        author := ""
        if a, ok := wi["author"].(map[string]any); ok { author = toStrAny(a["displayName"]) }
        secs := int64(0)
        if v, ok := wi["timeSpentSeconds"].(float64); ok { secs = int64(v) }
        items = append(items, domain.Worklog{IssueKey: key, Author: author, StartedAt: *started, Seconds: secs})
    }
    return fetch.Page[domain.Worklog]{Items: items, Total: total}, nil
}

// normalizeIssue maps one raw search hit into an IssueRecord.
func (c *Client) normalizeIssue(im map[string]any) (domain.IssueRecord, bool) {
    key := toStrAny(im["key"])
    if key == "" { return domain.IssueRecord{}, false }
    fields, _ := im["fields"].(map[string]any)
    if fields == nil { return domain.IssueRecord{}, false }

    rec := domain.IssueRecord{ID: key}
    if tp, ok := fields["issuetype"].(map[string]any); ok { rec.IssueType = toStrAny(tp["name"]) }
    if ss, ok := fields["status"].(map[string]any); ok {
        rec.Status = toStrAny(ss["name"])
        if sc, ok := ss["statusCategory"].(map[string]any); ok {
            rec.StatusCategory = categoryFromKey(toStrAny(sc["key"]))
        }
    }
    // subtask parent first, epic link as fallback
    if p, ok := fields["parent"].(map[string]any); ok {
        if pk := toStrAny(p["key"]); pk != "" { rec.ParentID = &pk }
    }
    if rec.ParentID == nil && c.epicLinkField != "" {
        if ek := toStrAny(fields[c.epicLinkField]); ek != "" { rec.ParentID = &ek }
    }
    if v, ok := fields["timeoriginalestimate"].(float64); ok { rec.OriginalEstimateSeconds = int64(v) }
    if v, ok := fields["timespent"].(float64); ok { rec.TimeSpentSeconds = int64(v) }
    if c.storyPointsField != "" {
        if v, ok := fields[c.storyPointsField].(float64); ok { tmp := v; rec.StoryPoints = &tmp }
    }
    if c.weightField != "" {
        if v, ok := fields[c.weightField].(float64); ok { tmp := v; rec.Weight = &tmp }
    }
    if as, ok := fields["assignee"].(map[string]any); ok { rec.Assignee = toStrAny(as["displayName"]) }
    if c.teamField != "" { rec.Team = optionToString(fields[c.teamField]) }
    if lv, ok := fields["labels"].([]any); ok {
        for _, x := range lv {
            if s, ok := x.(string); ok { rec.Labels = append(rec.Labels, s) }
        }
    }
    if t := parseTimeUTC(fields["created"]); t != nil { rec.Created = *t }
    rec.Resolved = parseTimeUTC(fields["resolutiondate"])
    return rec, true
}

func categoryFromKey(key string) domain.StatusCategory {
    switch strings.ToLower(key) {
    case "done":
        return domain.CategoryDone
    case "indeterminate":
        return domain.CategoryInProgress
    default:
        return domain.CategoryTodo
    }
}

func parseTimeUTC(v any) *time.Time {
    s, _ := v.(string)
    if s == "" { return nil }
    layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000-0700", "2006-01-02T15:04:05-0700"}
    for _, l := range layouts {
        if t, err := time.Parse(l, s); err == nil {
            tt := t.UTC()
            return &tt
        }
    }
    return nil
}

func toStrAny(v any) string {
    if v == nil { return "" }
    if s, ok := v.(string); ok { return s }
    return fmt.Sprintf("%v", v)
}

// optionToString extracts Jira option value objects: map with keys like value/name
func optionToString(v any) string {
    if v == nil { return "" }
    switch t := v.(type) {
    case string:
        return t
    case map[string]any:
        if s, ok := t["value"].(string); ok { return s }
        if name, ok := t["name"].(string); ok { return name }
        return toStrAny(v)
    default:
        return toStrAny(v)
    }
}
