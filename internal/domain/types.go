package domain

import "time"

type StatusCategory string

const (
    CategoryTodo       StatusCategory = "todo"
    CategoryInProgress StatusCategory = "in-progress"
    CategoryDone       StatusCategory = "done"
)

// IssueRecord is one tracked work item, already normalized from the upstream
// payload. TimeSpentSeconds starts as the upstream aggregate and may be
// replaced by the worklog sum during collection.
type IssueRecord struct {
    ID                      string
    ParentID                *string
    IssueType               string
    Status                  string
    StatusCategory          StatusCategory
    OriginalEstimateSeconds int64
    TimeSpentSeconds        int64
    StoryPoints             *float64
    Weight                  *float64
    Assignee                string
    Team                    string
    Labels                  []string
    Created                 time.Time
    Resolved                *time.Time
}

// StatusTransition is one workflow move from the upstream changelog.
// FromStatus is nil only for the creation event.
type StatusTransition struct {
    IssueKey   string
    FromStatus *string
    ToStatus   string
    At         time.Time
    Author     string
}

// IssueStatusHistory carries the ordered transition log of one issue.
// Transitions are sorted by At; ties keep arrival order.
type IssueStatusHistory struct {
    IssueKey      string
    IssueType     string
    CurrentStatus string
    Created       time.Time
    Resolved      *time.Time
    Transitions   []StatusTransition
}

// ChangeEvent is one changelog entry. Pagination counts entries, so the
// event keeps its place in the page even when it carries no status move.
type ChangeEvent struct {
    IssueKey string
    At       time.Time
    Author   string
    Moves    []StatusTransition
}

type Worklog struct {
    IssueKey  string
    Author    string
    StartedAt time.Time
    Seconds   int64
}
