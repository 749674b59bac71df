package model

import "time"

// RunStatus represents the lifecycle state of an audit run.
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusComplete    RunStatus = "complete"
	RunStatusInterrupted RunStatus = "interrupted"
)

// Run is one invocation of the audit over a set of tasks.
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	Tasks     int        `json:"tasks"`
	Summary   RunSummary `json:"summary"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunSummary counts records per status.
type RunSummary struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
	Priced   int            `json:"priced"`
}

// Summarize tallies records into a RunSummary.
func Summarize(records []AuditRecord) RunSummary {
	s := RunSummary{ByStatus: make(map[Status]int)}
	for _, r := range records {
		s.Add(r)
	}
	return s
}

// Add folds one record into the summary.
func (s *RunSummary) Add(r AuditRecord) {
	if s.ByStatus == nil {
		s.ByStatus = make(map[Status]int)
	}
	s.Total++
	s.ByStatus[r.Status]++
	if r.HasPrice() {
		s.Priced++
	}
}
