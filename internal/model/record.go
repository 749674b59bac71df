package model

import "time"

// ArtifactKind distinguishes screenshot and markup evidence.
type ArtifactKind string

const (
	ArtifactScreenshot ArtifactKind = "screenshot"
	ArtifactMarkup     ArtifactKind = "markup"
)

// EvidenceArtifact is one persisted capture of a page.
type EvidenceArtifact struct {
	Kind      ArtifactKind `json:"kind"`
	Label     string       `json:"label,omitempty"` // "", "failed", "blocked", "error", "debug"
	Path      string       `json:"path"`
	Timestamp time.Time    `json:"timestamp"`
}

// Column returns the report column this artifact is listed under.
func (a EvidenceArtifact) Column() string {
	switch {
	case a.Label == "" && a.Kind == ArtifactScreenshot:
		return "Screenshot"
	case a.Label == "" && a.Kind == ArtifactMarkup:
		return "HTML"
	case a.Kind == ArtifactMarkup:
		return "Debug HTML"
	default:
		return "Debug Screenshot"
	}
}

// AttemptResult is the outcome of a single attempt of a task.
type AttemptResult struct {
	Status     Status
	Price      string
	Evidence   []EvidenceArtifact
	CurrentURL string
	Detail     string
	// Retryable marks a transient outcome that a further attempt may improve.
	Retryable bool
}

// AuditRecord is the final, retained outcome of a task.
type AuditRecord struct {
	ID           string             `json:"id"`
	RunID        string             `json:"run_id,omitempty"`
	ProductID    string             `json:"product_id"`
	VendorDomain string             `json:"vendor_domain"`
	SearchQuery  string             `json:"search_query"`
	Timestamp    time.Time          `json:"timestamp"`
	Status       Status             `json:"status"`
	Detail       string             `json:"detail,omitempty"`
	FinalURL     string             `json:"final_url,omitempty"`
	Price        string             `json:"price,omitempty"`
	Evidence     []EvidenceArtifact `json:"evidence,omitempty"`
	Attempts     int                `json:"attempts"`
}

// NewRecord derives an AuditRecord from a task and its last attempt.
func NewRecord(task Task, res AttemptResult, attempts int, ts time.Time) AuditRecord {
	return AuditRecord{
		ProductID:    task.ProductID,
		VendorDomain: task.VendorDomain,
		SearchQuery:  task.SearchQuery,
		Timestamp:    ts,
		Status:       res.Status,
		Detail:       res.Detail,
		FinalURL:     res.CurrentURL,
		Price:        res.Price,
		Evidence:     res.Evidence,
		Attempts:     attempts,
	}
}

// Task returns the task this record answers.
func (r AuditRecord) Task() Task {
	return Task{SearchQuery: r.SearchQuery, ProductID: r.ProductID, VendorDomain: r.VendorDomain}
}

// HasPrice reports whether a price was extracted.
func (r AuditRecord) HasPrice() bool { return r.Price != "" }
