//go:build !integration

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/price-audit/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Status:    model.RunStatusComplete,
			Tasks:     14,
			Summary:   model.RunSummary{Total: 14, Priced: 9},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Status:    model.RunStatusInterrupted,
			Tasks:     7,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "PRICED")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "interrupted")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "2m0s")
}

func TestFormatRecords(t *testing.T) {
	recs := []model.AuditRecord{
		{ProductID: "A1", VendorDomain: "toolnut.com", Status: model.StatusSuccess, Price: "$19.99", Attempts: 1},
		{ProductID: "A2", VendorDomain: "lowes.com", Status: model.StatusSkippedHTTP2, Attempts: 2, Detail: strings.Repeat("x", 100)},
	}

	var buf bytes.Buffer
	formatRecords(&buf, recs)

	output := buf.String()
	assert.Contains(t, output, "PRODUCT")
	assert.Contains(t, output, "$19.99")
	assert.Contains(t, output, model.StatusSuccess.Display())
	assert.Contains(t, output, model.StatusSkippedHTTP2.Display())
	assert.Contains(t, output, strings.Repeat("x", 57)+"...")
	assert.NotContains(t, output, strings.Repeat("x", 58))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
