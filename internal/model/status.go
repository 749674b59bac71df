package model

// Status is the terminal outcome of an attempt or task.
type Status string

const (
	StatusSuccess           Status = "success"
	StatusNoVendorLinkFound Status = "no_vendor_link_found"
	StatusFailedToReach     Status = "failed_to_reach_vendor"
	StatusBlocked           Status = "blocked_by_vendor"
	StatusNavigationTimeout Status = "navigation_timeout"
	StatusNavigationError   Status = "navigation_error"
	StatusSkippedHTTP2      Status = "skipped_http2"
	StatusUnhandledError    Status = "unhandled_error"
)

var statusDisplay = map[Status]string{
	StatusSuccess:           "Success",
	StatusNoVendorLinkFound: "No Valid Vendor Link Found",
	StatusFailedToReach:     "Failed to Reach Vendor Page",
	StatusBlocked:           "Blocked by Vendor",
	StatusNavigationTimeout: "Timeout on Vendor Page Navigation",
	StatusNavigationError:   "Navigation Error",
	StatusSkippedHTTP2:      "Skipped due to HTTP/2 Error",
	StatusUnhandledError:    "Error",
}

// Display returns the human-readable status used in audit reports.
func (s Status) Display() string {
	if d, ok := statusDisplay[s]; ok {
		return d
	}
	return string(s)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusDisplay[s]
	return ok
}

// EvidenceLabel returns the evidence file label for statuses that capture
// evidence. Success captures use an empty label.
func (s Status) EvidenceLabel() string {
	switch s {
	case StatusFailedToReach:
		return "failed"
	case StatusBlocked:
		return "blocked"
	case StatusUnhandledError:
		return "error"
	default:
		return ""
	}
}

// AllStatuses returns every defined status.
func AllStatuses() []Status {
	return []Status{
		StatusSuccess,
		StatusNoVendorLinkFound,
		StatusFailedToReach,
		StatusBlocked,
		StatusNavigationTimeout,
		StatusNavigationError,
		StatusSkippedHTTP2,
		StatusUnhandledError,
	}
}
