package feed

import "fmt"

// FetchError reports a feed document that could not be downloaded or parsed.
// It isolates the whole feed for the current cycle.
type FetchError struct {
	URL string
	Op  string // "fetch" or "parse"
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to %s feed %s: %v", e.Op, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Reason string

const (
	ReasonEmptyTitle     Reason = "empty_title"
	ReasonTitleTooLong   Reason = "title_too_long"
	ReasonSummaryTooLong Reason = "summary_too_long"
	ReasonContentTooLong Reason = "content_too_long"
	ReasonInvalidLink    Reason = "invalid_link"
	ReasonMissingGUID    Reason = "missing_guid"
)

// ValidationError reports an entry rejected by the validator.
// It isolates that entry only.
type ValidationError struct {
	Reason Reason
	GUID   string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invalid item %q: %s", e.GUID, e.Reason)
	}
	return fmt.Sprintf("invalid item %q: %s (%s)", e.GUID, e.Reason, e.Detail)
}
