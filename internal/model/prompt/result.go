package prompt

import "time"

// Status is the terminal state of one target within a dispatch.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Reason classifies why a target did not succeed.
type Reason string

const (
	ReasonUnknownTarget Reason = "unknown_target"
	ReasonDisabled      Reason = "disabled"
	ReasonSession       Reason = "session_error"
	ReasonAdapter       Reason = "adapter_error"
	ReasonTimeout       Reason = "timeout"
	ReasonCanceled      Reason = "canceled"
)

// Result is the outcome of dispatching a prompt to one chatbot.
type Result struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Response   string `json:"response"`
	Status     Status `json:"status"`
	Error      string `json:"error,omitempty"`
	Reason     Reason `json:"reason,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	DurationMS int64  `json:"durationMs"`
}

// Bundle aggregates one Result per requested chatbot in request order.
type Bundle struct {
	Results   []Result `json:"results"`
	Timestamp int64    `json:"timestamp"`
}

// Success builds a successful result.
func Success(id, name, response string, at time.Time, took time.Duration) Result {
	return Result{
		ID:         id,
		Name:       name,
		Response:   response,
		Status:     StatusSuccess,
		Timestamp:  at.UnixMilli(),
		DurationMS: took.Milliseconds(),
	}
}

// Failure builds an error result. The error text leads with the reason so
// clients that only read "error" can still branch on it.
func Failure(id, name string, reason Reason, detail string, at time.Time, took time.Duration) Result {
	message := string(reason)
	if detail != "" {
		message += ": " + detail
	}
	return Result{
		ID:         id,
		Name:       name,
		Status:     StatusError,
		Error:      message,
		Reason:     reason,
		Timestamp:  at.UnixMilli(),
		DurationMS: took.Milliseconds(),
	}
}

// Timeout builds a timeout result.
func Timeout(id, name, detail string, at time.Time, took time.Duration) Result {
	r := Failure(id, name, ReasonTimeout, detail, at, took)
	r.Status = StatusTimeout
	return r
}

// Count returns how many results ended in the given status.
func (b Bundle) Count(status Status) int {
	n := 0
	for _, r := range b.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}
