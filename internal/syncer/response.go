package syncer

import "encoding/json"

// Per-event result statuses in a 200 response.
const (
	resultSuccess   = "success"
	resultDuplicate = "duplicate"
	resultRejected  = "rejected"
)

// batchResult is one per-event entry in a 200 response. The server
// sends the rejection reason in either "error" or "error_message";
// Reason resolves the pair into one canonical string.
type batchResult struct {
	EventID      string `json:"event_id"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Reason returns the canonical rejection reason.
func (r batchResult) Reason() string {
	if r.Error != "" {
		return r.Error
	}
	return r.ErrorMessage
}

// batchResponse is the 200 body of the batch endpoint.
type batchResponse struct {
	Results []batchResult `json:"results"`
}

// rejectionDetail is one entry of a structured 400 "details" list.
// The reason lives in either "error" or "reason".
type rejectionDetail struct {
	EventID string `json:"event_id"`
	Error   string `json:"error,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (d rejectionDetail) reason() string {
	if d.Error != "" {
		return d.Error
	}
	return d.Reason
}

// badRequest is a parsed 400 body. The wire "details" field is a tagged
// union - a list of per-event rejections, or a plain string - resolved
// once here rather than branched on throughout the client.
type badRequest struct {
	Error  string
	IsList bool
	Items  []rejectionDetail
}

// parseBadRequest decodes a 400 body. A "details" string is first tried
// as a JSON-encoded list (some backends double-encode); only when that
// fails is it a plain-string batch-wide reason carried in Error.
func parseBadRequest(body []byte) badRequest {
	var raw struct {
		Error   string          `json:"error"`
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return badRequest{Error: string(body)}
	}

	out := badRequest{Error: raw.Error}
	if len(raw.Details) == 0 {
		return out
	}

	var items []rejectionDetail
	if err := json.Unmarshal(raw.Details, &items); err == nil {
		out.IsList = true
		out.Items = items
		return out
	}

	var s string
	if err := json.Unmarshal(raw.Details, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &items); err == nil {
			out.IsList = true
			out.Items = items
			return out
		}
		if out.Error == "" {
			out.Error = s
		}
	}
	return out
}
