package masking

import (
	"github.com/goccy/go-json"

	"snowflake-mask-report/pkg/types"
)

// submitRequest is the body of PUT /mask/async
type submitRequest struct {
	Mask []types.MaskEntry `json:"mask"`
}

// submitResponse is the answer of PUT /mask/async
type submitResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		TrackingID string `json:"tracking_id"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

// statusRequest is the body of PUT /async-status
type statusRequest struct {
	Status []statusQuery `json:"status"`
}

type statusQuery struct {
	TrackingID string `json:"tracking_id"`
}

// statusResponse is the answer of PUT /async-status
type statusResponse struct {
	Success bool         `json:"success"`
	Data    []statusItem `json:"data"`
	Error   *apiError    `json:"error,omitempty"`
}

type statusItem struct {
	Status string       `json:"status"`
	Result []resultItem `json:"result,omitempty"`
	Error  *apiError    `json:"error,omitempty"`
}

// resultItem keeps raw fields so that entries missing either one can be dropped
type resultItem struct {
	Attribute  json.RawMessage `json:"attribute"`
	TokenValue json.RawMessage `json:"token_value"`
}

type apiError struct {
	Message string `json:"message"`
}

func (e *apiError) message() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// results converts the result list, dropping entries without an attribute or
// a token value
func (s statusItem) results() []types.MaskedResult {
	out := make([]types.MaskedResult, 0, len(s.Result))
	for _, item := range s.Result {
		if isAbsent(item.Attribute) || len(item.TokenValue) == 0 {
			continue
		}

		var attr types.Attribute
		if err := json.Unmarshal(item.Attribute, &attr); err != nil {
			continue
		}

		r := types.MaskedResult{Attribute: attr}
		if v, ok := tokenString(item.TokenValue); ok {
			r.MaskedValue = &v
		}
		out = append(out, r)
	}
	return out
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// tokenString renders a token value; JSON null yields no value
func tokenString(raw json.RawMessage) (string, bool) {
	if isAbsent(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}
