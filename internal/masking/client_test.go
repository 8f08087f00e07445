package masking

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snowflake-mask-report/pkg/types"
)

// newServer returns a test server answering PUT requests on path with body
// and recording the last request it saw.
func newServer(t *testing.T, path string, status int, body string, seen *http.Request, seenBody *[]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = *r.Clone(context.Background())
		}
		if seenBody != nil {
			*seenBody, _ = io.ReadAll(r.Body)
		}
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmit_Success(t *testing.T) {
	var req http.Request
	var body []byte
	srv := newServer(t, "/mask/async", http.StatusOK,
		`{"success": true, "data": [{"tracking_id": "trk-1"}]}`, &req, &body)

	c := NewClient(srv.URL+"/", "secret")
	entries := []types.MaskEntry{{
		Value:     "Ann",
		Attribute: types.Attribute{Row: 0, Column: "NAME", ColumnPosition: 1},
		TokenName: "Text Token",
	}}

	id, err := c.Submit(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, "trk-1", id)

	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	var sent map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &sent))
	require.Len(t, sent["mask"], 1)
	entry := sent["mask"][0]
	assert.Equal(t, "Ann", entry["value"])
	assert.Equal(t, "Text Token", entry["token_name"])
	_, hasFormat := entry["format"]
	assert.False(t, hasFormat, "absent format must not be sent")
	assert.Equal(t, map[string]interface{}{"row": 0.0, "column": "NAME", "column_position": 1.0}, entry["attribute"])
}

func TestSubmit_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"reported failure", http.StatusOK, `{"success": false, "error": {"message": "bad key"}}`, "bad key"},
		{"empty data", http.StatusOK, `{"success": true, "data": []}`, "empty 'data'"},
		{"missing tracking id", http.StatusOK, `{"success": true, "data": [{}]}`, "tracking_id"},
		{"blank tracking id", http.StatusOK, `{"success": true, "data": [{"tracking_id": "  "}]}`, "tracking_id"},
		{"malformed body", http.StatusOK, `<html>`, "failed to parse response"},
		{"http error", http.StatusUnauthorized, `{"error": {"message": "unauthorized"}}`, "HTTP 401: unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, "/mask/async", tt.status, tt.body, nil, nil)

			_, err := NewClient(srv.URL, "k").Submit(context.Background(), []types.MaskEntry{{Value: "x"}})
			require.Error(t, err)
			assert.Equal(t, types.KindSubmission, types.KindOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStatus_Success(t *testing.T) {
	var body []byte
	srv := newServer(t, "/async-status", http.StatusOK, `{
		"success": true,
		"data": [{
			"status": "SUCCESS",
			"result": [
				{"attribute": {"row": 0, "column": "ID", "column_position": 0}, "token_value": "tok-1"},
				{"attribute": {"row": 0, "column": "NAME", "column_position": 1}},
				{"token_value": "orphan"},
				{"attribute": {"row": 1, "column": "ID", "column_position": 0}, "token_value": 17}
			]
		}]
	}`, nil, &body)

	status, err := NewClient(srv.URL, "k").Status(context.Background(), " trk-1 ")
	require.NoError(t, err)

	assert.JSONEq(t, `{"status": [{"tracking_id": "trk-1"}]}`, string(body))
	assert.Equal(t, types.JobSuccess, status.State)
	require.Len(t, status.Results, 2)
	assert.Equal(t, "tok-1", *status.Results[0].MaskedValue)
	assert.Equal(t, 1, status.Results[1].Attribute.Row)
	assert.Equal(t, "17", *status.Results[1].MaskedValue)
}

func TestStatus_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"reported failure", `{"success": false, "error": {"message": "nope"}}`},
		{"empty data", `{"success": true, "data": []}`},
		{"malformed", `{"success": tr`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, "/async-status", http.StatusOK, tt.body, nil, nil)

			_, err := NewClient(srv.URL, "k").Status(context.Background(), "trk")
			require.Error(t, err)
			assert.Equal(t, types.KindPoll, types.KindOf(err))
		})
	}
}

func TestStatus_FailedCarriesMessage(t *testing.T) {
	srv := newServer(t, "/async-status", http.StatusOK,
		`{"success": true, "data": [{"status": "FAILED", "error": {"message": "quota exceeded"}}]}`, nil, nil)

	status, err := NewClient(srv.URL, "k").Status(context.Background(), "trk")
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, status.State)
	assert.Equal(t, "quota exceeded", status.Message)
	assert.Nil(t, status.Results)
}
