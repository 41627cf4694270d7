package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/engine"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/models"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/nodes"
)

func TestNodesHandler_List(t *testing.T) {
	registry := &mockNodeRegistry{infos: []nodes.Info{
		{ID: "in1", Kind: nodes.KindIn, Database: "gaian1", Status: engine.NewStatus(engine.StatusConnected)},
		{ID: "out1", Kind: nodes.KindOut, Database: "gaian1", Status: engine.NewStatus(engine.StatusFailed), LastError: "syntax error"},
	}}
	handler := NewNodesHandler(registry, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/api/nodes", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp ListNodesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(resp.Nodes))
	}
	if resp.Nodes[1].Status.State != engine.StatusFailed {
		t.Errorf("expected out1 failed, got %q", resp.Nodes[1].Status.State)
	}
	if resp.Nodes[1].LastError != "syntax error" {
		t.Errorf("expected last error to be reported, got %q", resp.Nodes[1].LastError)
	}
}

func TestNodesHandler_Inject(t *testing.T) {
	registry := &mockNodeRegistry{}
	mux := http.NewServeMux()
	NewNodesHandler(registry, zap.NewNop()).RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/nodes/in1/inject", strings.NewReader(`{"filter":"id=5","payload":"x"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp InjectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.NodeID != "in1" || resp.MsgID == "" {
		t.Errorf("unexpected response %+v", resp)
	}

	if len(registry.calls) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(registry.calls))
	}
	call := registry.calls[0]
	if call.nodeID != "in1" {
		t.Errorf("dispatched to %q", call.nodeID)
	}
	if call.msg[models.FieldFilter] != "id=5" {
		t.Errorf("filter = %v", call.msg[models.FieldFilter])
	}
	if call.msg[models.FieldMsgID] != resp.MsgID {
		t.Errorf("msg id %v does not match response %q", call.msg[models.FieldMsgID], resp.MsgID)
	}
}

func TestNodesHandler_Inject_Errors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		dispatchErr error
		wantStatus  int
		wantCode    string
	}{
		{"invalid json", `{"payload":`, nil, http.StatusBadRequest, "invalid_message"},
		{"not an object", `[1,2]`, nil, http.StatusBadRequest, "invalid_message"},
		{"unknown node", `{}`, fmt.Errorf("node %q: %w", "nope", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"flow closed", `{}`, nodes.ErrFlowClosed, http.StatusServiceUnavailable, "flow_closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewNodesHandler(&mockNodeRegistry{dispatchErr: tt.dispatchErr}, zap.NewNop())

			req := httptest.NewRequest(http.MethodPost, "/api/nodes/nope/inject", strings.NewReader(tt.body))
			req.SetPathValue("id", "nope")
			rec := httptest.NewRecorder()
			handler.Inject(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if body["error"] != tt.wantCode {
				t.Errorf("error = %q, want %q", body["error"], tt.wantCode)
			}
		})
	}
}
