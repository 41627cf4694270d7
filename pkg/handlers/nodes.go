package handlers

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/models"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/nodes"
)

const maxInjectBodyBytes = 1 << 20

// NodeRegistry is the part of the flow the nodes handler needs.
type NodeRegistry interface {
	Nodes() []nodes.Info
	Dispatch(ctx context.Context, nodeID string, msg models.Message) error
}

// ListNodesResponse wraps the node snapshot.
type ListNodesResponse struct {
	Nodes []nodes.Info `json:"nodes"`
}

// InjectResponse acknowledges an accepted message.
type InjectResponse struct {
	NodeID string `json:"node_id"`
	MsgID  string `json:"msg_id"`
}

// NodesHandler exposes node status and lets callers inject messages.
type NodesHandler struct {
	flow   NodeRegistry
	logger *zap.Logger
}

// NewNodesHandler creates a new NodesHandler.
func NewNodesHandler(flow NodeRegistry, logger *zap.Logger) *NodesHandler {
	return &NodesHandler{flow: flow, logger: logger}
}

// RegisterRoutes registers the node routes on the given mux.
func (h *NodesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/nodes", h.List)
	mux.HandleFunc("POST /api/nodes/{id}/inject", h.Inject)
}

// List handles GET /api/nodes.
func (h *NodesHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, ListNodesResponse{Nodes: h.flow.Nodes()}); err != nil {
		h.logger.Error("Failed to encode node list", zap.Error(err))
	}
}

// Inject handles POST /api/nodes/{id}/inject.
// The body is a flow message; the node runs it asynchronously.
func (h *NodesHandler) Inject(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("id")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInjectBodyBytes))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Failed to read request body")
		return
	}
	msg, err := models.ParseMessage(body)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_message", "Request body must be a JSON object")
		return
	}
	msgID := msg.EnsureID()

	if err := h.flow.Dispatch(r.Context(), nodeID, msg); err != nil {
		status, code := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("Failed to dispatch message",
				zap.String("node_id", nodeID),
				zap.Error(err))
		}
		_ = ErrorResponse(w, status, code, err.Error())
		return
	}

	h.logger.Debug("message injected",
		zap.String("node_id", nodeID),
		zap.String("msg_id", msgID))

	if err := WriteJSON(w, http.StatusAccepted, InjectResponse{NodeID: nodeID, MsgID: msgID}); err != nil {
		h.logger.Error("Failed to encode inject response", zap.Error(err))
	}
}
