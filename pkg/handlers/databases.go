package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/engine"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/logging"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/nodes"
)

// DatabaseRegistry is the part of the flow the databases handler needs.
type DatabaseRegistry interface {
	Configs() []*nodes.GaianConfig
	Config(id string) (*nodes.GaianConfig, error)
}

// DatabaseResponse describes a config node. Credentials are never included.
type DatabaseResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Address   string `json:"address"`
	Database  string `json:"database"`
	Connected bool   `json:"connected"`
}

// ListDatabasesResponse wraps array for frontend compatibility.
type ListDatabasesResponse struct {
	Databases []DatabaseResponse `json:"databases"`
}

// TestConnectionResponse reports the outcome of a connectivity test.
type TestConnectionResponse struct {
	Database string             `json:"database"`
	State    engine.StatusState `json:"state"`
	Error    string             `json:"error,omitempty"`
}

// DatabasesHandler lists config nodes and tests their connectivity.
type DatabasesHandler struct {
	registry DatabaseRegistry
	logger   *zap.Logger
}

// NewDatabasesHandler creates a new DatabasesHandler.
func NewDatabasesHandler(registry DatabaseRegistry, logger *zap.Logger) *DatabasesHandler {
	return &DatabasesHandler{registry: registry, logger: logger}
}

// RegisterRoutes registers the database routes on the given mux.
func (h *DatabasesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/databases", h.List)
	mux.HandleFunc("POST /api/databases/{id}/test", h.TestConnection)
}

// List handles GET /api/databases.
func (h *DatabasesHandler) List(w http.ResponseWriter, r *http.Request) {
	configs := h.registry.Configs()
	resp := ListDatabasesResponse{Databases: make([]DatabaseResponse, 0, len(configs))}
	for _, g := range configs {
		cfg := g.Config()
		resp.Databases = append(resp.Databases, DatabaseResponse{
			ID:        cfg.ID,
			Name:      cfg.Name,
			Type:      cfg.Type,
			Address:   cfg.Address(),
			Database:  cfg.Database,
			Connected: g.Connected(),
		})
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode database list", zap.Error(err))
	}
}

// TestConnection handles POST /api/databases/{id}/test.
// A failed test is still a 200; the state and error describe the failure.
func (h *DatabasesHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	g, err := h.registry.Config(id)
	if err != nil {
		status, code := errorStatus(err)
		_ = ErrorResponse(w, status, code, err.Error())
		return
	}

	state, err := g.TestConnection(r.Context())
	resp := TestConnectionResponse{Database: id, State: state}
	if err != nil {
		resp.Error = logging.SanitizeError(err)
		h.logger.Info("connection test failed",
			zap.String("database", id),
			zap.String("error", resp.Error))
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode connection test response", zap.Error(err))
	}
}
