package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/services"
)

// CatalogHandler serves the table listings used by node editors.
// Both endpoints always answer with a JSON array; failures yield [].
type CatalogHandler struct {
	catalog services.CatalogService
	logger  *zap.Logger
}

func NewCatalogHandler(catalog services.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// RegisterRoutes registers the catalog routes on the given mux.
func (h *CatalogHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /gaiandb/lts", h.LogicalTables)
	mux.HandleFunc("GET /gaiandb/tables", h.PhysicalTables)
}

// LogicalTables handles GET /gaiandb/lts?confignodeid=<id>.
func (h *CatalogHandler) LogicalTables(w http.ResponseWriter, r *http.Request) {
	tables := h.catalog.ListLogicalTables(r.Context(), r.URL.Query().Get("confignodeid"))
	h.write(w, tables)
}

// PhysicalTables handles GET /gaiandb/tables?confignodeid=<id>.
func (h *CatalogHandler) PhysicalTables(w http.ResponseWriter, r *http.Request) {
	tables := h.catalog.ListPhysicalTables(r.Context(), r.URL.Query().Get("confignodeid"))
	h.write(w, tables)
}

func (h *CatalogHandler) write(w http.ResponseWriter, tables []string) {
	if tables == nil {
		tables = []string{}
	}
	if err := WriteJSON(w, http.StatusOK, tables); err != nil {
		h.logger.Error("Failed to encode table list", zap.Error(err))
	}
}
