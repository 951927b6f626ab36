package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/benvon/crm-tools/internal/gateway"
	"github.com/benvon/crm-tools/internal/logger"
	"github.com/benvon/crm-tools/internal/request"
	"github.com/benvon/crm-tools/internal/tools"
)

// ToolInvoker is the gateway surface used by the HTTP transport. *gateway.Gateway implements it.
type ToolInvoker interface {
	Tools() []*tools.Tool
	Tool(name string) (*tools.Tool, bool)
	Invoke(ctx context.Context, clientKey, name string, rawArgs json.RawMessage) (*tools.Result, error)
	RetryAfter(clientKey string) time.Duration
}

// ToolHandler exposes the tool catalogue and invocation over HTTP.
type ToolHandler struct {
	gw     ToolInvoker
	logger *zap.Logger
}

// NewToolHandler creates a new tool handler
func NewToolHandler(gw ToolInvoker, log *zap.Logger) *ToolHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ToolHandler{gw: gw, logger: log}
}

// RegisterRoutes registers tool routes on the given router.
// The router should already carry the /api/v1 prefix.
func (h *ToolHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tools", h.ListTools).Methods("GET")
	r.HandleFunc("/tools.yaml", h.ListToolsYAML).Methods("GET")
	r.HandleFunc("/tools/{name}", h.GetTool).Methods("GET")
	r.HandleFunc("/tools/{name}", h.CallTool).Methods("POST")
}

// toolCatalogue is the listing document; the same shape is served as JSON and YAML.
type toolCatalogue struct {
	Tools []*tools.Tool `json:"tools" yaml:"tools"`
	Count int           `json:"count" yaml:"count"`
}

func (h *ToolHandler) catalogue() toolCatalogue {
	list := h.gw.Tools()
	return toolCatalogue{Tools: list, Count: len(list)}
}

// ListTools handles GET /api/v1/tools
func (h *ToolHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.catalogue())
}

// ListToolsYAML handles GET /api/v1/tools.yaml
func (h *ToolHandler) ListToolsYAML(w http.ResponseWriter, r *http.Request) {
	out, err := yaml.Marshal(h.catalogue())
	if err != nil {
		h.logger.Error("failed_to_encode_tool_catalogue", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to encode tool catalogue")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		h.logger.Warn("failed_to_write_tool_catalogue", zap.Error(err))
	}
}

// GetTool handles GET /api/v1/tools/{name}
func (h *ToolHandler) GetTool(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	tool, ok := h.gw.Tool(name)
	if !ok {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Unknown tool: "+name)
		return
	}
	respondJSON(w, http.StatusOK, tool)
}

// CallTool handles POST /api/v1/tools/{name}. The request body is the tool's argument object.
func (h *ToolHandler) CallTool(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	clientKey := request.ClientKey(r)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "Request body exceeds the maximum allowed size")
			return
		}
		h.logger.Warn("failed_to_read_tool_arguments",
			zap.String("tool", logger.SanitizeToolName(name)),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Failed to read request body")
		return
	}

	result, err := h.gw.Invoke(r.Context(), clientKey, name, body)
	if err != nil {
		status := gateway.StatusCode(err)
		if status == http.StatusTooManyRequests {
			if wait := h.gw.RetryAfter(clientKey); wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			}
		}
		respondJSONError(w, status, http.StatusText(status), gateway.PublicMessage(err))
		return
	}

	respondJSON(w, http.StatusOK, result)
}
