package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soyeahso/taskpilot/internal/agent"
	"github.com/soyeahso/taskpilot/internal/session"
	"github.com/soyeahso/taskpilot/internal/tools"
)

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the authenticated RPC handler populates all fields.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Clients int    `json:"clients,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// handleHealth returns the server health status. Only status is exposed
// publicly; detailed info is available via the authenticated RPC health method.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayload))
	return dec.Decode(target)
}

// handleChat runs one chat turn for the header user.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "no LLM provider configured")
		return
	}
	var req agent.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.UserID = UserIDFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), llmCallTimeout)
	defer cancel()

	reply, err := s.chat.Chat(ctx, req)
	if err != nil {
		s.writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleConfirm answers a pending action.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "no LLM provider configured")
		return
	}
	var req agent.ConfirmRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Token == "" || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId and pendingAction are required")
		return
	}
	req.UserID = UserIDFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), llmCallTimeout)
	defer cancel()

	reply, err := s.chat.Confirm(ctx, req)
	if err != nil {
		s.writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) writeAgentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agent.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, agent.ErrUnknownPendingAction):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		s.log.Error().Err(err).Msg("chat failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// toolView is the public shape of a catalog entry.
type toolView struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Mutating    bool           `json:"mutating"`
}

func viewOf(s tools.Schema) toolView {
	return toolView{
		Name:        s.Name,
		Description: s.Description,
		Parameters:  s.JSONSchema(),
		Mutating:    s.Mutating,
	}
}

func (s *Server) toolViews() []toolView {
	list := s.tools.Catalog().ListTools()
	out := make([]toolView, 0, len(list))
	for _, t := range list {
		out = append(out, viewOf(t))
	}
	return out
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	if s.tools == nil {
		writeError(w, http.StatusServiceUnavailable, "tools are not available")
		return
	}
	views := s.toolViews()
	writeJSON(w, http.StatusOK, map[string]any{"tools": views, "count": len(views)})
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	if s.tools == nil {
		writeError(w, http.StatusServiceUnavailable, "tools are not available")
		return
	}
	name := chi.URLParam(r, "name")
	schema, ok := s.tools.Catalog().GetSchema(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown tool: "+name)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(schema))
}

// toolCallRequest carries arguments either as a JSON object or as a string
// holding one, the way a model would send them.
type toolCallRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	SessionID string          `json:"sessionId,omitempty"`
}

func (p toolCallRequest) argumentsJSON() string {
	if len(p.Arguments) == 0 {
		return "{}"
	}
	var s string
	if err := json.Unmarshal(p.Arguments, &s); err == nil {
		return s
	}
	return string(p.Arguments)
}

// handleCallTool executes a tool directly, bypassing the model.
// The result envelope is returned with status 200 even when the tool failed.
func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	if s.tools == nil {
		writeError(w, http.StatusServiceUnavailable, "tools are not available")
		return
	}
	var req toolCallRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	res := s.tools.Execute(r.Context(), req.Name, req.argumentsJSON(), tools.Caller{
		UserID:    UserIDFromContext(r.Context()),
		SessionID: req.SessionID,
	})
	writeJSON(w, http.StatusOK, res)
}

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(ctx *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	if err := rc.Client.fail(rc.Frame.ID, code, message); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send error")
	}
}

// Params unmarshals the request params into the given target.
func (rc *RequestContext) Params(target any) error {
	if rc.Frame.Params == nil {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
