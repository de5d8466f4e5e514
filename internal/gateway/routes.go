package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/soyeahso/taskpilot/internal/agent"
	"github.com/soyeahso/taskpilot/internal/config"
	"github.com/soyeahso/taskpilot/internal/session"
	"github.com/soyeahso/taskpilot/internal/tools"
)

// safeConfigPrefixes lists config path prefixes that can be read and
// written via RPC. All other paths are denied by default (allowlist).
var safeConfigPrefixes = []string{
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.allowedOrigins",
	"logging",
	"session",
	"agent.name",
	"agent.extraPrompt",
	"agent.confirmMutations",
	"llm.model",
	"llm.fallbacks",
	"llm.temperature",
	"llm.maxTokens",
	"metrics",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range safeConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// llmCallTimeout bounds one chat turn, including every model call in it.
const llmCallTimeout = 5 * time.Minute

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware(s.cfg.Gateway.AllowedOrigins))
	r.Use(loggingMiddleware(s.log))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	if s.metrics != nil {
		path := s.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Use(requireUser)

		r.Post("/api/ai/chat", s.handleChat)
		r.Post("/api/ai/chat/confirm", s.handleConfirm)

		r.Get("/mcp/tools", s.handleListTools)
		r.Get("/mcp/tools/{name}", s.handleGetTool)
		r.Post("/mcp/call", s.handleCallTool)
	})

	r.NotFound(handleNotFound)
	return r
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("config.set", s.rpcConfigSet)
	s.Handle("chat.send", s.rpcChatSend)
	s.Handle("chat.confirm", s.rpcChatConfirm)
	s.Handle("tools.list", s.rpcToolsList)
	s.Handle("tools.get", s.rpcToolsGet)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
	}
	if !s.startedAt.IsZero() {
		resp.Uptime = time.Since(s.startedAt).Round(time.Second).String()
	}
	rc.Respond(resp)
}

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError(CodeInvalidParams, "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError(CodeForbidden, "access denied for config path: "+p.Key)
		return
	}

	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}

	s.mu.RLock()
	val, ok := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()
	if !ok {
		rc.RespondError(CodeNotFound, "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

type configSetParams struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// rpcConfigSet edits the in-memory raw config. Changes apply on restart.
func (s *Server) rpcConfigSet(rc *RequestContext) {
	var p configSetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError(CodeInvalidParams, "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError(CodeForbidden, "cannot modify config path: "+p.Key)
		return
	}

	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}

	s.mu.Lock()
	config.SetValueAtPath(s.configRaw, path, p.Value)
	s.mu.Unlock()

	rc.Respond(map[string]any{"key": p.Key, "value": p.Value})
}

type chatSendParams struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

func (s *Server) rpcChatSend(rc *RequestContext) {
	if s.chat == nil {
		rc.RespondError(CodeUnavailable, "no LLM provider configured")
		return
	}

	var p chatSendParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if strings.TrimSpace(p.Message) == "" {
		rc.RespondError(CodeInvalidParams, "message is required")
		return
	}

	ctx, cancel := context.WithTimeout(rc.baseContext(), llmCallTimeout)
	defer cancel()

	reply, err := s.chat.Chat(ctx, agent.Request{
		SessionID: p.SessionID,
		UserID:    rc.Client.UserID,
		Message:   p.Message,
	})
	if errors.Is(err, session.ErrNotOwner) {
		rc.RespondError(CodeForbidden, err.Error())
		return
	}
	if err != nil {
		rc.RespondError(CodeAgentError, err.Error())
		return
	}
	rc.Respond(reply)
}

type chatConfirmParams struct {
	SessionID     string `json:"sessionId"`
	PendingAction string `json:"pendingAction"`
	Approved      bool   `json:"approved"`
}

func (s *Server) rpcChatConfirm(rc *RequestContext) {
	if s.chat == nil {
		rc.RespondError(CodeUnavailable, "no LLM provider configured")
		return
	}

	var p chatConfirmParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.SessionID == "" || p.PendingAction == "" {
		rc.RespondError(CodeInvalidParams, "sessionId and pendingAction are required")
		return
	}

	ctx, cancel := context.WithTimeout(rc.baseContext(), llmCallTimeout)
	defer cancel()

	reply, err := s.chat.Confirm(ctx, agent.ConfirmRequest{
		SessionID: p.SessionID,
		UserID:    rc.Client.UserID,
		Token:     p.PendingAction,
		Approved:  p.Approved,
	})
	if errors.Is(err, agent.ErrUnknownPendingAction) {
		rc.RespondError(CodeNotFound, err.Error())
		return
	}
	if errors.Is(err, session.ErrNotOwner) {
		rc.RespondError(CodeForbidden, err.Error())
		return
	}
	if err != nil {
		rc.RespondError(CodeAgentError, err.Error())
		return
	}
	rc.Respond(reply)
}

func (s *Server) rpcToolsList(rc *RequestContext) {
	if s.tools == nil {
		rc.Respond(map[string]any{"tools": []toolView{}, "count": 0})
		return
	}
	views := s.toolViews()
	rc.Respond(map[string]any{"tools": views, "count": len(views)})
}

type toolsGetParams struct {
	Name string `json:"name"`
}

func (s *Server) rpcToolsGet(rc *RequestContext) {
	var p toolsGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	var (
		schema tools.Schema
		ok     bool
	)
	if s.tools != nil {
		schema, ok = s.tools.Catalog().GetSchema(p.Name)
	}
	if !ok {
		rc.RespondError(CodeNotFound, "unknown tool: "+p.Name)
		return
	}
	rc.Respond(viewOf(schema))
}

func (rc *RequestContext) baseContext() context.Context {
	if rc.Ctx != nil {
		return rc.Ctx
	}
	return context.Background()
}
