package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
	"github.com/DevRickLin/feishu-task-engine/internal/biz/usecase"
)

// Server exposes the task operations over HTTP for the CLI and the MCP server
type Server struct {
	taskUC  *usecase.TaskUsecase
	purgeUC *usecase.PurgeUsecase
	now     func() time.Time
	logger  *slog.Logger

	server *http.Server
	addr   string
}

// NewServer creates a new API server
func NewServer(taskUC *usecase.TaskUsecase, purgeUC *usecase.PurgeUsecase, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		taskUC:  taskUC,
		purgeUC: purgeUC,
		now:     time.Now,
		logger:  logger.With("component", "API"),
		addr:    addr,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Scheduled messages
	mux.HandleFunc("/api/messages", s.handleMessages)
	mux.HandleFunc("/api/messages/", s.handleMessageItem)

	// Purge rules
	mux.HandleFunc("/api/purge-rules", s.handlePurgeRules)
	mux.HandleFunc("/api/purge-rules/", s.handlePurgeRuleItem)

	// On-demand purge
	mux.HandleFunc("/api/purge/run", s.handlePurgeRun)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ============ Scheduled Message Handlers ============

// ScheduleRequest is the body of POST /api/messages
type ScheduleRequest struct {
	ScopeID   string   `json:"scope_id"`
	ChannelID string   `json:"channel_id"`
	Content   string   `json:"content"`
	Media     []string `json:"media,omitempty"`
	When      string   `json:"when"`
	Interval  string   `json:"interval,omitempty"` // seconds or token form; empty means one-shot
	CreatedBy string   `json:"created_by,omitempty"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		msgs, err := s.taskUC.ListMessages(ctx, q.Get("scope_id"), q.Get("channel_id"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"messages": msgs})

	case http.MethodPost:
		var req ScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		due, err := domain.ParseScheduleTime(req.When, s.now())
		if err != nil {
			s.writeError(w, err)
			return
		}
		var interval int64
		if strings.TrimSpace(req.Interval) != "" {
			if interval, err = domain.ParseInterval(req.Interval); err != nil {
				s.writeError(w, err)
				return
			}
		}

		msg, err := s.taskUC.ScheduleMessage(ctx, domain.ScheduledMessageInput{
			ScopeID:         req.ScopeID,
			ChannelID:       req.ChannelID,
			Content:         req.Content,
			Media:           req.Media,
			DueAt:           due,
			IntervalSeconds: interval,
			CreatedBy:       req.CreatedBy,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.logger.Info("message scheduled", "id", msg.ID, "channel", msg.ChannelID, "due_at", msg.DueAt.Unix())
		s.writeJSONStatus(w, http.StatusCreated, msg)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMessageItem(w http.ResponseWriter, r *http.Request) {
	// Parse path: /api/messages/{id} or /api/messages/{id}/{pause|resume}
	id, action, ok := parseItemPath(r.URL.Path, "/api/messages/")
	if !ok {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}
	scopeID := r.URL.Query().Get("scope_id")
	ctx := r.Context()

	var err error
	switch {
	case action == "" && r.Method == http.MethodDelete:
		err = s.taskUC.RemoveMessage(ctx, scopeID, id)
	case action == "pause" && r.Method == http.MethodPost:
		err = s.taskUC.PauseMessage(ctx, scopeID, id)
	case action == "resume" && r.Method == http.MethodPost:
		err = s.taskUC.ResumeMessage(ctx, scopeID, id)
	case action != "" && action != "pause" && action != "resume":
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

// ============ Purge Rule Handlers ============

// PurgeRuleRequest is the body of POST /api/purge-rules
type PurgeRuleRequest struct {
	ScopeID   string `json:"scope_id"`
	ChannelID string `json:"channel_id"`
	Mode      string `json:"mode"`
	Interval  string `json:"interval,omitempty"` // seconds or token form
	Every     int64  `json:"every,omitempty"`    // used with Unit when Interval is empty
	Unit      string `json:"unit,omitempty"`
	ScanLimit int    `json:"scan_limit,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
}

func (s *Server) handlePurgeRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		rules, err := s.taskUC.ListPurgeRules(ctx, r.URL.Query().Get("scope_id"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"rules": rules})

	case http.MethodPost:
		var req PurgeRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var interval int64
		var err error
		if strings.TrimSpace(req.Interval) != "" {
			interval, err = domain.ParseInterval(req.Interval)
		} else {
			interval, err = domain.IntervalFromUnit(req.Every, req.Unit)
		}
		if err != nil {
			s.writeError(w, err)
			return
		}

		rule, err := s.taskUC.SetPurgeRule(ctx, domain.PurgeRuleInput{
			ScopeID:         req.ScopeID,
			ChannelID:       req.ChannelID,
			Mode:            req.Mode,
			IntervalSeconds: interval,
			ScanLimit:       req.ScanLimit,
			CreatedBy:       req.CreatedBy,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.logger.Info("purge rule set", "id", rule.ID, "channel", rule.ChannelID, "mode", rule.Mode)
		s.writeJSON(w, rule)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePurgeRuleItem(w http.ResponseWriter, r *http.Request) {
	id, action, ok := parseItemPath(r.URL.Path, "/api/purge-rules/")
	if !ok {
		http.Error(w, "invalid rule id", http.StatusBadRequest)
		return
	}
	scopeID := r.URL.Query().Get("scope_id")
	ctx := r.Context()

	var err error
	switch {
	case action == "" && r.Method == http.MethodDelete:
		err = s.taskUC.RemovePurgeRule(ctx, scopeID, id)
	case action == "pause" && r.Method == http.MethodPost:
		err = s.taskUC.PausePurgeRule(ctx, scopeID, id)
	case action == "resume" && r.Method == http.MethodPost:
		err = s.taskUC.ResumePurgeRule(ctx, scopeID, id)
	case action != "" && action != "pause" && action != "resume":
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

// PurgeRunRequest is the body of POST /api/purge/run
type PurgeRunRequest struct {
	ScopeID   string `json:"scope_id"`
	ChannelID string `json:"channel_id"`
	Mode      string `json:"mode"`
	ScanLimit int    `json:"scan_limit,omitempty"`
}

func (s *Server) handlePurgeRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PurgeRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ScopeID) == "" {
		s.writeError(w, &domain.ValidationError{Field: "scope_id", Message: "is required"})
		return
	}
	if strings.TrimSpace(req.ChannelID) == "" {
		s.writeError(w, &domain.ValidationError{Field: "channel_id", Message: "is required"})
		return
	}

	result, err := s.purgeUC.PurgeChannel(r.Context(), req.ChannelID, req.Mode, req.ScanLimit)
	s.logger.Info("manual purge", "scope", req.ScopeID, "channel", req.ChannelID, "mode", req.Mode,
		"scanned", result.Scanned, "deleted", result.Deleted)
	if err != nil && result.Scanned == 0 {
		s.writeError(w, err)
		return
	}

	resp := map[string]interface{}{"result": result}
	if err != nil {
		// Partial purge: report what was removed alongside the failure
		resp["error"] = err.Error()
	}
	s.writeJSON(w, resp)
}

// ============ Helpers ============

// parseItemPath splits "{prefix}{id}[/{action}]"
func parseItemPath(path, prefix string) (int64, string, bool) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, prefix), "/"), "/")
	if len(parts) == 0 || len(parts) > 2 {
		return 0, "", false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	if len(parts) == 2 {
		return id, parts[1], true
	}
	return id, "", true
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	s.writeJSONStatus(w, http.StatusOK, data)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, domain.ErrEmptyPayload),
		errors.Is(err, domain.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrChannelNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRuleConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
