// Package api is the daemon's HTTP surface: a thin JSON layer over the
// core services plus the websocket stream/attach endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agent-conductor/conductord/internal/approval"
	"github.com/agent-conductor/conductord/internal/config"
	"github.com/agent-conductor/conductord/internal/flow"
	"github.com/agent-conductor/conductord/internal/metrics"
	"github.com/agent-conductor/conductord/internal/model"
	"github.com/agent-conductor/conductord/internal/providers"
	"github.com/agent-conductor/conductord/internal/terminal"
	"github.com/agent-conductor/conductord/internal/tmux"
)

// Terminals is the slice of the terminal manager the handlers need.
type Terminals interface {
	Create(ctx context.Context, req terminal.CreateRequest) (*model.Terminal, error)
	Get(id string) (*model.Terminal, error)
	SendInput(id, text string) error
	CaptureOutput(id string, lastOnly bool) (string, error)
	Delete(id string) error
	LogPath(id string) string
}

type Sessions interface {
	List() ([]model.Session, error)
	Get(name string) (*model.Session, error)
	Delete(name string) error
}

type Inbox interface {
	Queue(sender, receiver, message string) (*model.InboxMessage, error)
	List(receiver string) ([]model.InboxMessage, error)
	DeliverPending(receiver string) (delivered, failed int, err error)
}

type Approvals interface {
	Request(terminalID, supervisorID, commandText, metadata string) (*model.ApprovalRequest, error)
	List(status model.ApprovalStatus) ([]model.ApprovalRequest, error)
	Approve(id int64) (*model.ApprovalRequest, error)
	Deny(id int64, reason string) (*model.ApprovalRequest, error)
}

type Flows interface {
	Register(f *model.Flow) error
	Get(name string) (*model.Flow, error)
	List() ([]model.Flow, error)
	SetEnabled(name string, enabled bool) (*model.Flow, error)
	Delete(name string) error
}

type Server struct {
	terminals Terminals
	sessions  Sessions
	inbox     Inbox
	approvals Approvals
	flows     Flows
	tmuxCfg   *config.TmuxConfig
}

func NewServer(terminals Terminals, sessions Sessions, inbox Inbox, approvals Approvals, flows Flows, tmuxCfg *config.TmuxConfig) *Server {
	return &Server{
		terminals: terminals,
		sessions:  sessions,
		inbox:     inbox,
		approvals: approvals,
		flows:     flows,
		tmuxCfg:   tmuxCfg,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{name}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{name}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{name}/terminals", s.handleCreateTerminal)

	mux.HandleFunc("GET /terminals/{id}", s.handleGetTerminal)
	mux.HandleFunc("POST /terminals/{id}/input", s.handleTerminalInput)
	mux.HandleFunc("GET /terminals/{id}/output", s.handleTerminalOutput)
	mux.HandleFunc("DELETE /terminals/{id}", s.handleDeleteTerminal)
	mux.HandleFunc("GET /terminals/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /terminals/{id}/attach", s.handleAttach)

	mux.HandleFunc("POST /inbox", s.handleQueueMessage)
	mux.HandleFunc("GET /inbox/{terminal}", s.handleListInbox)
	mux.HandleFunc("POST /inbox/{terminal}/deliver", s.handleDeliverInbox)

	mux.HandleFunc("POST /approvals", s.handleCreateApproval)
	mux.HandleFunc("GET /approvals", s.handleListApprovals)
	mux.HandleFunc("POST /approvals/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /approvals/{id}/deny", s.handleDeny)

	mux.HandleFunc("POST /flows", s.handleRegisterFlow)
	mux.HandleFunc("GET /flows", s.handleListFlows)
	mux.HandleFunc("GET /flows/{name}", s.handleGetFlow)
	mux.HandleFunc("DELETE /flows/{name}", s.handleDeleteFlow)
	mux.HandleFunc("POST /flows/{name}/enable", s.handleEnableFlow)
	mux.HandleFunc("POST /flows/{name}/disable", s.handleDisableFlow)

	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var initErr *providers.InitError
	switch {
	case errors.Is(err, terminal.ErrTerminalNotFound),
		errors.Is(err, approval.ErrRequestNotFound),
		errors.Is(err, flow.ErrFlowNotFound),
		errors.Is(err, tmux.ErrTargetNotFound):
		status = http.StatusNotFound
	case errors.Is(err, approval.ErrAlreadyDecided),
		errors.Is(err, providers.ErrProviderNotLoaded):
		status = http.StatusConflict
	case errors.Is(err, providers.ErrUnknownProvider),
		errors.As(err, &initErr):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createTerminalRequest struct {
	Provider     string `json:"provider"`
	AgentProfile string `json:"agent_profile,omitempty"`
	Role         string `json:"role,omitempty"`
	WorkingDir   string `json:"working_dir,omitempty"`
}

func (s *Server) createTerminal(w http.ResponseWriter, r *http.Request, session, defaultRole string) {
	var req createTerminalRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = defaultRole
	}
	t, err := s.terminals.Create(r.Context(), terminal.CreateRequest{
		Provider:     req.Provider,
		AgentProfile: req.AgentProfile,
		Role:         req.Role,
		SessionName:  session,
		WorkingDir:   req.WorkingDir,
	})
	if err != nil {
		metrics.TerminalCreateFailures.WithLabelValues(req.Provider).Inc()
		writeError(w, err)
		return
	}
	metrics.TerminalsCreated.WithLabelValues(t.Provider).Inc()
	writeJSON(w, http.StatusCreated, t)
}

// handleCreateSession spawns a fresh session seeded with its supervisor
// terminal.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s.createTerminal(w, r, "", "supervisor")
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List()
	if err != nil {
		writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTerminal(w http.ResponseWriter, r *http.Request) {
	s.createTerminal(w, r, r.PathValue("name"), "worker")
}

func (s *Server) handleGetTerminal(w http.ResponseWriter, r *http.Request) {
	t, err := s.terminals.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type terminalInputRequest struct {
	Message          string `json:"message"`
	RequiresApproval bool   `json:"requires_approval,omitempty"`
	SupervisorID     string `json:"supervisor_id,omitempty"`
	Metadata         string `json:"metadata,omitempty"`
}

// handleTerminalInput either sends text straight into the terminal or,
// with requires_approval, parks it as a pending approval request.
func (s *Server) handleTerminalInput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req terminalInputRequest
	if !readJSON(w, r, &req) {
		return
	}

	if req.RequiresApproval {
		a, err := s.approvals.Request(id, req.SupervisorID, req.Message, req.Metadata)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, a)
		return
	}

	if err := s.terminals.SendInput(id, req.Message); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleTerminalOutput(w http.ResponseWriter, r *http.Request) {
	lastOnly := r.URL.Query().Get("mode") == "last"
	output, err := s.terminals.CaptureOutput(r.PathValue("id"), lastOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": output})
}

func (s *Server) handleDeleteTerminal(w http.ResponseWriter, r *http.Request) {
	if err := s.terminals.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type queueMessageRequest struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Message    string `json:"message"`
}

func (s *Server) handleQueueMessage(w http.ResponseWriter, r *http.Request) {
	var req queueMessageRequest
	if !readJSON(w, r, &req) {
		return
	}
	m, err := s.inbox.Queue(req.SenderID, req.ReceiverID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleListInbox(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.inbox.List(r.PathValue("terminal"))
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []model.InboxMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleDeliverInbox(w http.ResponseWriter, r *http.Request) {
	delivered, failed, err := s.inbox.DeliverPending(r.PathValue("terminal"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"delivered": delivered, "failed": failed})
}

type createApprovalRequest struct {
	TerminalID   string `json:"terminal_id"`
	SupervisorID string `json:"supervisor_id"`
	CommandText  string `json:"command_text"`
	Metadata     string `json:"metadata,omitempty"`
}

func (s *Server) handleCreateApproval(w http.ResponseWriter, r *http.Request) {
	var req createApprovalRequest
	if !readJSON(w, r, &req) {
		return
	}
	a, err := s.approvals.Request(req.TerminalID, req.SupervisorID, req.CommandText, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	status := model.ApprovalStatus(r.URL.Query().Get("status"))
	approvals, err := s.approvals.List(status)
	if err != nil {
		writeError(w, err)
		return
	}
	if approvals == nil {
		approvals = []model.ApprovalRequest{}
	}
	writeJSON(w, http.StatusOK, approvals)
}

func approvalID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid approval id"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := approvalID(w, r)
	if !ok {
		return
	}
	a, err := s.approvals.Approve(id)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ApprovalsDecided.WithLabelValues("approved").Inc()
	writeJSON(w, http.StatusOK, a)
}

type denyRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	id, ok := approvalID(w, r)
	if !ok {
		return
	}
	var req denyRequest
	if r.ContentLength > 0 && !readJSON(w, r, &req) {
		return
	}
	a, err := s.approvals.Deny(id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ApprovalsDecided.WithLabelValues("denied").Inc()
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleRegisterFlow(w http.ResponseWriter, r *http.Request) {
	var f model.Flow
	if !readJSON(w, r, &f) {
		return
	}
	if err := s.flows.Register(&f); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := s.flows.List()
	if err != nil {
		writeError(w, err)
		return
	}
	if flows == nil {
		flows = []model.Flow{}
	}
	writeJSON(w, http.StatusOK, flows)
}

func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	f, err := s.flows.Get(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.flows.Delete(r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setFlowEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	f, err := s.flows.SetEnabled(r.PathValue("name"), enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleEnableFlow(w http.ResponseWriter, r *http.Request) {
	s.setFlowEnabled(w, r, true)
}

func (s *Server) handleDisableFlow(w http.ResponseWriter, r *http.Request) {
	s.setFlowEnabled(w, r, false)
}
