package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/constants"
	"github.com/parchmentlabs/parchment/internal/metrics"
	"github.com/parchmentlabs/parchment/internal/models"
	"github.com/parchmentlabs/parchment/internal/session"
	"github.com/parchmentlabs/parchment/internal/workflows"
)

type chatRequest struct {
	Prompt    string   `json:"prompt"`
	SessionID string   `json:"session_id,omitempty"`
	IndexIDs  []string `json:"index_ids,omitempty"`
}

type chatResponse struct {
	RunID string `json:"run_id"`
	workflows.ChatResult
}

// handleChat starts a chat workflow and waits for its terminal result.
// Live progress is available on /stream/sse and /stream/ws under the
// returned run ID.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	input := workflows.ChatInput{
		Prompt:    req.Prompt,
		SessionID: req.SessionID,
		IndexIDs:  req.IndexIDs,
	}
	if req.SessionID != "" {
		sess, err := s.sessions.Get(r.Context(), req.SessionID)
		switch {
		case err == nil:
			input.History = sess.History
			if len(input.IndexIDs) == 0 {
				input.IndexIDs = sess.IndexIDs
			}
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
			writeError(w, http.StatusNotFound, "unknown session "+req.SessionID)
			return
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	runID := "chat-" + uuid.New().String()
	run, err := s.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        runID,
		TaskQueue: constants.TaskQueue,
	}, constants.ChatWorkflowName, input)
	if err != nil {
		s.logger.Error("Failed to start chat workflow", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "could not start chat run")
		return
	}
	metrics.WorkflowsStarted.Inc()

	var result workflows.ChatResult
	if err := run.Get(r.Context(), &result); err != nil {
		s.logger.Error("Chat workflow failed",
			zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "chat run failed")
		return
	}

	status := http.StatusOK
	if result.Status == workflows.StatusError {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, chatResponse{RunID: runID, ChatResult: result})
}

type simpleChatRequest struct {
	Prompt    string   `json:"prompt"`
	SessionID string   `json:"session_id,omitempty"`
	IndexIDs  []string `json:"index_ids,omitempty"`
}

// handleSimpleChat answers in one LLM round trip, skipping the review
// workflow.
func (s *Server) handleSimpleChat(w http.ResponseWriter, r *http.Request) {
	var req simpleChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	var history []models.Message
	if req.SessionID != "" {
		if sess, err := s.sessions.Get(r.Context(), req.SessionID); err == nil {
			history = sess.History
			if len(req.IndexIDs) == 0 {
				req.IndexIDs = sess.IndexIDs
			}
		}
	}

	answer, err := s.simple.Answer(r.Context(), req.Prompt, req.IndexIDs, history)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if req.SessionID != "" {
		if err := s.sessions.AppendExchange(r.Context(), req.SessionID, req.Prompt, answer); err != nil {
			s.logger.Warn("Session update after simple chat failed",
				zap.String("session_id", req.SessionID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

type restructureRequest struct {
	Text        string `json:"text"`
	Instruction string `json:"instruction"`
}

// handleRestructure reorganizes submitted text (headings, ordering,
// formatting) without generating new content.
func (s *Server) handleRestructure(w http.ResponseWriter, r *http.Request) {
	var req restructureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" || req.Instruction == "" {
		writeError(w, http.StatusBadRequest, "text and instruction are required")
		return
	}
	result, err := s.simple.Restructure(r.Context(), req.Instruction, req.Text)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": result})
}

type createSessionRequest struct {
	UserID   string   `json:"user_id,omitempty"`
	IndexIDs []string `json:"index_ids,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := s.sessions.Create(r.Context(), req.UserID, req.IndexIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.RecentRuns(r.Context(), r.PathValue("id"), 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
