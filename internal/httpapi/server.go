// Package httpapi exposes the chat, content, and streaming endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/agents"
	"github.com/parchmentlabs/parchment/internal/contentcache"
	"github.com/parchmentlabs/parchment/internal/db"
	"github.com/parchmentlabs/parchment/internal/ingest"
	"github.com/parchmentlabs/parchment/internal/notion"
	"github.com/parchmentlabs/parchment/internal/session"
	"github.com/parchmentlabs/parchment/internal/streaming"
)

// WorkflowStarter is the Temporal client surface the API needs.
// client.Client satisfies it.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Server holds every handler dependency.
type Server struct {
	temporal WorkflowStarter
	sessions *session.Manager
	cache    *contentcache.Service
	ingestor *ingest.Ingestor
	notion   *notion.Cacher
	simple   *agents.SimpleChat
	runs     *db.RunWriter
	hub      *streaming.Hub
	logger   *zap.Logger
}

func NewServer(
	temporal WorkflowStarter,
	sessions *session.Manager,
	cache *contentcache.Service,
	ingestor *ingest.Ingestor,
	notionCacher *notion.Cacher,
	simple *agents.SimpleChat,
	runs *db.RunWriter,
	hub *streaming.Hub,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		temporal: temporal,
		sessions: sessions,
		cache:    cache,
		ingestor: ingestor,
		notion:   notionCacher,
		simple:   simple,
		runs:     runs,
		hub:      hub,
		logger:   logger,
	}
}

// Routes registers every endpoint on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/simple", s.handleSimpleChat)
	mux.HandleFunc("POST /api/chat/restructure", s.handleRestructure)

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/runs", s.handleSessionRuns)

	mux.HandleFunc("GET /api/content", s.handleListContent)
	mux.HandleFunc("POST /api/content/upload", s.handleUpload)
	mux.HandleFunc("DELETE /api/content/{id}", s.handleDeleteContent)
	mux.HandleFunc("POST /api/content/{id}/move", s.handleMoveContent)

	mux.HandleFunc("GET /api/folders", s.handleListFolders)
	mux.HandleFunc("POST /api/folders", s.handleCreateFolder)
	mux.HandleFunc("POST /api/folders/rename", s.handleRenameFolder)
	mux.HandleFunc("DELETE /api/folders", s.handleDeleteFolder)

	mux.HandleFunc("POST /api/notion/pages", s.handleCachePage)
	mux.HandleFunc("POST /api/notion/databases", s.handleCacheDatabase)

	mux.HandleFunc("GET /stream/sse", s.handleSSE)
	mux.HandleFunc("GET /stream/ws", s.handleWS)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// folderStatus maps folder errors to HTTP statuses.
func folderStatus(err error) int {
	switch {
	case errors.Is(err, contentcache.ErrRootFolder):
		return http.StatusForbidden
	case errors.Is(err, contentcache.ErrFolderExists):
		return http.StatusConflict
	case errors.Is(err, contentcache.ErrFolderNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
