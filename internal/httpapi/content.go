package httpapi

import (
	"io"
	"net/http"

	"go.uber.org/zap"
)

// maxUploadSize bounds multipart uploads at 32 MB.
const maxUploadSize = 32 << 20

// handleListContent returns the cached index summaries.
func (s *Server) handleListContent(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.cache.Summaries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indexes": summaries})
}

// handleUpload ingests a multipart file into the given folder.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	folder := r.FormValue("folder")
	if folder == "" {
		folder = "/"
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload: "+err.Error())
		return
	}

	idx, err := s.ingestor.IngestFile(r.Context(), header.Filename, folder, data)
	if err != nil {
		s.logger.Warn("Upload ingest failed",
			zap.String("filename", header.Filename), zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, idx)
}

func (s *Server) handleDeleteContent(w http.ResponseWriter, r *http.Request) {
	if err := s.ingestor.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveRequest struct {
	Folder string `json:"folder"`
}

func (s *Server) handleMoveContent(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.cache.MoveItem(r.Context(), r.PathValue("id"), req.Folder); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.cache.Folders(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

type folderRequest struct {
	Folder string `json:"folder"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.cache.CreateFolder(r.Context(), req.Folder); err != nil {
		writeError(w, folderStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type renameFolderRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) handleRenameFolder(w http.ResponseWriter, r *http.Request) {
	var req renameFolderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.cache.RenameFolder(r.Context(), req.From, req.To); err != nil {
		writeError(w, folderStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.cache.DeleteFolder(r.Context(), req.Folder); err != nil {
		writeError(w, folderStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cacheNotionRequest struct {
	PageID     string `json:"page_id,omitempty"`
	DatabaseID string `json:"database_id,omitempty"`
	Folder     string `json:"folder,omitempty"`
}

func (s *Server) handleCachePage(w http.ResponseWriter, r *http.Request) {
	var req cacheNotionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PageID == "" {
		writeError(w, http.StatusBadRequest, "page_id is required")
		return
	}
	folder := req.Folder
	if folder == "" {
		folder = "/"
	}
	idx, err := s.notion.CachePage(r.Context(), req.PageID, folder)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, idx)
}

func (s *Server) handleCacheDatabase(w http.ResponseWriter, r *http.Request) {
	var req cacheNotionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DatabaseID == "" {
		writeError(w, http.StatusBadRequest, "database_id is required")
		return
	}
	folder := req.Folder
	if folder == "" {
		folder = "/"
	}
	idx, err := s.notion.CacheDatabase(r.Context(), req.DatabaseID, folder)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, idx)
}
