package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/draftline/draftline/internal/engine/reader"
	"github.com/draftline/draftline/internal/engine/record"
	"github.com/draftline/draftline/internal/engine/value"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error    string           `json:"error"`
	Fields   []fieldErrorJSON `json:"fields,omitempty"`
	ParentID int64            `json:"parentId,omitempty"`
}

type fieldErrorJSON struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type tableListResponse struct {
	Tables []string `json:"tables"`
}

type workspaceResponse struct {
	WorkspaceID int64 `json:"workspaceId"`
}

type workspaceRequest struct {
	WorkspaceID int64 `json:"workspaceId"`
	Optimal     bool  `json:"optimal"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeEngineError maps the engine error taxonomy onto HTTP statuses
func writeEngineError(w http.ResponseWriter, err error) {
	var verr *record.ValidationError
	if errors.As(err, &verr) {
		resp := errorResponse{Error: "validation failed"}
		for _, fe := range verr.Errors {
			resp.Fields = append(resp.Fields, fieldErrorJSON{Field: fe.Field, Message: fe.Message})
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	var perr *record.PartialFailureError
	if errors.As(err, &perr) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:    perr.Error(),
			ParentID: perr.ParentID,
		})
		return
	}

	switch {
	case errors.Is(err, record.ErrAccessDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, record.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, record.ErrReadOnly):
		writeError(w, http.StatusMethodNotAllowed, err.Error())
	case errors.Is(err, record.ErrValidationFailed), errors.Is(err, record.ErrUnknownField):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, record.ErrInvalidPredicate):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tableListResponse{Tables: s.reg.AccessibleTables()})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspaceFor(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	opts := reader.Options{WorkspaceID: ws}

	q := r.URL.Query()
	if v := q.Get("parent"); v != "" {
		pid, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid parent")
			return
		}
		opts.ParentID = &pid
	}
	if v := q.Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}
	if v := q.Get("fields"); v != "" {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				opts.Fields = append(opts.Fields, f)
			}
		}
	}
	opts.RawPredicate = q.Get("where")

	page, err := s.reader.Read(r.Context(), chi.URLParam(r, "table"), opts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspaceFor(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	opts := reader.Options{ID: &id, WorkspaceID: ws}
	if v := r.URL.Query().Get("fields"); v != "" {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				opts.Fields = append(opts.Fields, f)
			}
		}
	}

	page, err := s.reader.Read(r.Context(), chi.URLParam(r, "table"), opts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if len(page.Records) == 0 {
		writeError(w, http.StatusNotFound, record.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, page.Records[0])
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspaceFor(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var parentID int64
	if v := r.URL.Query().Get("parent"); v != "" {
		parentID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid parent")
			return
		}
	}

	payload, ok := decodeBody(w, r)
	if !ok {
		return
	}

	res, err := s.writer.Create(r.Context(), chi.URLParam(r, "table"), parentID, payload, ws)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspaceFor(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	payload, ok := decodeBody(w, r)
	if !ok {
		return
	}

	res, err := s.writer.Update(r.Context(), chi.URLParam(r, "table"), id, payload, ws)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspaceFor(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	res, err := s.writer.Delete(r.Context(), chi.URLParam(r, "table"), id, ws)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspaceFor(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, workspaceResponse{WorkspaceID: ws})
}

func (s *Server) handleSwitchWorkspace(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(SessionHeader)
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing session token")
		return
	}

	var req workspaceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var ws int64
	var err error
	if req.Optimal {
		ws, err = s.sessions.SwitchToOptimal(r.Context(), token)
	} else {
		ws = req.WorkspaceID
		err = s.sessions.SetActiveWorkspace(r.Context(), token, ws)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, workspaceResponse{WorkspaceID: ws})
}

// pathID parses the {id} path segment
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return 0, false
	}
	return id, true
}

// decodeBody reads the request body into an ordered payload object
func decodeBody(w http.ResponseWriter, r *http.Request) (*value.Object, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return nil, false
	}
	payload := value.NewObject()
	if err := payload.UnmarshalJSON(body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return payload, true
}
