package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/liaosvcaf/explain-selection-with-ai/internal/notes"
)

type noteRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func decodeNoteRequest(w http.ResponseWriter, r *http.Request) (noteRequest, bool) {
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return noteRequest{}, false
	}
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, "content is required")
		return noteRequest{}, false
	}
	return req, true
}

// HandleSaveNote creates the note when its name is free. A name collision is
// reported as a conflict so the client can ask the user whether to append or
// create a numbered variant.
func (h *Handler) HandleSaveNote(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeNoteRequest(w, r)
	if !ok {
		return
	}

	name := notes.SanitizeFileName(req.Name)
	res, err := h.notes.Save(name, req.Content)
	if err != nil {
		respondNoteError(w, err)
		return
	}

	if res.Decision == notes.DecisionNeedsChoice {
		respondJSON(w, http.StatusConflict, map[string]string{
			"decision":      string(res.Decision),
			"existing_path": res.ExistingPath,
		})
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"decision": string(res.Decision),
		"path":     res.Path,
	})
}

// HandleAppendNote appends onto an existing note, separator included.
func (h *Handler) HandleAppendNote(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeNoteRequest(w, r)
	if !ok {
		return
	}

	path, err := h.notes.Append(notes.SanitizeFileName(req.Name), req.Content)
	if err != nil {
		respondNoteError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"path": path})
}

// HandleNumberedNote creates the first free "<name> N.md" variant.
func (h *Handler) HandleNumberedNote(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeNoteRequest(w, r)
	if !ok {
		return
	}

	path, err := h.notes.CreateNumbered(notes.SanitizeFileName(req.Name), req.Content)
	if err != nil {
		respondNoteError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"path": path})
}

func respondNoteError(w http.ResponseWriter, err error) {
	var perr *notes.PersistenceError
	if errors.As(err, &perr) && perr.Op == "read" {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
