package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/snaplist/snaplist/internal/models"
)

// messageRequest is the body of POST /v1/messages, the web-chat channel
// into the dialogue engine.
type messageRequest struct {
	SenderID  string   `json:"sender_id"`
	Text      string   `json:"text"`
	MediaRefs []string `json:"media_refs,omitempty"`
}

// draftView is the inspection shape returned by GET /v1/drafts.
type draftView struct {
	Draft *models.Draft `json:"draft"`
	Facts []models.Fact `json:"facts,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}

// messagesHandler drives one conversation turn over HTTP. The reply is
// returned synchronously instead of being pushed through a channel.
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}
	if req.SenderID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("sender_id is required"))
		return
	}
	if req.Text == "" && len(req.MediaRefs) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("text or media_refs is required"))
		return
	}

	reply, err := s.engine.HandleMessage(r.Context(), req.SenderID, req.Text, req.MediaRefs)
	if err != nil {
		slog.Error("messagesHandler engine error", "error", err, "sender", req.SenderID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to process message"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(reply))
}

// draftsHandler returns the active draft and its facts for a user, keyed by
// the channel identity (phone number or web sender ID).
func (s *Server) draftsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}

	channelID := r.URL.Query().Get("user")
	if channelID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user query parameter is required"))
		return
	}

	user, err := s.store.GetOrCreateUser(channelID)
	if err != nil {
		slog.Error("draftsHandler failed to resolve user", "error", err, "user", channelID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to resolve user"))
		return
	}
	draft, err := s.store.GetActiveDraft(user.ID)
	if err != nil {
		slog.Error("draftsHandler failed to load draft", "error", err, "userID", user.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to load draft"))
		return
	}
	if draft == nil {
		writeJSONResponse(w, http.StatusOK, models.Success(draftView{}))
		return
	}

	facts, err := s.store.GetFacts(draft.ID)
	if err != nil {
		slog.Error("draftsHandler failed to load facts", "error", err, "draftID", draft.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to load facts"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(draftView{Draft: draft, Facts: facts}))
}

// writeJSONResponse writes a JSON API response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("writeJSONResponse failed to encode response", "error", err)
	}
}
