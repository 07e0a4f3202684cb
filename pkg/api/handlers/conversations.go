package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"messengerdb/pkg/utils"
)

type createConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
}

// createConversation handles POST /v1/conversations. Two-party requests
// are deduplicated: an existing conversation for the pair is returned
// instead of creating a duplicate.
func (d *Deps) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	conv, err := d.Writer.CreateConversation(r.Context(), req.ParticipantIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, conv)
}

func (d *Deps) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := d.Reader.Conversation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, conv)
}

// listConversations handles GET /v1/users/{id}/conversations: the user's
// conversation list ordered by most recent activity, cursor-paginated.
func (d *Deps) listConversations(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	page, err := d.Reader.ConversationsForUser(r.Context(), userID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, page)
}
