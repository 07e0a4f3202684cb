package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"messengerdb/pkg/utils"
)

type sendMessageRequest struct {
	SenderID    string `json:"sender_id"`
	Text        string `json:"text"`
	ClientToken string `json:"client_token"`
}

// sendMessage handles POST /v1/conversations/{id}/messages. The client
// token is mandatory; retrying with the same token returns the original
// message. A send is reported created once the log write succeeded, even
// when summary fanout was handed to repair.
func (d *Deps) sendMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	msg, err := d.Writer.SendMessage(r.Context(), conversationID, req.SenderID, req.Text, req.ClientToken)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, msg)
}

// listMessages handles GET /v1/conversations/{id}/messages with opaque
// cursor pagination, newest first. A `before` timestamp (ns) restricts
// the page to strictly older messages. An empty page is a valid response.
func (d *Deps) listMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	var before int64
	if s := q.Get("before"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		before = n
	}
	page, err := d.Reader.Messages(r.Context(), conversationID, q.Get("cursor"), before, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, page)
}
