package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"messengerdb/pkg/utils"
)

type createUserRequest struct {
	Username string `json:"username"`
}

func (d *Deps) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	u, err := d.Writer.CreateUser(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, u)
}

func (d *Deps) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := d.Reader.User(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, u)
}
