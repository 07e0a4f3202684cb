package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"messengerdb/pkg/fanout"
	"messengerdb/pkg/reader"
	"messengerdb/pkg/store"
	"messengerdb/pkg/utils"
)

// Deps carries the write and read paths the handlers delegate to.
type Deps struct {
	Writer *fanout.Writer
	Reader *reader.Reader
}

// Register mounts all v1 endpoints onto r.
func Register(r *mux.Router, w *fanout.Writer, rd *reader.Reader) {
	d := &Deps{Writer: w, Reader: rd}

	r.HandleFunc("/users", d.createUser).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}", d.getUser).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/conversations", d.listConversations).Methods(http.MethodGet)

	r.HandleFunc("/conversations", d.createConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}", d.getConversation).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages", d.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", d.listMessages).Methods(http.MethodGet)
}

// writeError maps the error taxonomy onto HTTP statuses: invalid requests
// are 4xx and never retried, transient store failures surface as 503/504
// so clients retry with backoff (and the same client token).
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fanout.ErrInvalidRequest),
		errors.Is(err, reader.ErrBadCursor),
		errors.Is(err, store.ErrInvalidArgument):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fanout.ErrNotFound), errors.Is(err, reader.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrTimeout):
		utils.JSONError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		utils.JSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}
