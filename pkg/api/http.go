// Package api exposes the service boundary over HTTP: sendMessage,
// getMessages, getConversationsForUser, plus user/conversation records.
// Cursors are passed back to clients opaquely.
package api

import (
	"github.com/gorilla/mux"

	"messengerdb/pkg/api/handlers"
	"messengerdb/pkg/fanout"
	"messengerdb/pkg/reader"
	"messengerdb/pkg/telemetry"
)

// New builds the versioned API router.
func New(w *fanout.Writer, r *reader.Reader) *mux.Router {
	root := mux.NewRouter()
	root.Use(telemetry.Middleware)
	v1 := root.PathPrefix("/v1").Subrouter()
	handlers.Register(v1, w, r)
	return root
}
