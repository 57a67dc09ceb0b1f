package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/PromptForge/internal/flow"
	"github.com/BTreeMap/PromptForge/internal/models"
	"github.com/go-chi/chi/v5"
)

// getConversationHandler handles GET /api/conversations/{id}.
func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, err := s.chat.Conversation(id)
	if s.conversationError(w, err, id, "Failed to load conversation") {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(conv))
}

// resetConversationHandler handles POST /api/conversations/{id}/reset.
func (s *Server) resetConversationHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.chat.ResetConversation(id)
	if s.conversationError(w, err, id, "Failed to reset conversation") {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Conversation reset successfully", nil))
}

// deleteConversationHandler handles DELETE /api/conversations/{id}.
func (s *Server) deleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.chat.DeleteConversation(id)
	if s.conversationError(w, err, id, "Failed to delete conversation") {
		return
	}
	slog.Info("Server.deleteConversationHandler: conversation deleted", "conversationID", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Conversation deleted successfully", nil))
}

// conversationError writes the error response for err and reports whether it did.
func (s *Server) conversationError(w http.ResponseWriter, err error, id, failure string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, flow.ErrConversationNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
	default:
		slog.Error("Server: conversation operation failed", "error", err, "conversationID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(failure))
	}
	return true
}
