package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/PromptForge/internal/models"
	"github.com/BTreeMap/PromptForge/internal/persona"
	"github.com/go-chi/chi/v5"
)

// indexResult describes the service at GET /.
type indexResult struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// templateList is the result of GET /api/templates.
type templateList struct {
	Templates []models.Template `json:"templates"`
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	endpoints := []string{
		"POST /api/chat",
		"GET /api/templates",
		"POST /api/templates",
		"GET /api/templates/{id}",
		"GET /api/conversations/{id}",
		"DELETE /api/conversations/{id}",
		"POST /api/conversations/{id}/reset",
		"GET /api/personas",
		"GET /health",
	}
	if s.webhook != nil {
		endpoints = append(endpoints, "POST /webhooks/twilio")
	}
	writeJSONResponse(w, http.StatusOK, models.Success(indexResult{
		Name:      "PromptForge API",
		Version:   serviceVersion,
		Endpoints: endpoints,
	}))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// chatHandler handles POST /api/chat.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	req.UserID = r.Header.Get(UserIDHeader)
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}

	resp, err := s.chat.HandleMessage(r.Context(), req)
	switch {
	case errors.Is(err, models.ErrEmptyMessage), errors.Is(err, models.ErrMessageTooLong):
		slog.Warn("Server.chatHandler: invalid request", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	case err != nil:
		slog.Error("Server.chatHandler: chat turn failed", "error", err, "conversationID", req.ConversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}
	slog.Debug("Server.chatHandler: turn completed", "conversationID", resp.ConversationID, "isQuestion", resp.IsQuestion)
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// listTemplatesHandler handles GET /api/templates.
func (s *Server) listTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(templateList{Templates: s.templates.List()}))
}

// getTemplateHandler handles GET /api/templates/{id}.
func (s *Server) getTemplateHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := s.templates.Get(id)
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Template not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(t))
}

// createTemplateHandler handles POST /api/templates. Existing ids are never replaced.
func (s *Server) createTemplateHandler(w http.ResponseWriter, r *http.Request) {
	var t models.Template
	if err := decodeJSON(w, r, &t); err != nil {
		slog.Warn("Server.createTemplateHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := t.Validate(); err != nil {
		slog.Warn("Server.createTemplateHandler: validation failed", "error", err, "templateID", t.ID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if !s.templates.Register(t) {
		writeJSONResponse(w, http.StatusConflict, models.Error("Template with this id already exists"))
		return
	}

	if err := s.st.SaveTemplate(t); err != nil {
		slog.Error("Server.createTemplateHandler: store write failed, template is live until restart", "error", err, "templateID", t.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to persist template"))
		return
	}
	if s.loader != nil {
		if err := s.loader.Save(t); err != nil {
			slog.Warn("Server.createTemplateHandler: failed to write template file", "error", err, "templateID", t.ID, "dir", s.loader.Dir())
		}
	}
	slog.Info("Server.createTemplateHandler: template registered", "templateID", t.ID, "questions", len(t.Questions))
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Template registered", t))
}

// listPersonasHandler handles GET /api/personas.
func (s *Server) listPersonasHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(persona.List()))
}
