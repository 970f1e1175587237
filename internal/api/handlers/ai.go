package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/medly/go-clinic/internal/ai"
)

// AIHandler exposes the issue classifiers directly. The same urgency and
// specialty models drive the delete-schedule cascade; the chat endpoint is a
// free-form assistant on the same backend.
type AIHandler struct {
	urgency   ai.Classifier
	specialty ai.Classifier
	chat      ai.Classifier
	logger    *zap.Logger
}

// NewAIHandler creates a new handler
func NewAIHandler(urgency, specialty, chat ai.Classifier, logger *zap.Logger) *AIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AIHandler{urgency: urgency, specialty: specialty, chat: chat, logger: logger}
}

// Routes returns the handler routes
func (h *AIHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Put("/ask", h.Ask)
	r.Put("/find-doctor", h.FindDoctor)
	r.Put("/chat", h.Chat)
	return r
}

// Ask handles PUT /ai/ask
func (h *AIHandler) Ask(w http.ResponseWriter, r *http.Request) {
	h.classify(w, r, h.urgency, "urgency")
}

// FindDoctor handles PUT /ai/find-doctor
func (h *AIHandler) FindDoctor(w http.ResponseWriter, r *http.Request) {
	h.classify(w, r, h.specialty, "specialty")
}

// Chat handles PUT /ai/chat
func (h *AIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	h.classify(w, r, h.chat, "reply")
}

func (h *AIHandler) classify(w http.ResponseWriter, r *http.Request, c ai.Classifier, field string) {
	var req struct {
		Issue string `json:"issue"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Issue) == "" {
		jsonError(w, "issue is required", http.StatusBadRequest)
		return
	}

	answer, err := c.Classify(r.Context(), req.Issue)
	if errors.Is(err, ai.ErrDisabled) {
		jsonError(w, "ai assistance is not configured", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		h.logger.Error("model call failed", zap.String("field", field), zap.Error(err))
		jsonError(w, "model call failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{field: answer})
}
