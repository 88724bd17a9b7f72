package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
)

// APIHandler serves the read-only JSON endpoints.
type APIHandler struct {
	service *app.QuizService
	logger  *zap.SugaredLogger
}

func NewAPIHandler(service *app.QuizService, logger *zap.SugaredLogger) *APIHandler {
	return &APIHandler{service: service, logger: logger}
}

// Register mounts the API and websocket routes on mux.
func Register(mux *http.ServeMux, api *APIHandler, ws *WSHandler) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/categories", api.Categories)
	mux.HandleFunc("/history", api.History)
	mux.HandleFunc("/ws", ws.ServeWS)
}

func (h *APIHandler) Categories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, http.StatusOK, h.service.Categories(r.Context()))
}

func (h *APIHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	results, err := h.service.History(r.Context(), r.URL.Query().Get("userId"))
	switch {
	case errors.Is(err, domain.ErrValidation):
		h.writeJSON(w, http.StatusBadRequest, errorPayload{Message: err.Error()})
	case err != nil:
		h.logger.Errorw("history lookup failed", "err", err)
		h.writeJSON(w, http.StatusBadGateway, errorPayload{Message: "history unavailable"})
	default:
		h.writeJSON(w, http.StatusOK, results)
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debugw("write response failed", "err", err)
	}
}
