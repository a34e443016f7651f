// handler.go — основной обработчик HTTP API и таблица маршрутов.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/centralauth/internal/service"
)

// DirectoryService — постраничный каталог глобальных аккаунтов.
type DirectoryService interface {
	Page(ctx context.Context, req service.PageRequest, rc service.RenderContext) (*service.DirectoryPage, error)
	Groups(ctx context.Context) ([]string, error)
}

// Translator — локализация сообщений об ошибках.
type Translator interface {
	Translate(lang, key string) string
}

// APIHandler — основной обработчик API.
type APIHandler struct {
	health    *HealthHandler
	directory DirectoryService
	messages  Translator
	site      string
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// site — идентификатор обслуживающего сайта для оценки наборов сайтов.
func NewAPIHandler(
	health *HealthHandler,
	directory DirectoryService,
	messages Translator,
	site string,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:    health,
		directory: directory,
		messages:  messages,
		site:      site,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// Routes регистрирует маршруты API на роутере.
func (h *APIHandler) Routes(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/global-users", h.ListGlobalUsers)
		r.Get("/global-groups", h.ListGlobalGroups)
	})
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
