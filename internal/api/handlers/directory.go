// directory.go — обработчики каталога глобальных аккаунтов.
// GET /api/v1/global-users — страница каталога
// GET /api/v1/global-groups — список глобальных групп
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/centralauth/internal/api/errors"
	"github.com/bigkaa/centralauth/internal/i18n"
	"github.com/bigkaa/centralauth/internal/service"
)

// Ключи сообщений об ошибках.
const (
	msgErrorInternal   = "error.internal"
	msgErrorValidation = "error.validation"
)

// groupsResponse — ответ списка глобальных групп.
type groupsResponse struct {
	Groups []string `json:"groups"`
}

// ListGlobalUsers — страница каталога.
// Параметры: group, username, desc, limit, offset, dir=prev.
func (h *APIHandler) ListGlobalUsers(w http.ResponseWriter, r *http.Request) {
	lang := i18n.LangFromContext(r.Context())

	req, err := parsePageRequest(r)
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("%s: %v", h.messages.Translate(lang, msgErrorValidation), err))
		return
	}

	page, err := h.directory.Page(r.Context(), req, service.RenderContext{Site: h.site, Lang: lang})
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, h.messages.Translate(lang, msgErrorValidation))
			return
		}
		h.logger.Error("Ошибка построения страницы каталога",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, h.messages.Translate(lang, msgErrorInternal))
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// ListGlobalGroups — список всех глобальных групп.
func (h *APIHandler) ListGlobalGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.directory.Groups(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения списка глобальных групп",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, h.messages.Translate(i18n.LangFromContext(r.Context()), msgErrorInternal))
		return
	}
	if groups == nil {
		groups = []string{}
	}
	writeJSON(w, http.StatusOK, groupsResponse{Groups: groups})
}

// parsePageRequest разбирает параметры запроса страницы.
func parsePageRequest(r *http.Request) (service.PageRequest, error) {
	q := r.URL.Query()
	req := service.PageRequest{
		Group:    q.Get("group"),
		Username: q.Get("username"),
		Offset:   q.Get("offset"),
	}

	if v := q.Get("desc"); v != "" {
		desc, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("desc: ожидается булево значение, получено %q", v)
		}
		req.Desc = desc
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return req, fmt.Errorf("limit: ожидается неотрицательное целое, получено %q", v)
		}
		req.Limit = limit
	}

	switch dir := q.Get("dir"); dir {
	case "", "next":
	case "prev":
		if req.Offset == "" {
			return req, errors.New("dir=prev требует offset")
		}
		req.Backwards = true
	default:
		return req, fmt.Errorf("dir: допустимые значения next, prev; получено %q", dir)
	}

	return req, nil
}
