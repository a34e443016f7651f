// directory.go — постраничный каталог глобальных аккаунтов.
//
// DirectoryPager.Page:
//  1. Нормализует размер страницы и запрашивает limit+1 строк для
//     определения наличия следующей страницы
//  2. Одним запросом проверяет страницы пользователей на сайте
//  3. Одним запросом получает ограничения всех групп страницы и один раз
//     на страницу вычисляет действие каждой группы на сайте
//  4. Формирует строку отображения для каждого аккаунта
//
// Prometheus-метрики:
//   - ca_directory_page_duration_seconds — длительность построения страницы
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/centralauth/internal/domain/model"
	"github.com/bigkaa/centralauth/internal/repository"
)

var directoryPageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "ca_directory_page_duration_seconds",
	Help:    "Длительность построения страницы каталога глобальных аккаунтов",
	Buckets: prometheus.DefBuckets,
})

// Ключи сообщений строки каталога.
const (
	msgItem            = "directory.item"
	msgLocked          = "directory.locked"
	msgAttached        = "directory.attached"
	msgNoLocal         = "directory.nolocal"
	msgGroupNotApplied = "directory.group_not_applied"
)

// Translator — источник локализованных сообщений.
type Translator interface {
	Translate(lang, key string) string
	Translatef(lang, key string, args ...any) string
	CommaList(lang string, items []string) string
	ListToText(lang string, items []string) string
}

// ScopeEvaluator — проверка действия набора сайтов на сайте.
type ScopeEvaluator interface {
	InScope(policy *model.Wikiset, siteID string) bool
}

// PageRequest — параметры запрошенной страницы каталога.
type PageRequest struct {
	// Group — фильтр по глобальной группе (пусто — все)
	Group string
	// Username — начать с имени (пусто — с начала)
	Username string
	// Desc — сортировка по убыванию
	Desc bool
	// Limit — размер страницы (0 — по умолчанию)
	Limit int
	// Offset — курсор страницы (имя-граница)
	Offset string
	// Backwards — страница перед курсором
	Backwards bool
}

// RenderContext — обслуживающий сайт и язык отображения.
type RenderContext struct {
	Site string
	Lang string
}

// DirectoryGroup — глобальная группа в строке каталога.
// Restricted = false: у группы нет набора сайтов, она действует везде.
type DirectoryGroup struct {
	Name       string `json:"name"`
	InScope    bool   `json:"in_scope"`
	Restricted bool   `json:"restricted"`
}

// DirectoryEntry — строка каталога, готовая к отображению.
type DirectoryEntry struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Locked      bool             `json:"locked"`
	Attached    bool             `json:"attached"`
	HasUserPage bool             `json:"has_user_page"`
	Groups      []DirectoryGroup `json:"groups"`
	Display     string           `json:"display"`
}

// DirectoryPage — страница каталога.
type DirectoryPage struct {
	Entries    []*DirectoryEntry `json:"entries"`
	Limit      int               `json:"limit"`
	NextOffset string            `json:"next_offset,omitempty"`
	PrevOffset string            `json:"prev_offset,omitempty"`
}

// DirectoryPager — постраничный вывод каталога глобальных аккаунтов.
// Безопасен для параллельного использования: состояние страницы локально
// для вызова Page, кэш наборов потокобезопасен.
type DirectoryPager struct {
	directory    repository.DirectoryRepository
	wikisets     repository.WikisetRepository
	userPages    repository.UserPageRepository
	scope        ScopeEvaluator
	messages     Translator
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
}

// NewDirectoryPager создаёт постраничный каталог.
func NewDirectoryPager(
	directory repository.DirectoryRepository,
	wikisets repository.WikisetRepository,
	userPages repository.UserPageRepository,
	scope ScopeEvaluator,
	messages Translator,
	defaultLimit, maxLimit int,
	logger *slog.Logger,
) *DirectoryPager {
	return &DirectoryPager{
		directory:    directory,
		wikisets:     wikisets,
		userPages:    userPages,
		scope:        scope,
		messages:     messages,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		logger:       logger.With(slog.String("component", "directory_pager")),
	}
}

// Page строит страницу каталога.
func (p *DirectoryPager) Page(ctx context.Context, req PageRequest, rc RenderContext) (*DirectoryPage, error) {
	if rc.Site == "" {
		return nil, fmt.Errorf("%w: не задан обслуживающий сайт", ErrValidation)
	}
	start := time.Now()
	defer func() { directoryPageDuration.Observe(time.Since(start).Seconds()) }()

	limit := p.normalizeLimit(req.Limit)
	params := repository.DirectoryParams{
		Site:         rc.Site,
		Group:        optional(req.Group),
		UsernameFrom: optional(req.Username),
		Desc:         req.Desc,
		Cursor:       optional(req.Offset),
		Backwards:    req.Backwards,
		Limit:        limit + 1,
	}

	rows, err := p.directory.Query(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("выборка каталога: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		if req.Backwards {
			// Лишняя строка при обратной выборке — самая дальняя, т.е. первая
			rows = rows[1:]
		} else {
			rows = rows[:limit]
		}
	}

	page := &DirectoryPage{Entries: make([]*DirectoryEntry, 0, len(rows)), Limit: limit}
	if len(rows) == 0 {
		return page, nil
	}

	first, last := rows[0].Name, rows[len(rows)-1].Name
	if req.Backwards {
		if hasMore {
			page.PrevOffset = first
		}
		page.NextOffset = last
	} else {
		if hasMore {
			page.NextOffset = last
		}
		if req.Offset != "" {
			page.PrevOffset = first
		}
	}

	pages, scopes, err := p.batchLookups(ctx, rows, rc.Site)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		page.Entries = append(page.Entries, p.formatRow(row, pages[row.Name], scopes, rc.Lang))
	}

	p.logger.Debug("Страница каталога построена",
		slog.String("site", rc.Site),
		slog.Int("rows", len(page.Entries)),
		slog.Bool("has_more", hasMore),
	)
	return page, nil
}

// Groups возвращает имена всех глобальных групп.
func (p *DirectoryPager) Groups(ctx context.Context) ([]string, error) {
	groups, err := p.directory.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("список глобальных групп: %w", err)
	}
	return groups, nil
}

// batchLookups выполняет пакетные запросы для всей страницы: существование
// страниц пользователей и действие групп на сайте.
func (p *DirectoryPager) batchLookups(
	ctx context.Context,
	rows []*model.DirectoryRow,
	site string,
) (pages map[string]bool, scopes map[string]DirectoryGroup, err error) {
	names := make([]string, 0, len(rows))
	seen := make(map[string]bool)
	var groups []string
	for _, row := range rows {
		names = append(names, row.Name)
		for _, g := range row.Groups {
			if !seen[g] {
				seen[g] = true
				groups = append(groups, g)
			}
		}
	}

	pages, err = p.userPages.ExistingPages(ctx, site, names)
	if err != nil {
		return nil, nil, fmt.Errorf("проверка страниц пользователей: %w", err)
	}

	scopes = make(map[string]DirectoryGroup, len(groups))
	if len(groups) == 0 {
		return pages, scopes, nil
	}

	restrictions, err := p.wikisets.RestrictionsForGroups(ctx, groups)
	if err != nil {
		return nil, nil, fmt.Errorf("ограничения глобальных групп: %w", err)
	}
	for _, g := range groups {
		policy, restricted := restrictions[g]
		// Группа без ограничения действует на всех сайтах
		scopes[g] = DirectoryGroup{
			Name:       g,
			InScope:    !restricted || p.scope.InScope(policy, site),
			Restricted: restricted,
		}
	}
	return pages, scopes, nil
}

// formatRow формирует строку каталога: имя, затем через запятую признак
// блокировки, признак привязки (или «нет локального аккаунта» первым)
// и перечисление групп.
func (p *DirectoryPager) formatRow(
	row *model.DirectoryRow,
	hasUserPage bool,
	scopes map[string]DirectoryGroup,
	lang string,
) *DirectoryEntry {
	entry := &DirectoryEntry{
		ID:          row.ID,
		Name:        row.Name,
		Locked:      row.Locked,
		Attached:    row.Attached,
		HasUserPage: hasUserPage,
		Groups:      make([]DirectoryGroup, 0, len(row.Groups)),
	}

	var info []string
	if row.Locked {
		info = append(info, p.messages.Translate(lang, msgLocked))
	}
	if row.Attached {
		info = append(info, p.messages.Translate(lang, msgAttached))
	} else {
		info = append([]string{p.messages.Translate(lang, msgNoLocal)}, info...)
	}

	if len(row.Groups) > 0 {
		texts := make([]string, 0, len(row.Groups))
		for _, g := range row.Groups {
			group := scopes[g]
			group.Name = g
			entry.Groups = append(entry.Groups, group)
			if group.InScope {
				texts = append(texts, g)
			} else {
				texts = append(texts, p.messages.Translatef(lang, msgGroupNotApplied, g))
			}
		}
		info = append(info, p.messages.ListToText(lang, texts))
	}

	entry.Display = p.messages.Translatef(lang, msgItem, row.Name, p.messages.CommaList(lang, info))
	return entry
}

// normalizeLimit приводит размер страницы к допустимому диапазону.
func (p *DirectoryPager) normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return p.defaultLimit
	case limit > p.maxLimit:
		return p.maxLimit
	default:
		return limit
	}
}

// optional возвращает указатель на непустую строку или nil.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
