package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/centralauth/internal/domain/model"
)

// WikisetRepository — чтение ограничений глобальных групп наборами сайтов.
type WikisetRepository interface {
	// RestrictionsForGroups возвращает политику для каждой группы, у которой
	// она задана. Группы без ограничения в результат не попадают.
	RestrictionsForGroups(ctx context.Context, groups []string) (map[string]*model.Wikiset, error)
}

// wikisetRepo — реализация WikisetRepository.
type wikisetRepo struct {
	db DBTX
}

// NewWikisetRepository создаёт репозиторий наборов сайтов.
func NewWikisetRepository(db DBTX) WikisetRepository {
	return &wikisetRepo{db: db}
}

func (r *wikisetRepo) RestrictionsForGroups(ctx context.Context, groups []string) (map[string]*model.Wikiset, error) {
	result := make(map[string]*model.Wikiset, len(groups))
	if len(groups) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT r.group_name, w.id, w.name, w.type, w.sites
		FROM global_group_restrictions r
		JOIN wikisets w ON w.id = r.wikiset_id
		WHERE r.group_name = ANY($1)`, groups)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ограничений групп: %w", err)
	}
	defer rows.Close()

	// Один набор может ограничивать несколько групп
	byID := make(map[int64]*model.Wikiset)
	for rows.Next() {
		var group, typ string
		ws := &model.Wikiset{}
		if err := rows.Scan(&group, &ws.ID, &ws.Name, &typ, &ws.Sites); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ограничения: %w", err)
		}
		wsType, err := model.ParseWikisetType(typ)
		if err != nil {
			return nil, fmt.Errorf("набор сайтов %d: %w", ws.ID, err)
		}
		if existing, ok := byID[ws.ID]; ok {
			result[group] = existing
			continue
		}
		ws.Type = wsType
		byID[ws.ID] = ws
		result[group] = ws
	}
	return result, rows.Err()
}
