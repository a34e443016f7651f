package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/bigkaa/centralauth/internal/domain/model"
)

// DirectoryParams — параметры выборки каталога глобальных аккаунтов.
// Поля-указатели: nil = фильтр не применяется.
type DirectoryParams struct {
	// Site — обслуживающий сайт (для признака привязки)
	Site string
	// Group — только аккаунты, состоящие в группе
	Group *string
	// UsernameFrom — только имена, не меньшие указанного
	UsernameFrom *string
	// Desc — сортировка по имени по убыванию
	Desc bool
	// Cursor — имя-граница keyset-пагинации (исключается из выборки)
	Cursor *string
	// Backwards — выборка страницы перед курсором
	Backwards bool
	// Limit — количество строк
	Limit int
}

// DirectoryRepository — агрегированные read-only запросы каталога.
type DirectoryRepository interface {
	// Query возвращает по одной строке на имя: признаки блокировки и привязки,
	// список глобальных групп. Порядок строк всегда соответствует Desc,
	// в том числе при Backwards.
	Query(ctx context.Context, params DirectoryParams) ([]*model.DirectoryRow, error)
	// ListGroups возвращает имена всех глобальных групп по алфавиту.
	ListGroups(ctx context.Context) ([]string, error)
}

// directoryRepo — реализация DirectoryRepository через pgx.
type directoryRepo struct {
	db DBTX
}

// NewDirectoryRepository создаёт репозиторий каталога.
func NewDirectoryRepository(db DBTX) DirectoryRepository {
	return &directoryRepo{db: db}
}

func (r *directoryRepo) Query(ctx context.Context, params DirectoryParams) ([]*model.DirectoryRow, error) {
	// $1 занят обслуживающим сайтом в LEFT JOIN
	where, args := buildDirectoryWhere(params, 2)
	args = append([]any{params.Site}, args...)
	argNum := len(args) + 1

	descending := scanDescending(params)

	query := fmt.Sprintf(`
		SELECT ga.id, ga.name,
			bool_or(ga.locked),
			COALESCE(bool_or(la.attached_method IS NOT NULL), false),
			COALESCE(array_agg(DISTINCT gm.group_name ORDER BY gm.group_name)
				FILTER (WHERE gm.group_name IS NOT NULL), '{}')
		FROM global_accounts ga
		LEFT JOIN local_accounts la
			ON la.username = ga.name AND la.site_id = $1
		LEFT JOIN global_group_members gm
			ON gm.account_id = ga.id
		%s
		GROUP BY ga.id, ga.name
		%s
		LIMIT $%d`, where, buildDirectoryOrderBy(descending), argNum)
	args = append(args, params.Limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки каталога: %w", err)
	}
	defer rows.Close()

	result := make([]*model.DirectoryRow, 0, params.Limit)
	for rows.Next() {
		row := &model.DirectoryRow{}
		if err := rows.Scan(&row.ID, &row.Name, &row.Locked, &row.Attached, &row.Groups); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки каталога: %w", err)
		}
		if row.Groups == nil {
			row.Groups = []string{}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации каталога: %w", err)
	}

	// Страница «назад» выбирается в обратном порядке
	if params.Backwards {
		for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
			result[i], result[j] = result[j], result[i]
		}
	}
	return result, nil
}

func (r *directoryRepo) ListGroups(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT group_name FROM global_group_members ORDER BY group_name`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка групп: %w", err)
	}
	defer rows.Close()

	groups := []string{}
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("ошибка сканирования группы: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// scanDescending возвращает фактическое направление сканирования индекса:
// при Backwards оно противоположно запрошенному.
func scanDescending(params DirectoryParams) bool {
	return params.Desc != params.Backwards
}

// buildDirectoryWhere строит WHERE-условие выборки каталога.
// startArg — номер первого $-параметра (для корректной нумерации).
//
// Скрытые аккаунты (hidden != '') в каталог не попадают никогда.
func buildDirectoryWhere(params DirectoryParams, startArg int) (whereClause string, args []any) {
	conditions := []string{"ga.hidden = ''"}
	argNum := startArg

	// Фильтр по группе: EXISTS, чтобы агрегат показывал все группы аккаунта
	if params.Group != nil && *params.Group != "" {
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM global_group_members f WHERE f.account_id = ga.id AND f.group_name = $%d)",
			argNum))
		args = append(args, *params.Group)
		argNum++
	}

	// Нижняя граница имени
	if params.UsernameFrom != nil && *params.UsernameFrom != "" {
		conditions = append(conditions, fmt.Sprintf("ga.name >= $%d", argNum))
		args = append(args, *params.UsernameFrom)
		argNum++
	}

	// Keyset-курсор
	if params.Cursor != nil && *params.Cursor != "" {
		op := ">"
		if scanDescending(params) {
			op = "<"
		}
		conditions = append(conditions, fmt.Sprintf("ga.name %s $%d", op, argNum))
		args = append(args, *params.Cursor)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// buildDirectoryOrderBy строит ORDER BY по имени в заданном направлении.
func buildDirectoryOrderBy(descending bool) string {
	if descending {
		return "ORDER BY ga.name DESC"
	}
	return "ORDER BY ga.name ASC"
}
