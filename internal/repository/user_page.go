package repository

import (
	"context"
	"fmt"
)

// UserPageRepository — проверка существования страниц пользователей на сайте.
type UserPageRepository interface {
	// ExistingPages возвращает множество имён из usernames, у которых есть
	// одноимённая страница пользователя на сайте. Один запрос на весь набор.
	ExistingPages(ctx context.Context, siteID string, usernames []string) (map[string]bool, error)
}

// userPageRepo — реализация UserPageRepository.
type userPageRepo struct {
	db DBTX
}

// NewUserPageRepository создаёт репозиторий страниц пользователей.
func NewUserPageRepository(db DBTX) UserPageRepository {
	return &userPageRepo{db: db}
}

func (r *userPageRepo) ExistingPages(ctx context.Context, siteID string, usernames []string) (map[string]bool, error) {
	result := make(map[string]bool, len(usernames))
	if len(usernames) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT username FROM user_pages WHERE site_id = $1 AND username = ANY($2)`,
		siteID, usernames)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки страниц пользователей: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ошибка сканирования страницы пользователя: %w", err)
		}
		result[name] = true
	}
	return result, rows.Err()
}
