package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bigkaa/centralauth/internal/domain/model"
)

// LocalAccountRepository — доступ к таблице local_accounts.
type LocalAccountRepository interface {
	// ListByUsername возвращает все локальные аккаунты имени, упорядоченные по сайту.
	ListByUsername(ctx context.Context, username string) ([]*model.LocalAccount, error)
	// ListUnattached возвращает непривязанные локальные аккаунты имени, упорядоченные по сайту.
	ListUnattached(ctx context.Context, username string) ([]*model.LocalAccount, error)
	// Attach помечает локальный аккаунт как привязанный.
	// Возвращает ErrNotFound, если аккаунта нет или он уже привязан.
	Attach(ctx context.Context, siteID, username string, method model.AttachMethod, at time.Time) error
}

// localAccountRepo — реализация LocalAccountRepository.
type localAccountRepo struct {
	db DBTX
}

// NewLocalAccountRepository создаёт репозиторий локальных аккаунтов.
func NewLocalAccountRepository(db DBTX) LocalAccountRepository {
	return &localAccountRepo{db: db}
}

const localAccountColumns = `site_id, username, email, email_authenticated_at,
	attached_method, attached_at, edit_count, registered_at`

func (r *localAccountRepo) ListByUsername(ctx context.Context, username string) ([]*model.LocalAccount, error) {
	query := `SELECT ` + localAccountColumns + `
		FROM local_accounts
		WHERE username = $1
		ORDER BY site_id`
	return r.list(ctx, query, username)
}

func (r *localAccountRepo) ListUnattached(ctx context.Context, username string) ([]*model.LocalAccount, error) {
	query := `SELECT ` + localAccountColumns + `
		FROM local_accounts
		WHERE username = $1 AND attached_method IS NULL
		ORDER BY site_id`
	return r.list(ctx, query, username)
}

func (r *localAccountRepo) list(ctx context.Context, query, username string) ([]*model.LocalAccount, error) {
	rows, err := r.db.Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения локальных аккаунтов: %w", err)
	}
	defer rows.Close()

	var result []*model.LocalAccount
	for rows.Next() {
		acc := &model.LocalAccount{}
		var method *string
		if err := rows.Scan(
			&acc.SiteID, &acc.Username, &acc.Email, &acc.EmailAuthenticatedAt,
			&method, &acc.AttachedAt, &acc.EditCount, &acc.RegisteredAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования локального аккаунта: %w", err)
		}
		if method != nil {
			m, err := model.ParseAttachMethod(*method)
			if err != nil {
				return nil, fmt.Errorf("локальный аккаунт %s@%s: %w", acc.Username, acc.SiteID, err)
			}
			acc.AttachedMethod = &m
		}
		result = append(result, acc)
	}
	return result, rows.Err()
}

func (r *localAccountRepo) Attach(ctx context.Context, siteID, username string, method model.AttachMethod, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE local_accounts
		SET attached_method = $3, attached_at = $4
		WHERE site_id = $1 AND username = $2 AND attached_method IS NULL`,
		siteID, username, string(method), at,
	)
	if err != nil {
		return fmt.Errorf("ошибка привязки локального аккаунта %s@%s: %w", username, siteID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: непривязанный аккаунт %s@%s", ErrNotFound, username, siteID)
	}
	return nil
}
