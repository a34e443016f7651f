package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/centralauth/internal/domain/model"
)

// GlobalAccountRepository — доступ к таблице global_accounts.
type GlobalAccountRepository interface {
	// GetByName возвращает глобальный аккаунт по точному имени.
	GetByName(ctx context.Context, name string) (*model.GlobalAccount, error)
	// Create создаёт глобальный аккаунт. Заполняет ID и CreatedAt.
	Create(ctx context.Context, acc *model.GlobalAccount) error
}

// globalAccountRepo — реализация GlobalAccountRepository.
type globalAccountRepo struct {
	db DBTX
}

// NewGlobalAccountRepository создаёт репозиторий глобальных аккаунтов.
func NewGlobalAccountRepository(db DBTX) GlobalAccountRepository {
	return &globalAccountRepo{db: db}
}

func (r *globalAccountRepo) GetByName(ctx context.Context, name string) (*model.GlobalAccount, error) {
	query := `
		SELECT id, name, home_site, email, email_authenticated_at,
			locked, hidden, created_at
		FROM global_accounts
		WHERE name = $1`

	acc := &model.GlobalAccount{}
	var hidden string
	err := r.db.QueryRow(ctx, query, name).Scan(
		&acc.ID, &acc.Name, &acc.HomeSite, &acc.Email, &acc.EmailAuthenticatedAt,
		&acc.Locked, &hidden, &acc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения глобального аккаунта: %w", err)
	}
	acc.Hidden = model.HiddenLevel(hidden)
	return acc, nil
}

func (r *globalAccountRepo) Create(ctx context.Context, acc *model.GlobalAccount) error {
	query := `
		INSERT INTO global_accounts (name, home_site, email, email_authenticated_at, locked, hidden)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		acc.Name, acc.HomeSite, acc.Email, acc.EmailAuthenticatedAt,
		acc.Locked, string(acc.Hidden),
	).Scan(&acc.ID, &acc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: глобальный аккаунт %q уже существует", ErrConflict, acc.Name)
		}
		return fmt.Errorf("ошибка создания глобального аккаунта: %w", err)
	}
	return nil
}
