package repository

// AccountStore выдаёт репозитории аккаунтов, привязанные к переданному DBTX.
// Позволяет сервису работать с одними и теми же репозиториями как через пул,
// так и внутри транзакции TxRunner.
type AccountStore interface {
	GlobalAccounts(db DBTX) GlobalAccountRepository
	LocalAccounts(db DBTX) LocalAccountRepository
}

// PostgresAccountStore — AccountStore поверх PostgreSQL.
type PostgresAccountStore struct{}

// NewAccountStore создаёт AccountStore для PostgreSQL.
func NewAccountStore() *PostgresAccountStore {
	return &PostgresAccountStore{}
}

// GlobalAccounts возвращает репозиторий глобальных аккаунтов.
func (s *PostgresAccountStore) GlobalAccounts(db DBTX) GlobalAccountRepository {
	return NewGlobalAccountRepository(db)
}

// LocalAccounts возвращает репозиторий локальных аккаунтов.
func (s *PostgresAccountStore) LocalAccounts(db DBTX) LocalAccountRepository {
	return NewLocalAccountRepository(db)
}
