package repository

import (
	"context"
	"fmt"
	"time"
)

// ReplicationRepository — состояние репликации хранилища.
type ReplicationRepository interface {
	// ReplicaLag возвращает отставание воспроизведения WAL на реплике.
	// На primary всегда 0.
	ReplicaLag(ctx context.Context) (time.Duration, error)
}

// replicationRepo — реализация ReplicationRepository.
type replicationRepo struct {
	db DBTX
}

// NewReplicationRepository создаёт репозиторий состояния репликации.
// db должен указывать на реплику, отставание которой проверяется.
func NewReplicationRepository(db DBTX) ReplicationRepository {
	return &replicationRepo{db: db}
}

// replicaLagQuery возвращает признак полной синхронизации и возраст
// последней воспроизведённой транзакции. При простое primary возраст растёт
// и на догнавшей реплике, поэтому синхронизация проверяется по LSN.
const replicaLagQuery = `
	SELECT
		NOT pg_is_in_recovery()
			OR COALESCE(pg_last_wal_receive_lsn() = pg_last_wal_replay_lsn(), false),
		COALESCE(EXTRACT(EPOCH FROM now() - pg_last_xact_replay_timestamp()), 0)::float8`

func (r *replicationRepo) ReplicaLag(ctx context.Context) (time.Duration, error) {
	var (
		caughtUp bool
		seconds  float64
	)
	if err := r.db.QueryRow(ctx, replicaLagQuery).Scan(&caughtUp, &seconds); err != nil {
		return 0, fmt.Errorf("ошибка получения отставания реплики: %w", err)
	}
	return lagFromReplay(caughtUp, seconds), nil
}

// lagFromReplay переводит результат запроса в отставание.
func lagFromReplay(caughtUp bool, seconds float64) time.Duration {
	if caughtUp || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
