// migration.go — пакетное объединение аккаунтов по списку имён.
//
// MigrationRunner.Run последовательно (без параллелизма) передаёт каждое
// корректное имя из списка в Reconciler и после каждых BatchSize
// обработанных имён ждёт, пока реплики догонят primary.
//
// Prometheus-метрики:
//   - ca_migration_processed_total — обработанные имена
//   - ca_migration_skipped_lines_total — пропущенные некорректные строки
//   - ca_migration_failed_total — имена, обработка которых завершилась сбоем
//   - ca_migration_replica_wait_duration_seconds — длительность ожидания реплик
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/centralauth/internal/domain/migration"
)

// Prometheus-метрики пакетного объединения.
var (
	migrationProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ca_migration_processed_total",
		Help: "Количество обработанных имён пользователей",
	})

	migrationSkippedLinesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ca_migration_skipped_lines_total",
		Help: "Количество пропущенных некорректных строк списка",
	})

	migrationFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ca_migration_failed_total",
		Help: "Количество имён, обработка которых завершилась сбоем",
	})

	replicaWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ca_migration_replica_wait_duration_seconds",
		Help:    "Длительность ожидания реплик между пакетами",
		Buckets: prometheus.DefBuckets,
	})
)

// reportTimeFormat — формат отметки времени в итоговом отчёте.
const reportTimeFormat = "2006-01-02 15:04:05"

// AccountReconciler — обработка одного имени пользователя.
type AccountReconciler interface {
	Reconcile(ctx context.Context, req MigrationRequest) (*MigrationOutcome, error)
}

// ReplicaWaiter — ожидание, пока отставание реплик не станет допустимым.
type ReplicaWaiter interface {
	WaitForReplicas(ctx context.Context) error
}

// RunOptions — параметры пакетного прохода.
type RunOptions struct {
	Safe          bool
	AutoMigrate   bool
	AttachMissing bool
	// BatchSize — число обработанных имён между ожиданиями реплик
	BatchSize int
}

// Report — итог пакетного прохода.
type Report struct {
	// RunID — идентификатор прохода в логах
	RunID string
	// FinishedAt — время формирования отчёта
	FinishedAt time.Time
	// Elapsed — длительность прохода
	Elapsed time.Duration
	// Total — обработанные корректные строки
	Total int
	// Merged — полностью объединённые имена
	Merged int
	// Rate — имён в секунду
	Rate float64
	// Percent — доля полностью объединённых имён
	Percent float64
}

// String возвращает строку отчёта.
func (r *Report) String() string {
	return fmt.Sprintf("%s processed %d usernames (%.1f/sec), %d (%.1f%%) fully migrated",
		r.FinishedAt.Format(reportTimeFormat), r.Total, r.Rate, r.Merged, r.Percent)
}

// MigrationRunner — пакетный проход объединения аккаунтов.
type MigrationRunner struct {
	reconciler AccountReconciler
	waiter     ReplicaWaiter
	opts       RunOptions
	logger     *slog.Logger
	now        func() time.Time
}

// NewMigrationRunner создаёт пакетный проход.
// BatchSize <= 0 заменяется на 1000.
func NewMigrationRunner(
	reconciler AccountReconciler,
	waiter ReplicaWaiter,
	opts RunOptions,
	logger *slog.Logger,
) *MigrationRunner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	return &MigrationRunner{
		reconciler: reconciler,
		waiter:     waiter,
		opts:       opts,
		logger:     logger.With(slog.String("component", "migration_runner")),
		now:        time.Now,
	}
}

// RunOne обрабатывает одно имя с необязательным домашним сайтом.
func (m *MigrationRunner) RunOne(ctx context.Context, username, homeSite string) (*Report, error) {
	return m.Run(ctx, NewSingleEntryReader(username, homeSite))
}

// Run обрабатывает все записи потока.
// Отказы в объединении и неполные объединения логируются и не прерывают
// проход. Сбой хранилища, таймаут ожидания реплик или отмена контекста
// прерывают проход; отчёт о выполненной части возвращается вместе с ошибкой.
func (m *MigrationRunner) Run(ctx context.Context, list *ListReader) (*Report, error) {
	runID := uuid.NewString()
	logger := m.logger.With(slog.String("run_id", runID))
	start := m.now()
	report := &Report{RunID: runID}

	logger.Info("Пакетное объединение запущено",
		slog.Bool("safe", m.opts.Safe),
		slog.Bool("auto", m.opts.AutoMigrate),
		slog.Bool("attach_missing", m.opts.AttachMissing),
		slog.Int("batch_size", m.opts.BatchSize),
	)

	runErr := m.processAll(ctx, list, report, logger)
	m.finalize(report, start)

	if runErr != nil {
		logger.Error("Пакетное объединение прервано",
			slog.Int("total", report.Total),
			slog.String("error", runErr.Error()),
		)
		return report, runErr
	}
	logger.Info("Пакетное объединение завершено",
		slog.Int("total", report.Total),
		slog.Int("merged", report.Merged),
		slog.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// processAll — основной цикл прохода.
func (m *MigrationRunner) processAll(ctx context.Context, list *ListReader, report *Report, logger *slog.Logger) error {
	for list.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry := list.Entry()
		if entry.Err != nil {
			migrationSkippedLinesTotal.Inc()
			logger.Warn("Строка списка пропущена", slog.String("error", entry.Err.Error()))
			continue
		}

		report.Total++
		migrationProcessedTotal.Inc()

		merged, err := m.processEntry(ctx, entry, logger)
		if err != nil {
			return err
		}
		if merged {
			report.Merged++
		}

		if report.Total%m.opts.BatchSize == 0 {
			if err := m.waitForReplicas(ctx, report.Total, logger); err != nil {
				return err
			}
		}
	}
	return list.Err()
}

// processEntry объединяет одно имя. Возвращает признак полного объединения.
// Сбой обработки имени не прерывает проход: имя считается необъединённым.
// Ошибка возвращается только при отмене контекста.
func (m *MigrationRunner) processEntry(ctx context.Context, entry ListEntry, logger *slog.Logger) (bool, error) {
	outcome, err := m.reconciler.Reconcile(ctx, MigrationRequest{
		Username:      entry.Username,
		HomeSite:      entry.HomeSite,
		Safe:          m.opts.Safe,
		AutoMigrate:   m.opts.AutoMigrate,
		AttachMissing: m.opts.AttachMissing,
	})
	if err != nil && !IsRejection(err) && !errors.Is(err, ErrIncompleteMigration) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		migrationFailedTotal.Inc()
		logger.Error("Сбой обработки имени, переход к следующему",
			slog.String("username", entry.Username),
			slog.Int("line", entry.Line),
			slog.String("error", err.Error()),
		)
		return false, nil
	}
	return fullyMerged(outcome), nil
}

// fullyMerged — имя объединено без остатка либо (режим AttachMissing)
// к существующему глобальному аккаунту привязан хотя бы один аккаунт.
func fullyMerged(outcome *MigrationOutcome) bool {
	if outcome == nil {
		return false
	}
	switch outcome.State {
	case migration.StateMerged:
		return !outcome.Incomplete()
	case migration.StateAttachedOnly:
		return len(outcome.AttachedSites) > 0
	default:
		return false
	}
}

// waitForReplicas ждёт реплики между пакетами.
func (m *MigrationRunner) waitForReplicas(ctx context.Context, processed int, logger *slog.Logger) error {
	logger.Info("Ожидание реплик", slog.Int("processed", processed))
	start := time.Now()
	err := m.waiter.WaitForReplicas(ctx)
	replicaWaitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	logger.Debug("Реплики догнали primary", slog.Duration("waited", time.Since(start)))
	return nil
}

// finalize заполняет расчётные поля отчёта.
func (m *MigrationRunner) finalize(report *Report, start time.Time) {
	report.FinishedAt = m.now()
	report.Elapsed = report.FinishedAt.Sub(start)
	if secs := report.Elapsed.Seconds(); secs > 0 {
		report.Rate = float64(report.Total) / secs
	}
	if report.Total > 0 {
		report.Percent = float64(report.Merged) / float64(report.Total) * 100.0
	}
}

// ReplicaLagProbe — источник текущего отставания реплики.
type ReplicaLagProbe interface {
	ReplicaLag(ctx context.Context) (time.Duration, error)
}

// BackoffReplicaWaiter опрашивает отставание реплики с экспоненциальной
// задержкой до снижения ниже maxLag или истечения timeout.
type BackoffReplicaWaiter struct {
	probe           ReplicaLagProbe
	maxLag          time.Duration
	timeout         time.Duration
	initialInterval time.Duration
	logger          *slog.Logger
}

// NewBackoffReplicaWaiter создаёт ожидание реплики.
func NewBackoffReplicaWaiter(probe ReplicaLagProbe, maxLag, timeout time.Duration, logger *slog.Logger) *BackoffReplicaWaiter {
	return &BackoffReplicaWaiter{
		probe:           probe,
		maxLag:          maxLag,
		timeout:         timeout,
		initialInterval: 500 * time.Millisecond,
		logger:          logger.With(slog.String("component", "replica_waiter")),
	}
}

// WaitForReplicas блокируется, пока отставание реплики превышает maxLag.
// По истечении timeout возвращает ErrReplicaLagTimeout.
func (w *BackoffReplicaWaiter) WaitForReplicas(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initialInterval
	b.MaxElapsedTime = w.timeout

	attempt := 0
	operation := func() error {
		attempt++
		lag, err := w.probe.ReplicaLag(ctx)
		if err != nil {
			w.logger.Warn("Не удалось получить отставание реплики",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return err
		}
		if lag > w.maxLag {
			w.logger.Debug("Реплика отстаёт",
				slog.Int("attempt", attempt),
				slog.Duration("lag", lag),
				slog.Duration("max_lag", w.maxLag),
			)
			return fmt.Errorf("отставание %s превышает %s", lag, w.maxLag)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w (%s): %w", ErrReplicaLagTimeout, w.timeout, err)
	}
	return nil
}
