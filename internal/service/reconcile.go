// reconcile.go — объединение локальных аккаунтов одного имени в глобальный.
//
// Reconciler.Reconcile обрабатывает одно имя пользователя:
//  1. Глобальный аккаунт существует → ничего не меняем либо (AttachMissing)
//     привязываем недостающие аккаунты с подтверждённым совпадающим email
//  2. Собираем непривязанные локальные аккаунты, проверяем безопасный режим
//     и запрошенный домашний сайт
//  3. Все email совпадают и подтверждены → объединяем всё методом password
//  4. Иначе объединяем только при заданном домашнем сайте или AutoMigrate
//
// Создание глобального аккаунта и привязки выполняются в одной транзакции
// primary-хранилища: при любой ошибке имя остаётся нетронутым.
//
// Prometheus-метрики:
//   - ca_migration_outcomes_total — итоги обработки имён (по состояниям)
//   - ca_migration_attached_total — привязанные локальные аккаунты (по методам)
package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/centralauth/internal/domain/migration"
	"github.com/bigkaa/centralauth/internal/domain/model"
	"github.com/bigkaa/centralauth/internal/repository"
)

// Prometheus-метрики объединения аккаунтов.
var (
	migrationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ca_migration_outcomes_total",
		Help: "Итоги обработки имён пользователей при объединении",
	}, []string{"state"})

	migrationAttached = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ca_migration_attached_total",
		Help: "Количество привязанных локальных аккаунтов",
	}, []string{"method"})
)

// TxRunner — выполнение функции в транзакции primary-хранилища.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx repository.DBTX) error) error
}

// MigrationRequest — запрос объединения одного имени.
type MigrationRequest struct {
	// Username — имя пользователя (регистрозависимое)
	Username string
	// HomeSite — домашний сайт, выбранный оператором (пусто — не задан)
	HomeSite string
	// Safe — объединять только при единственном локальном аккаунте
	Safe bool
	// AutoMigrate — объединять даже при несовпадающих email
	AutoMigrate bool
	// AttachMissing — привязать недостающие аккаунты к существующему глобальному
	AttachMissing bool
}

// MigrationOutcome — результат обработки имени.
type MigrationOutcome struct {
	// Username — обработанное имя
	Username string
	// State — конечное состояние автомата
	State migration.State
	// Candidates — сайты непривязанных локальных аккаунтов на момент анализа
	Candidates []string
	// HomeSite — домашний сайт созданного глобального аккаунта
	HomeSite string
	// AttachedSites — сайты, привязанные в этом проходе
	AttachedSites []string
	// Leftover — сайты, оставшиеся непривязанными после объединения
	Leftover []string
}

// Incomplete сообщает, остались ли непривязанные аккаунты после объединения.
func (o *MigrationOutcome) Incomplete() bool {
	return len(o.Leftover) > 0
}

// attachPlan — запланированная привязка локального аккаунта.
type attachPlan struct {
	account *model.LocalAccount
	method  model.AttachMethod
}

// Reconciler — движок объединения аккаунтов.
type Reconciler struct {
	db     repository.DBTX
	tx     TxRunner
	store  repository.AccountStore
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler создаёт движок объединения.
// db — primary-хранилище для чтения, tx — транзакции того же хранилища.
func NewReconciler(
	db repository.DBTX,
	tx TxRunner,
	store repository.AccountStore,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		db:     db,
		tx:     tx,
		store:  store,
		logger: logger.With(slog.String("component", "reconciler")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile обрабатывает одно имя пользователя.
// Всегда возвращает MigrationOutcome с конечным состоянием; ошибка
// описывает причину отклонения или неполного объединения.
func (r *Reconciler) Reconcile(ctx context.Context, req MigrationRequest) (*MigrationOutcome, error) {
	if req.Username == "" {
		return nil, fmt.Errorf("%w: пустое имя пользователя", ErrValidation)
	}

	tracker := migration.NewTracker(req.Username)
	if err := tracker.TransitionTo(migration.StateEvaluating); err != nil {
		return nil, err
	}
	outcome := &MigrationOutcome{Username: req.Username}

	global, err := r.store.GlobalAccounts(r.db).GetByName(ctx, req.Username)
	switch {
	case err == nil:
		if !req.AttachMissing {
			return r.finish(tracker, outcome, migration.StateAlreadyGlobal, ErrAlreadyGlobal)
		}
		return r.attachMissing(ctx, tracker, outcome, global)
	case !errors.Is(err, repository.ErrNotFound):
		return r.reject(tracker, outcome, fmt.Errorf("поиск глобального аккаунта: %w", err))
	}

	unattached, err := r.store.LocalAccounts(r.db).ListUnattached(ctx, req.Username)
	if err != nil {
		return r.reject(tracker, outcome, fmt.Errorf("поиск локальных аккаунтов: %w", err))
	}
	if len(unattached) == 0 {
		return r.reject(tracker, outcome, ErrNoLocalAccounts)
	}
	outcome.Candidates = siteIDs(unattached)

	if req.Safe && len(unattached) > 1 {
		return r.reject(tracker, outcome, ErrAmbiguousAccounts)
	}

	var requestedHome *model.LocalAccount
	if req.HomeSite != "" {
		idx := slices.IndexFunc(unattached, func(a *model.LocalAccount) bool {
			return a.SiteID == req.HomeSite
		})
		if idx < 0 {
			return r.reject(tracker, outcome, fmt.Errorf("%w: %s", ErrHomeSiteNotFound, req.HomeSite))
		}
		requestedHome = unattached[idx]
	}

	var (
		home     *model.LocalAccount
		plan     []attachPlan
		leftover []*model.LocalAccount
	)

	if emailsMatch(unattached) {
		home = requestedHome
		if home == nil {
			home = chooseHomeAccount(unattached)
		}
		for _, acc := range unattached {
			plan = append(plan, attachPlan{account: acc, method: model.AttachPassword})
		}
	} else {
		// В безопасном режиме здесь ровно один аккаунт: сравнивать email не с чем
		if requestedHome == nil && !req.AutoMigrate && !req.Safe {
			return r.reject(tracker, outcome, ErrEmailMismatchAutoDisabled)
		}
		home, plan, leftover = planRelaxedMerge(unattached, requestedHome)
	}

	if err := r.storeAndMigrate(ctx, req.Username, home, plan); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return r.reject(tracker, outcome, ErrAlreadyGlobal)
		}
		return r.reject(tracker, outcome, fmt.Errorf("%w: %w", ErrIncompleteMigration, err))
	}

	outcome.HomeSite = home.SiteID
	for _, p := range plan {
		outcome.AttachedSites = append(outcome.AttachedSites, p.account.SiteID)
		migrationAttached.WithLabelValues(string(p.method)).Inc()
	}
	outcome.Leftover = siteIDs(leftover)

	if outcome.Incomplete() {
		return r.finish(tracker, outcome, migration.StateMerged,
			fmt.Errorf("%w: непривязанные сайты %v", ErrIncompleteMigration, outcome.Leftover))
	}
	return r.finish(tracker, outcome, migration.StateMerged, nil)
}

// attachMissing привязывает к существующему глобальному аккаунту локальные
// аккаунты с подтверждённым email, совпадающим с email глобального.
func (r *Reconciler) attachMissing(
	ctx context.Context,
	tracker *migration.Tracker,
	outcome *MigrationOutcome,
	global *model.GlobalAccount,
) (*MigrationOutcome, error) {
	if !global.EmailAuthenticated() {
		return r.reject(tracker, outcome, ErrEmailNotAuthenticated)
	}

	var attached []string
	err := r.tx.RunInTx(ctx, func(tx repository.DBTX) error {
		attached = attached[:0]
		locals := r.store.LocalAccounts(tx)
		unattached, err := locals.ListUnattached(ctx, global.Name)
		if err != nil {
			return err
		}
		now := r.now()
		for _, acc := range unattached {
			if !acc.EmailAuthenticated() || acc.Email != global.Email {
				continue
			}
			if err := locals.Attach(ctx, acc.SiteID, acc.Username, model.AttachMail, now); err != nil {
				return err
			}
			attached = append(attached, acc.SiteID)
		}
		return nil
	})
	if err != nil {
		return r.reject(tracker, outcome, fmt.Errorf("%w: %w", ErrIncompleteMigration, err))
	}

	outcome.AttachedSites = attached
	migrationAttached.WithLabelValues(string(model.AttachMail)).Add(float64(len(attached)))
	return r.finish(tracker, outcome, migration.StateAttachedOnly, nil)
}

// storeAndMigrate создаёт глобальный аккаунт и привязывает локальные
// в одной транзакции.
func (r *Reconciler) storeAndMigrate(
	ctx context.Context,
	username string,
	home *model.LocalAccount,
	plan []attachPlan,
) error {
	return r.tx.RunInTx(ctx, func(tx repository.DBTX) error {
		homeSite := home.SiteID
		global := &model.GlobalAccount{
			Name:                 username,
			HomeSite:             &homeSite,
			Email:                home.Email,
			EmailAuthenticatedAt: home.EmailAuthenticatedAt,
		}
		if err := r.store.GlobalAccounts(tx).Create(ctx, global); err != nil {
			return err
		}

		locals := r.store.LocalAccounts(tx)
		now := r.now()
		for _, p := range plan {
			if err := locals.Attach(ctx, p.account.SiteID, p.account.Username, p.method, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// reject переводит автомат в rejected.
func (r *Reconciler) reject(
	tracker *migration.Tracker,
	outcome *MigrationOutcome,
	reason error,
) (*MigrationOutcome, error) {
	return r.finish(tracker, outcome, migration.StateRejected, reason)
}

// finish фиксирует конечное состояние, пишет лог и метрику.
func (r *Reconciler) finish(
	tracker *migration.Tracker,
	outcome *MigrationOutcome,
	state migration.State,
	reason error,
) (*MigrationOutcome, error) {
	var err error
	if state == migration.StateRejected {
		err = tracker.Reject(reason)
	} else {
		err = tracker.TransitionTo(state)
	}
	if err != nil {
		return nil, err
	}
	outcome.State = tracker.Current()
	migrationOutcomes.WithLabelValues(string(outcome.State)).Inc()

	attrs := []any{
		slog.String("username", outcome.Username),
		slog.String("state", string(outcome.State)),
	}
	if len(outcome.AttachedSites) > 0 {
		attrs = append(attrs, slog.Any("attached", outcome.AttachedSites))
	}
	if len(outcome.Leftover) > 0 {
		attrs = append(attrs, slog.Any("leftover", outcome.Leftover))
	}
	// Сайты кандидатов нужны оператору для ручного разбора отказа
	if outcome.State == migration.StateRejected && len(outcome.Candidates) > 0 {
		attrs = append(attrs, slog.Any("candidates", outcome.Candidates))
	}
	switch {
	case reason == nil:
		r.logger.Info("Имя обработано", attrs...)
	case errors.Is(reason, ErrIncompleteMigration):
		attrs = append(attrs, slog.String("error", reason.Error()))
		r.logger.Warn("Объединение выполнено не полностью", attrs...)
	case IsRejection(reason):
		attrs = append(attrs, slog.String("reason", reason.Error()))
		r.logger.Info("Объединение не выполнено", attrs...)
	default:
		attrs = append(attrs, slog.String("error", reason.Error()))
		r.logger.Error("Ошибка объединения", attrs...)
	}

	return outcome, reason
}

// IsRejection сообщает, является ли ошибка штатным отказом в объединении
// (а не сбоем хранилища).
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrAlreadyGlobal,
		ErrEmailNotAuthenticated,
		ErrNoLocalAccounts,
		ErrAmbiguousAccounts,
		ErrHomeSiteNotFound,
		ErrEmailMismatchAutoDisabled,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// emailsMatch сообщает, совпадают ли email всех аккаунтов с email первого
// и подтверждены ли они все.
func emailsMatch(accounts []*model.LocalAccount) bool {
	baseline := accounts[0].Email
	for _, acc := range accounts {
		if acc.Email != baseline || !acc.EmailAuthenticated() {
			return false
		}
	}
	return true
}

// planRelaxedMerge строит план объединения при несовпадающих email.
// Домашний аккаунт: заданный оператором (admin) или выбранный автоматически (new).
// Остальные привязываются методом mail, если их подтверждённый email совпадает
// с подтверждённым email домашнего, иначе остаются непривязанными.
func planRelaxedMerge(
	unattached []*model.LocalAccount,
	requestedHome *model.LocalAccount,
) (home *model.LocalAccount, plan []attachPlan, leftover []*model.LocalAccount) {
	home, method := requestedHome, model.AttachAdmin
	if home == nil {
		home, method = chooseHomeAccount(unattached), model.AttachNew
	}

	plan = append(plan, attachPlan{account: home, method: method})
	for _, acc := range unattached {
		if acc == home {
			continue
		}
		if home.EmailAuthenticated() && acc.EmailAuthenticated() && acc.Email == home.Email {
			plan = append(plan, attachPlan{account: acc, method: model.AttachMail})
			continue
		}
		leftover = append(leftover, acc)
	}
	return home, plan, leftover
}

// chooseHomeAccount выбирает домашний аккаунт: больше правок, затем более
// ранняя регистрация (отсутствующая дата считается самой ранней), затем
// меньший идентификатор сайта.
func chooseHomeAccount(accounts []*model.LocalAccount) *model.LocalAccount {
	return slices.MinFunc(accounts, func(a, b *model.LocalAccount) int {
		if c := cmp.Compare(b.EditCount, a.EditCount); c != 0 {
			return c
		}
		if c := compareRegistration(a.RegisteredAt, b.RegisteredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.SiteID, b.SiteID)
	})
}

func compareRegistration(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Compare(*b)
	}
}

func siteIDs(accounts []*model.LocalAccount) []string {
	if len(accounts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		ids = append(ids, acc.SiteID)
	}
	return ids
}
