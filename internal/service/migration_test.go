package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/centralauth/internal/domain/migration"
)

// --- Моки ---

type mockReconciler struct {
	requests    []MigrationRequest
	reconcileFn func(ctx context.Context, req MigrationRequest) (*MigrationOutcome, error)
}

func (m *mockReconciler) Reconcile(ctx context.Context, req MigrationRequest) (*MigrationOutcome, error) {
	m.requests = append(m.requests, req)
	if m.reconcileFn != nil {
		return m.reconcileFn(ctx, req)
	}
	return &MigrationOutcome{Username: req.Username, State: migration.StateMerged}, nil
}

type mockWaiter struct {
	calls  int
	waitFn func(ctx context.Context) error
}

func (m *mockWaiter) WaitForReplicas(ctx context.Context) error {
	m.calls++
	if m.waitFn != nil {
		return m.waitFn(ctx)
	}
	return nil
}

type mockLagProbe struct {
	calls int
	lagFn func(call int) (time.Duration, error)
}

func (m *mockLagProbe) ReplicaLag(_ context.Context) (time.Duration, error) {
	m.calls++
	return m.lagFn(m.calls)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func userList(n int) string {
	var sb strings.Builder
	for i := range n {
		fmt.Fprintf(&sb, "User%d\n", i)
	}
	return sb.String()
}

// --- MigrationRunner ---

func TestMigrationRunner_BatchWaits(t *testing.T) {
	rec := &mockReconciler{}
	waiter := &mockWaiter{}
	runner := NewMigrationRunner(rec, waiter, RunOptions{BatchSize: 1000}, discardLogger())

	report, err := runner.Run(context.Background(), NewListReader(strings.NewReader(userList(2500))))
	if err != nil {
		t.Fatalf("Run() ошибка: %v", err)
	}
	if waiter.calls != 2 {
		t.Errorf("ожиданий реплик %d, ожидалось 2", waiter.calls)
	}
	if report.Total != 2500 || report.Merged != 2500 {
		t.Errorf("Total = %d, Merged = %d", report.Total, report.Merged)
	}
}

func TestMigrationRunner_DefaultBatchSize(t *testing.T) {
	waiter := &mockWaiter{}
	runner := NewMigrationRunner(&mockReconciler{}, waiter, RunOptions{}, discardLogger())

	if _, err := runner.Run(context.Background(), NewListReader(strings.NewReader(userList(1000)))); err != nil {
		t.Fatalf("Run() ошибка: %v", err)
	}
	if waiter.calls != 1 {
		t.Errorf("ожиданий реплик %d, ожидалось 1", waiter.calls)
	}
}

func TestMigrationRunner_MalformedLinesNotCounted(t *testing.T) {
	rec := &mockReconciler{}
	runner := NewMigrationRunner(rec, &mockWaiter{}, RunOptions{BatchSize: 2}, discardLogger())

	input := "Alice\nbad\tline\twith\tfields\nBob\tenwiki\n\nCarol\n"
	report, err := runner.Run(context.Background(), NewListReader(strings.NewReader(input)))
	if err != nil {
		t.Fatalf("Run() ошибка: %v", err)
	}
	if report.Total != 3 {
		t.Errorf("Total = %d, ожидалось 3", report.Total)
	}
	if len(rec.requests) != 3 || rec.requests[1].HomeSite != "enwiki" {
		t.Errorf("запросы = %+v", rec.requests)
	}
}

func TestMigrationRunner_PassesOptions(t *testing.T) {
	rec := &mockReconciler{}
	opts := RunOptions{Safe: true, AutoMigrate: true, AttachMissing: true}
	runner := NewMigrationRunner(rec, &mockWaiter{}, opts, discardLogger())

	if _, err := runner.RunOne(context.Background(), "Alice", "dewiki"); err != nil {
		t.Fatalf("RunOne() ошибка: %v", err)
	}
	expected := MigrationRequest{Username: "Alice", HomeSite: "dewiki", Safe: true, AutoMigrate: true, AttachMissing: true}
	if len(rec.requests) != 1 || rec.requests[0] != expected {
		t.Errorf("запросы = %+v, ожидалось %+v", rec.requests, expected)
	}
}

func TestMigrationRunner_MergedCounting(t *testing.T) {
	outcomes := map[string]struct {
		outcome *MigrationOutcome
		err     error
	}{
		"Merged":     {outcome: &MigrationOutcome{State: migration.StateMerged}},
		"Partial":    {outcome: &MigrationOutcome{State: migration.StateMerged, Leftover: []string{"s2"}}, err: ErrIncompleteMigration},
		"Attached":   {outcome: &MigrationOutcome{State: migration.StateAttachedOnly, AttachedSites: []string{"s2"}}},
		"NothingNew": {outcome: &MigrationOutcome{State: migration.StateAttachedOnly}},
		"Global":     {outcome: &MigrationOutcome{State: migration.StateAlreadyGlobal}, err: ErrAlreadyGlobal},
		"Ambiguous":  {outcome: &MigrationOutcome{State: migration.StateRejected}, err: ErrAmbiguousAccounts},
	}
	rec := &mockReconciler{
		reconcileFn: func(_ context.Context, req MigrationRequest) (*MigrationOutcome, error) {
			res := outcomes[req.Username]
			return res.outcome, res.err
		},
	}
	runner := NewMigrationRunner(rec, &mockWaiter{}, RunOptions{}, discardLogger())

	input := "Merged\nPartial\nAttached\nNothingNew\nGlobal\nAmbiguous\n"
	report, err := runner.Run(context.Background(), NewListReader(strings.NewReader(input)))
	if err != nil {
		t.Fatalf("Run() ошибка: %v", err)
	}
	if report.Total != 6 || report.Merged != 2 {
		t.Errorf("Total = %d, Merged = %d; ожидалось 6 и 2", report.Total, report.Merged)
	}
}

func TestMigrationRunner_StorageFailureContinues(t *testing.T) {
	storeErr := errors.New("read replica timeout")
	rec := &mockReconciler{
		reconcileFn: func(_ context.Context, req MigrationRequest) (*MigrationOutcome, error) {
			if req.Username == "Bob" {
				return &MigrationOutcome{State: migration.StateRejected}, storeErr
			}
			return &MigrationOutcome{State: migration.StateMerged}, nil
		},
	}
	runner := NewMigrationRunner(rec, &mockWaiter{}, RunOptions{}, discardLogger())

	report, err := runner.Run(context.Background(), NewListReader(strings.NewReader("Alice\nBob\nCarol\n")))
	if err != nil {
		t.Fatalf("сбой одного имени не должен прерывать проход: %v", err)
	}
	if report.Total != 3 || report.Merged != 2 {
		t.Errorf("Total = %d, Merged = %d, ожидалось 3 и 2", report.Total, report.Merged)
	}
	if len(rec.requests) != 3 || rec.requests[2].Username != "Carol" {
		t.Errorf("после сбоя обработка должна продолжиться, запросы %+v", rec.requests)
	}
}

func TestMigrationRunner_StorageFailureWithReconciler(t *testing.T) {
	// GetByName падает для всех имён: каждое имя отклоняется, проход доходит до конца
	s := newMemStore(local("s1", "Alice", "a@x", true, 1), local("s1", "Carol", "c@x", true, 1))
	s.getErr = errors.New("read replica timeout")
	r, _ := newTestReconciler(s)
	runner := NewMigrationRunner(r, &mockWaiter{}, RunOptions{}, discardLogger())

	report, err := runner.Run(context.Background(), NewListReader(strings.NewReader("Alice\nBob\nCarol\n")))
	if err != nil {
		t.Fatalf("Run() ошибка: %v", err)
	}
	if report.Total != 3 || report.Merged != 0 {
		t.Errorf("Total = %d, Merged = %d, ожидалось 3 и 0", report.Total, report.Merged)
	}
}

func TestMigrationRunner_CancelDuringReconcile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &mockReconciler{
		reconcileFn: func(ctx context.Context, _ MigrationRequest) (*MigrationOutcome, error) {
			cancel()
			return &MigrationOutcome{State: migration.StateRejected}, ctx.Err()
		},
	}
	runner := NewMigrationRunner(rec, &mockWaiter{}, RunOptions{}, discardLogger())

	_, err := runner.Run(ctx, NewListReader(strings.NewReader("Alice\nBob\n")))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидалась context.Canceled, получено %v", err)
	}
	if len(rec.requests) != 1 {
		t.Errorf("после отмены обработка должна остановиться, запросов %d", len(rec.requests))
	}
}

func TestMigrationRunner_WaitTimeoutAborts(t *testing.T) {
	rec := &mockReconciler{}
	waiter := &mockWaiter{
		waitFn: func(context.Context) error { return ErrReplicaLagTimeout },
	}
	runner := NewMigrationRunner(rec, waiter, RunOptions{BatchSize: 2}, discardLogger())

	report, err := runner.Run(context.Background(), NewListReader(strings.NewReader(userList(5))))
	if !errors.Is(err, ErrReplicaLagTimeout) {
		t.Fatalf("ожидалась ErrReplicaLagTimeout, получено %v", err)
	}
	if report.Total != 2 {
		t.Errorf("Total = %d, ожидалось 2", report.Total)
	}
}

func TestMigrationRunner_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &mockReconciler{}
	runner := NewMigrationRunner(rec, &mockWaiter{}, RunOptions{}, discardLogger())

	if _, err := runner.Run(ctx, NewListReader(strings.NewReader(userList(3)))); !errors.Is(err, context.Canceled) {
		t.Errorf("ожидалась context.Canceled, получено %v", err)
	}
	if len(rec.requests) != 0 {
		t.Errorf("запросов %d, ожидалось 0", len(rec.requests))
	}
}

func TestReport_String(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{start, start.Add(4 * time.Second)}

	rec := &mockReconciler{
		reconcileFn: func(_ context.Context, req MigrationRequest) (*MigrationOutcome, error) {
			if req.Username == "User0" {
				return &MigrationOutcome{State: migration.StateRejected}, ErrNoLocalAccounts
			}
			return &MigrationOutcome{State: migration.StateMerged}, nil
		},
	}
	runner := NewMigrationRunner(rec, &mockWaiter{}, RunOptions{}, discardLogger())
	runner.now = func() time.Time {
		next := clock[0]
		clock = clock[1:]
		return next
	}

	report, err := runner.Run(context.Background(), NewListReader(strings.NewReader(userList(10))))
	if err != nil {
		t.Fatalf("Run() ошибка: %v", err)
	}

	expected := "2026-03-01 12:00:04 processed 10 usernames (2.5/sec), 9 (90.0%) fully migrated"
	if got := report.String(); got != expected {
		t.Errorf("String() = %q, ожидалось %q", got, expected)
	}
	if report.RunID == "" {
		t.Error("RunID не задан")
	}
}

func TestReport_EmptyRun(t *testing.T) {
	runner := NewMigrationRunner(&mockReconciler{}, &mockWaiter{}, RunOptions{}, discardLogger())

	report, err := runner.Run(context.Background(), NewListReader(strings.NewReader("\n\n")))
	if err != nil {
		t.Fatalf("Run() ошибка: %v", err)
	}
	if report.Total != 0 || report.Percent != 0 {
		t.Errorf("пустой проход = %+v", report)
	}
}

// --- BackoffReplicaWaiter ---

func newTestWaiter(probe ReplicaLagProbe, timeout time.Duration) *BackoffReplicaWaiter {
	w := NewBackoffReplicaWaiter(probe, time.Second, timeout, discardLogger())
	w.initialInterval = time.Millisecond
	return w
}

func TestBackoffReplicaWaiter_WaitsUntilLagDrops(t *testing.T) {
	probe := &mockLagProbe{
		lagFn: func(call int) (time.Duration, error) {
			if call < 3 {
				return 10 * time.Second, nil
			}
			return 100 * time.Millisecond, nil
		},
	}

	if err := newTestWaiter(probe, time.Minute).WaitForReplicas(context.Background()); err != nil {
		t.Fatalf("WaitForReplicas() ошибка: %v", err)
	}
	if probe.calls != 3 {
		t.Errorf("опросов %d, ожидалось 3", probe.calls)
	}
}

func TestBackoffReplicaWaiter_RetriesProbeErrors(t *testing.T) {
	probe := &mockLagProbe{
		lagFn: func(call int) (time.Duration, error) {
			if call == 1 {
				return 0, errors.New("replica restarting")
			}
			return 0, nil
		},
	}

	if err := newTestWaiter(probe, time.Minute).WaitForReplicas(context.Background()); err != nil {
		t.Fatalf("WaitForReplicas() ошибка: %v", err)
	}
	if probe.calls != 2 {
		t.Errorf("опросов %d, ожидалось 2", probe.calls)
	}
}

func TestBackoffReplicaWaiter_Timeout(t *testing.T) {
	probe := &mockLagProbe{
		lagFn: func(int) (time.Duration, error) { return time.Hour, nil },
	}

	err := newTestWaiter(probe, 50*time.Millisecond).WaitForReplicas(context.Background())
	if !errors.Is(err, ErrReplicaLagTimeout) {
		t.Fatalf("ожидалась ErrReplicaLagTimeout, получено %v", err)
	}
}

func TestBackoffReplicaWaiter_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	probe := &mockLagProbe{
		lagFn: func(int) (time.Duration, error) {
			cancel()
			return time.Hour, nil
		},
	}

	err := newTestWaiter(probe, time.Minute).WaitForReplicas(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ожидалась context.Canceled, получено %v", err)
	}
}
