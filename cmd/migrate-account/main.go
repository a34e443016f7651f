// Точка входа migrate-account — пакетное объединение локальных аккаунтов
// в глобальные. Имя задаётся флагом --username либо списком --userlist
// (строки username[\thomesite]). Ненулевой код выхода при отсутствии
// входных данных, отсутствующем файле списка и превышении ожидания реплик.
// Сбой обработки отдельного имени пишется в лог, проход продолжается.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bigkaa/centralauth/internal/config"
	"github.com/bigkaa/centralauth/internal/database"
	"github.com/bigkaa/centralauth/internal/repository"
	"github.com/bigkaa/centralauth/internal/service"
)

// errNoInput — не задано ни имя, ни список.
var errNoInput = errors.New("не задано имя пользователя (--username) или список (--userlist)")

type migrateOptions struct {
	username      string
	homeSite      string
	userList      string
	safe          bool
	auto          bool
	attachMissing bool
	batchSize     int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts migrateOptions

	cmd := &cobra.Command{
		Use:   "migrate-account",
		Short: "Объединение локальных аккаунтов в глобальные",
		Long: "Создаёт глобальные аккаунты и привязывает к ним локальные аккаунты " +
			"одного имени на разных сайтах.",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := runMigrate(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "ERROR: %v\n", err)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "Имя пользователя для объединения")
	cmd.Flags().StringVar(&opts.homeSite, "homewiki", "", "Домашний сайт для --username")
	cmd.Flags().StringVar(&opts.userList, "userlist", "", "Файл списка: username[\\thomewiki] в строке")
	cmd.Flags().BoolVar(&opts.safe, "safe", false, "Объединять только при единственном локальном аккаунте")
	cmd.Flags().BoolVar(&opts.auto, "auto", false, "Объединять и при несовпадающих email")
	cmd.Flags().BoolVar(&opts.attachMissing, "attachmissing", false, "Привязать недостающие аккаунты к существующим глобальным")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Имён между ожиданиями реплик (по умолчанию CA_MIGRATE_BATCH_SIZE)")

	cmd.MarkFlagsMutuallyExclusive("username", "userlist")
	cmd.MarkFlagsMutuallyExclusive("homewiki", "userlist")

	return cmd
}

// nopCloser — closer для входа без файла.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openInput возвращает поток записей по флагам. closer закрывает файл списка.
func openInput(opts migrateOptions) (*service.ListReader, io.Closer, error) {
	switch {
	case opts.userList != "":
		f, err := service.OpenListFile(opts.userList)
		if err != nil {
			return nil, nil, err
		}
		return service.NewListReader(f), f, nil
	case opts.username != "":
		return service.NewSingleEntryReader(opts.username, opts.homeSite), nopCloser{}, nil
	default:
		return nil, nil, errNoInput
	}
}

// runMigrate выполняет пакетный проход и печатает итоговый отчёт.
func runMigrate(ctx context.Context, opts migrateOptions, out io.Writer) error {
	list, closer, err := openInput(opts)
	if err != nil {
		return err
	}
	defer closer.Close()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("загрузка конфигурации: %w", err)
	}
	logger := config.SetupLogger(cfg)

	batchSize := opts.batchSize
	if batchSize <= 0 {
		batchSize = cfg.MigrateBatchSize
	}

	// Объединение пишет в primary; отставание проверяется на реплике
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	lagPool := pool
	if cfg.HasReplica() {
		lagPool, err = database.ConnectReplica(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer lagPool.Close()
	}

	reconciler := service.NewReconciler(pool, repository.NewTxRunner(pool), repository.NewAccountStore(), logger)
	waiter := service.NewBackoffReplicaWaiter(
		repository.NewReplicationRepository(lagPool),
		cfg.ReplicaMaxLag, cfg.ReplicaWaitTimeout,
		logger,
	)
	runner := service.NewMigrationRunner(reconciler, waiter, service.RunOptions{
		Safe:          opts.safe,
		AutoMigrate:   opts.auto,
		AttachMissing: opts.attachMissing,
		BatchSize:     batchSize,
	}, logger)

	report, runErr := runner.Run(ctx, list)
	if report != nil {
		fmt.Fprintln(out, report.String())
	}
	if runErr != nil {
		logger.Error("Объединение прервано", slog.String("error", runErr.Error()))
		return runErr
	}
	fmt.Fprintln(out, "done.")
	return nil
}
