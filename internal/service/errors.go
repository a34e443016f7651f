// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrAlreadyGlobal — глобальный аккаунт с таким именем уже существует.
	ErrAlreadyGlobal = errors.New("глобальный аккаунт уже существует")
	// ErrEmailNotAuthenticated — email глобального аккаунта не подтверждён.
	ErrEmailNotAuthenticated = errors.New("email глобального аккаунта не подтверждён")
	// ErrNoLocalAccounts — нет непривязанных локальных аккаунтов.
	ErrNoLocalAccounts = errors.New("нет непривязанных локальных аккаунтов")
	// ErrAmbiguousAccounts — в безопасном режиме найдено больше одного аккаунта.
	ErrAmbiguousAccounts = errors.New("несколько локальных аккаунтов, объединение в безопасном режиме невозможно")
	// ErrHomeSiteNotFound — указанный домашний сайт не среди непривязанных аккаунтов.
	ErrHomeSiteNotFound = errors.New("домашний сайт не найден среди непривязанных аккаунтов")
	// ErrEmailMismatchAutoDisabled — email не совпадают, автоматическое объединение выключено.
	ErrEmailMismatchAutoDisabled = errors.New("email аккаунтов не совпадают, автоматическое объединение выключено")
	// ErrIncompleteMigration — объединение выполнено не полностью.
	ErrIncompleteMigration = errors.New("объединение выполнено не полностью")
	// ErrMalformedInputLine — строка входного списка не разобрана.
	ErrMalformedInputLine = errors.New("некорректная строка входного списка")
	// ErrInputFileNotFound — файл входного списка не найден.
	ErrInputFileNotFound = errors.New("файл входного списка не найден")
	// ErrReplicaLagTimeout — реплики не догнали primary за отведённое время.
	ErrReplicaLagTimeout = errors.New("превышено время ожидания реплик")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
)
