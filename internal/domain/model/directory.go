package model

// DirectoryRow — строка каталога глобальных аккаунтов.
// Одна строка на имя пользователя, многозначные атрибуты уже агрегированы.
type DirectoryRow struct {
	// ID — идентификатор глобального аккаунта
	ID int64
	// Name — имя пользователя
	Name string
	// Locked — хотя бы одна запись помечена как заблокированная
	Locked bool
	// Attached — есть привязанный локальный аккаунт на обслуживающем сайте
	Attached bool
	// Groups — глобальные группы аккаунта (пустой срез — групп нет)
	Groups []string
}
