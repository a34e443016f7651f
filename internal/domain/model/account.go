// Пакет model — доменные модели central auth.
// GlobalAccount и LocalAccount — маппинг таблиц global_accounts и local_accounts.
package model

import (
	"fmt"
	"time"
)

// AttachMethod — способ подтверждения при привязке локального аккаунта к глобальному.
type AttachMethod string

const (
	// AttachPassword — привязка по совпадению email (все аккаунты подтверждены одним адресом)
	AttachPassword AttachMethod = "password"
	// AttachMail — привязка по подтверждённому email, совпадающему с email глобального аккаунта
	AttachMail AttachMethod = "mail"
	// AttachAdmin — домашний сайт назначен оператором
	AttachAdmin AttachMethod = "admin"
	// AttachLogin — привязка при входе пользователя
	AttachLogin AttachMethod = "login"
	// AttachNew — домашний аккаунт, выбранный автоматически при создании глобального
	AttachNew AttachMethod = "new"
	// AttachEmpty — привязка аккаунта без правок
	AttachEmpty AttachMethod = "empty"
)

// validAttachMethods — whitelist значений attached_method.
var validAttachMethods = map[AttachMethod]bool{
	AttachPassword: true,
	AttachMail:     true,
	AttachAdmin:    true,
	AttachLogin:    true,
	AttachNew:      true,
	AttachEmpty:    true,
}

// ParseAttachMethod проверяет строковое значение способа привязки.
func ParseAttachMethod(s string) (AttachMethod, error) {
	m := AttachMethod(s)
	if !validAttachMethods[m] {
		return "", fmt.Errorf("недопустимый способ привязки %q", s)
	}
	return m, nil
}

// HiddenLevel — уровень скрытия глобального аккаунта.
type HiddenLevel string

const (
	// HiddenNone — аккаунт виден везде
	HiddenNone HiddenLevel = ""
	// HiddenLists — аккаунт скрыт из списков
	HiddenLists HiddenLevel = "lists"
	// HiddenSuppressed — аккаунт полностью скрыт (oversight)
	HiddenSuppressed HiddenLevel = "suppressed"
)

// GlobalAccount — единая учётная запись, объединяющая локальные аккаунты сайтов.
type GlobalAccount struct {
	// ID — числовой идентификатор
	ID int64
	// Name — имя пользователя (регистрозависимое, уникальное)
	Name string
	// HomeSite — домашний сайт (опционально)
	HomeSite *string
	// Email — адрес электронной почты
	Email string
	// EmailAuthenticatedAt — время подтверждения email (nil — не подтверждён)
	EmailAuthenticatedAt *time.Time
	// Locked — аккаунт заблокирован
	Locked bool
	// Hidden — уровень скрытия
	Hidden HiddenLevel
	// CreatedAt — время создания глобального аккаунта
	CreatedAt time.Time
}

// EmailAuthenticated сообщает, подтверждён ли email глобального аккаунта.
func (g *GlobalAccount) EmailAuthenticated() bool {
	return g.EmailAuthenticatedAt != nil
}

// LocalAccount — аккаунт на отдельном сайте.
type LocalAccount struct {
	// SiteID — идентификатор сайта
	SiteID string
	// Username — имя пользователя на сайте
	Username string
	// Email — адрес электронной почты (пустая строка — не задан)
	Email string
	// EmailAuthenticatedAt — время подтверждения email (nil — не подтверждён)
	EmailAuthenticatedAt *time.Time
	// AttachedMethod — способ привязки (nil — не привязан)
	AttachedMethod *AttachMethod
	// AttachedAt — время привязки
	AttachedAt *time.Time
	// EditCount — количество правок на сайте
	EditCount int64
	// RegisteredAt — время регистрации на сайте (может отсутствовать у старых аккаунтов)
	RegisteredAt *time.Time
}

// Attached сообщает, привязан ли аккаунт к глобальному.
func (l *LocalAccount) Attached() bool {
	return l.AttachedMethod != nil
}

// EmailAuthenticated сообщает, подтверждён ли email локального аккаунта.
func (l *LocalAccount) EmailAuthenticated() bool {
	return l.EmailAuthenticatedAt != nil
}
