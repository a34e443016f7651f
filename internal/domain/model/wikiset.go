package model

import "fmt"

// WikisetType — тип набора сайтов.
type WikisetType string

const (
	// WikisetOptIn — allowlist: группа действует только на перечисленных сайтах
	WikisetOptIn WikisetType = "optin"
	// WikisetOptOut — denylist: группа действует везде, кроме перечисленных сайтов
	WikisetOptOut WikisetType = "optout"
)

// ParseWikisetType проверяет строковое значение типа набора.
func ParseWikisetType(s string) (WikisetType, error) {
	switch WikisetType(s) {
	case WikisetOptIn, WikisetOptOut:
		return WikisetType(s), nil
	default:
		return "", fmt.Errorf("недопустимый тип набора сайтов %q, допустимые: optin, optout", s)
	}
}

// Wikiset — политика, ограничивающая сайты, на которых действует глобальная группа.
type Wikiset struct {
	// ID — идентификатор набора
	ID int64
	// Name — название набора
	Name string
	// Type — optin или optout
	Type WikisetType
	// Sites — упорядоченный список идентификаторов сайтов
	Sites []string
}
