// Пакет wikiset — проверка, действует ли глобальная группа на сайте.
// Чистые функции без побочных эффектов: результат зависит только от
// политики и идентификатора сайта, поэтому его можно кэшировать.
package wikiset

import (
	"slices"

	"github.com/bigkaa/centralauth/internal/domain/model"
)

// InScope возвращает true, если сайт входит в область действия политики.
//   - optin: сайт должен быть в списке
//   - optout: сайт не должен быть в списке
//
// Неизвестный тип политики считается закрытым (false).
func InScope(policy *model.Wikiset, siteID string) bool {
	if policy == nil {
		return false
	}
	listed := slices.Contains(policy.Sites, siteID)
	switch policy.Type {
	case model.WikisetOptIn:
		return listed
	case model.WikisetOptOut:
		return !listed
	default:
		return false
	}
}
