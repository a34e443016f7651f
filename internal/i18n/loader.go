// loader.go — загрузка каталогов переводов из embed.FS.
package i18n

import (
	"embed"
	"fmt"
	"log/slog"
)

// LocaleFS — встроенные JSON-каталоги переводов.
//
//go:embed locales/*.json
var LocaleFS embed.FS

// LoadFromEmbedFS загружает все каталоги переводов из встроенной файловой системы.
// Ожидаемые файлы: locales/en.json, locales/ru.json.
func LoadFromEmbedFS(bundle *Bundle, logger *slog.Logger) error {
	langs := []string{"en", "ru"}

	for _, lang := range langs {
		path := fmt.Sprintf("locales/%s.json", lang)
		data, err := LocaleFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("i18n: не удалось прочитать %s: %w", path, err)
		}

		if err := bundle.LoadMessages(lang, data); err != nil {
			return err
		}
	}

	logger.Info("i18n каталоги загружены", slog.Int("languages", len(langs)))
	return nil
}

// NewDefaultBundle создаёт Bundle со встроенными каталогами.
func NewDefaultBundle(logger *slog.Logger) (*Bundle, error) {
	bundle := NewBundle(logger)
	if err := LoadFromEmbedFS(bundle, logger); err != nil {
		return nil, err
	}
	return bundle, nil
}
