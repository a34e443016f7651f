package service

import (
	"testing"
	"time"

	"github.com/bigkaa/centralauth/internal/domain/model"
)

// TestWikisetCache_Memoizes проверяет, что повторный вызов берётся из кэша.
func TestWikisetCache_Memoizes(t *testing.T) {
	cache := NewWikisetCache(100, 5*time.Minute)
	policy := &model.Wikiset{ID: 7, Type: model.WikisetOptIn, Sites: []string{"s1"}}

	if !cache.InScope(policy, "s1") {
		t.Fatal("InScope(s1) = false, ожидалось true")
	}
	if cache.InScope(policy, "s2") {
		t.Fatal("InScope(s2) = true, ожидалось false")
	}
	if cache.Len() != 2 {
		t.Errorf("Len() = %d, ожидалось 2", cache.Len())
	}

	// Изменение списка без инвалидации не видно до истечения TTL
	policy.Sites = nil
	if !cache.InScope(policy, "s1") {
		t.Error("ожидался результат из кэша")
	}

	cache.Purge()
	if cache.InScope(policy, "s1") {
		t.Error("после Purge ожидалось повторное вычисление")
	}
}

// TestWikisetCache_KeyIncludesWikiset проверяет раздельные ключи для разных наборов.
func TestWikisetCache_KeyIncludesWikiset(t *testing.T) {
	cache := NewWikisetCache(100, 5*time.Minute)
	optIn := &model.Wikiset{ID: 1, Type: model.WikisetOptIn, Sites: []string{"s1"}}
	optOut := &model.Wikiset{ID: 2, Type: model.WikisetOptOut, Sites: []string{"s1"}}

	if !cache.InScope(optIn, "s1") || cache.InScope(optOut, "s1") {
		t.Error("результаты разных наборов не должны смешиваться")
	}
}

// TestWikisetCache_TTL проверяет истечение записей.
func TestWikisetCache_TTL(t *testing.T) {
	cache := NewWikisetCache(100, 50*time.Millisecond)
	policy := &model.Wikiset{ID: 1, Type: model.WikisetOptIn, Sites: []string{"s1"}}

	cache.InScope(policy, "s1")
	time.Sleep(150 * time.Millisecond)

	if cache.Len() != 0 {
		t.Errorf("Len() = %d после TTL, ожидалось 0", cache.Len())
	}
}

// TestWikisetCache_NilPolicy проверяет, что отсутствующая политика не кэшируется.
func TestWikisetCache_NilPolicy(t *testing.T) {
	cache := NewWikisetCache(10, time.Minute)
	if cache.InScope(nil, "s1") {
		t.Error("InScope(nil) = true, ожидалось false")
	}
	if cache.Len() != 0 {
		t.Errorf("Len() = %d, ожидалось 0", cache.Len())
	}
}
