package repository

import (
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

// TestBuildDirectoryWhere_Empty проверяет, что скрытые аккаунты отсекаются всегда.
func TestBuildDirectoryWhere_Empty(t *testing.T) {
	where, args := buildDirectoryWhere(DirectoryParams{}, 2)

	if where != "WHERE ga.hidden = ''" {
		t.Errorf("where = %q, ожидалось только условие hidden", where)
	}
	if len(args) != 0 {
		t.Errorf("args count = %d, ожидался 0", len(args))
	}
}

// TestBuildDirectoryWhere_AllFilters проверяет нумерацию параметров со второго.
func TestBuildDirectoryWhere_AllFilters(t *testing.T) {
	params := DirectoryParams{
		Group:        strPtr("steward"),
		UsernameFrom: strPtr("B"),
		Cursor:       strPtr("Bob"),
	}
	where, args := buildDirectoryWhere(params, 2)

	for _, fragment := range []string{
		"f.group_name = $2",
		"ga.name >= $3",
		"ga.name > $4",
	} {
		if !strings.Contains(where, fragment) {
			t.Errorf("where = %q, ожидалось содержание %q", where, fragment)
		}
	}
	if len(args) != 3 {
		t.Fatalf("args count = %d, ожидалось 3", len(args))
	}
	if args[0] != "steward" || args[1] != "B" || args[2] != "Bob" {
		t.Errorf("args = %v", args)
	}
}

// TestBuildDirectoryWhere_GroupUsesExists проверяет, что фильтр группы не сужает агрегат.
func TestBuildDirectoryWhere_GroupUsesExists(t *testing.T) {
	where, _ := buildDirectoryWhere(DirectoryParams{Group: strPtr("steward")}, 2)
	if !strings.Contains(where, "EXISTS (") {
		t.Errorf("where = %q, ожидался EXISTS-подзапрос", where)
	}
}

// TestBuildDirectoryWhere_EmptyStringsIgnored проверяет, что пустые строки не фильтруют.
func TestBuildDirectoryWhere_EmptyStringsIgnored(t *testing.T) {
	params := DirectoryParams{Group: strPtr(""), UsernameFrom: strPtr(""), Cursor: strPtr("")}
	_, args := buildDirectoryWhere(params, 2)
	if len(args) != 0 {
		t.Errorf("args count = %d, ожидался 0", len(args))
	}
}

// TestBuildDirectoryWhere_CursorDirection проверяет оператор курсора.
func TestBuildDirectoryWhere_CursorDirection(t *testing.T) {
	tests := []struct {
		name      string
		desc      bool
		backwards bool
		op        string
		order     string
	}{
		{name: "по возрастанию вперёд", desc: false, backwards: false, op: "ga.name > $2", order: "ASC"},
		{name: "по возрастанию назад", desc: false, backwards: true, op: "ga.name < $2", order: "DESC"},
		{name: "по убыванию вперёд", desc: true, backwards: false, op: "ga.name < $2", order: "DESC"},
		{name: "по убыванию назад", desc: true, backwards: true, op: "ga.name > $2", order: "ASC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DirectoryParams{Desc: tt.desc, Backwards: tt.backwards, Cursor: strPtr("M")}
			where, _ := buildDirectoryWhere(params, 2)
			if !strings.Contains(where, tt.op) {
				t.Errorf("where = %q, ожидалось %q", where, tt.op)
			}
			order := buildDirectoryOrderBy(scanDescending(params))
			if !strings.HasSuffix(order, tt.order) {
				t.Errorf("order = %q, ожидалось направление %s", order, tt.order)
			}
		})
	}
}
