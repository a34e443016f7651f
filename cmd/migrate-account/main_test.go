package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bigkaa/centralauth/internal/service"
)

func TestOpenInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.txt")
	if err := os.WriteFile(path, []byte("Alice\tenwiki\nBob\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		opts      migrateOptions
		wantErr   error
		wantCount int
	}{
		{name: "нет входных данных", opts: migrateOptions{}, wantErr: errNoInput},
		{name: "файл не найден", opts: migrateOptions{userList: filepath.Join(t.TempDir(), "nope.txt")}, wantErr: service.ErrInputFileNotFound},
		{name: "одно имя", opts: migrateOptions{username: "Alice", homeSite: "enwiki"}, wantCount: 1},
		{name: "список", opts: migrateOptions{userList: path}, wantCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, closer, err := openInput(tt.opts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ожидалась %v, получено %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("openInput() ошибка: %v", err)
			}
			defer closer.Close()

			count := 0
			for list.Next() {
				count++
			}
			if count != tt.wantCount {
				t.Errorf("записей %d, ожидалось %d", count, tt.wantCount)
			}
		})
	}
}

func TestRootCmd_NoInputFails(t *testing.T) {
	cmd := newRootCmd()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); !errors.Is(err, errNoInput) {
		t.Errorf("ожидалась errNoInput, получено %v", err)
	}
	if stderr.Len() == 0 {
		t.Error("ошибка должна выводиться в stderr")
	}
}

func TestRootCmd_MissingFileFails(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--userlist", filepath.Join(t.TempDir(), "missing.txt")})

	if err := cmd.Execute(); !errors.Is(err, service.ErrInputFileNotFound) {
		t.Errorf("ожидалась ErrInputFileNotFound, получено %v", err)
	}
}

func TestRootCmd_ExclusiveFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "имя и список", args: []string{"-u", "Alice", "--userlist", "users.txt"}},
		{name: "домашний сайт и список", args: []string{"--homewiki", "enwiki", "--userlist", "users.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if err == nil {
				t.Fatal("ожидалась ошибка взаимоисключающих флагов")
			}
			if !strings.Contains(err.Error(), "userlist") {
				t.Errorf("ошибка не называет --userlist: %v", err)
			}
		})
	}
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"username", "homewiki", "userlist", "safe", "auto", "attachmissing", "batch-size"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("флаг --%s не зарегистрирован", name)
		}
	}
	if f := cmd.Flags().ShorthandLookup("u"); f == nil || f.Name != "username" {
		t.Error("сокращение -u должно соответствовать --username")
	}
}
