// userlist.go — чтение списка имён для пакетного объединения.
// Формат строки: username[\thomesite]. Пустые строки пропускаются.
package service

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// ListEntry — разобранная строка входного списка.
type ListEntry struct {
	// Line — номер строки в файле (с 1)
	Line int
	// Username — имя пользователя
	Username string
	// HomeSite — домашний сайт (пусто — не задан)
	HomeSite string
	// Err — ErrMalformedInputLine для строки, которую не удалось разобрать
	Err error
}

// maxListLineLength — предельная длина строки списка в байтах.
// Более длинная строка считается некорректной и пропускается целиком.
const maxListLineLength = 64 * 1024

// ListReader — построчный поток записей входного списка.
// Каждая непустая строка даёт одну запись: корректную либо помеченную
// ErrMalformedInputLine.
type ListReader struct {
	reader *bufio.Reader
	line   int
	entry  ListEntry
	err    error
}

// NewListReader создаёт поток записей поверх r.
func NewListReader(r io.Reader) *ListReader {
	return &ListReader{reader: bufio.NewReaderSize(r, maxListLineLength)}
}

// NewSingleEntryReader создаёт поток из одной записи (username, homeSite).
func NewSingleEntryReader(username, homeSite string) *ListReader {
	line := username
	if homeSite != "" {
		line += "\t" + homeSite
	}
	return NewListReader(strings.NewReader(line + "\n"))
}

// OpenListFile открывает файл списка. Вызывающий закрывает файл.
func OpenListFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputFileNotFound, path)
		}
		return nil, fmt.Errorf("открытие файла списка: %w", err)
	}
	return f, nil
}

// Next переходит к следующей непустой строке.
// Возвращает false в конце потока или при ошибке чтения (см. Err).
func (lr *ListReader) Next() bool {
	for {
		text, tooLong, err := lr.readLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				lr.err = err
			}
			return false
		}
		lr.line++
		if tooLong {
			lr.entry = ListEntry{
				Line: lr.line,
				Err:  fmt.Errorf("%w: строка %d: длиннее %d байт", ErrMalformedInputLine, lr.line, maxListLineLength),
			}
			return true
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		lr.entry = parseListLine(lr.line, text)
		return true
	}
}

// readLine читает одну строку. Строка длиннее буфера дочитывается
// до конца и отбрасывается с tooLong = true.
func (lr *ListReader) readLine() (string, bool, error) {
	line, isPrefix, err := lr.reader.ReadLine()
	if err != nil {
		return "", false, err
	}
	if !isPrefix {
		return string(line), false, nil
	}
	for isPrefix {
		_, isPrefix, err = lr.reader.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", false, err
		}
	}
	return "", true, nil
}

// Entry возвращает текущую запись.
func (lr *ListReader) Entry() ListEntry {
	return lr.entry
}

// Err возвращает ошибку чтения потока.
func (lr *ListReader) Err() error {
	if lr.err != nil {
		return fmt.Errorf("чтение списка: %w", lr.err)
	}
	return nil
}

// parseListLine разбирает строку из одного или двух полей через табуляцию.
func parseListLine(line int, text string) ListEntry {
	entry := ListEntry{Line: line}
	fields := strings.Split(text, "\t")
	switch len(fields) {
	case 1:
		entry.Username = fields[0]
	case 2:
		entry.Username, entry.HomeSite = fields[0], strings.TrimSpace(fields[1])
	default:
		entry.Err = fmt.Errorf("%w: строка %d: %d полей", ErrMalformedInputLine, line, len(fields))
		return entry
	}
	entry.Username = strings.TrimSpace(entry.Username)
	if entry.Username == "" {
		entry.Err = fmt.Errorf("%w: строка %d: пустое имя", ErrMalformedInputLine, line)
	}
	return entry
}
