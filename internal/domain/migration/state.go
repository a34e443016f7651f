// Пакет migration — конечный автомат объединения аккаунтов одного имени.
//
// Жизненный цикл имени пользователя:
//   - not_started → evaluating
//   - evaluating → already_global | attached_only | merged | rejected
//
// Конечные состояния не перезапускаются автоматически: повторная
// обработка — это новый проход пакетного мигратора с новым автоматом.
package migration

import (
	"fmt"
	"time"
)

// State — состояние обработки имени пользователя.
type State string

const (
	// StateNotStarted — обработка не начиналась
	StateNotStarted State = "not_started"
	// StateEvaluating — идёт анализ локальных аккаунтов
	StateEvaluating State = "evaluating"
	// StateAlreadyGlobal — глобальный аккаунт уже существует, изменений нет
	StateAlreadyGlobal State = "already_global"
	// StateAttachedOnly — к существующему глобальному аккаунту привязаны недостающие локальные
	StateAttachedOnly State = "attached_only"
	// StateMerged — создан глобальный аккаунт
	StateMerged State = "merged"
	// StateRejected — объединение отклонено (причина в Tracker.Reason)
	StateRejected State = "rejected"
)

// validTransitions — матрица допустимых переходов.
var validTransitions = map[State]map[State]bool{
	StateNotStarted: {StateEvaluating: true},
	StateEvaluating: {
		StateAlreadyGlobal: true,
		StateAttachedOnly:  true,
		StateMerged:        true,
		StateRejected:      true,
	},
	StateAlreadyGlobal: {},
	StateAttachedOnly:  {},
	StateMerged:        {},
	StateRejected:      {},
}

// IsTerminal сообщает, является ли состояние конечным.
func (s State) IsTerminal() bool {
	switch s {
	case StateAlreadyGlobal, StateAttachedOnly, StateMerged, StateRejected:
		return true
	default:
		return false
	}
}

// TransitionRecord — запись о переходе между состояниями.
type TransitionRecord struct {
	From      State
	To        State
	Timestamp time.Time
}

// Tracker — автомат состояний для одного имени пользователя.
// Используется одной горутиной: мигратор обрабатывает имена последовательно.
type Tracker struct {
	username string
	current  State
	reason   error
	history  []TransitionRecord
}

// NewTracker создаёт автомат в состоянии not_started.
func NewTracker(username string) *Tracker {
	return &Tracker{
		username: username,
		current:  StateNotStarted,
		history:  make([]TransitionRecord, 0, 2),
	}
}

// Username возвращает имя пользователя.
func (t *Tracker) Username() string {
	return t.username
}

// Current возвращает текущее состояние.
func (t *Tracker) Current() State {
	return t.current
}

// Reason возвращает причину отклонения (или nil).
func (t *Tracker) Reason() error {
	return t.reason
}

// TransitionTo выполняет переход в целевое состояние.
func (t *Tracker) TransitionTo(target State) error {
	transitions, ok := validTransitions[t.current]
	if !ok || !transitions[target] {
		return &TransitionError{From: t.current, To: target}
	}
	t.history = append(t.history, TransitionRecord{
		From:      t.current,
		To:        target,
		Timestamp: time.Now().UTC(),
	})
	t.current = target
	return nil
}

// Reject переводит автомат в rejected с указанной причиной.
func (t *Tracker) Reject(reason error) error {
	if err := t.TransitionTo(StateRejected); err != nil {
		return err
	}
	t.reason = reason
	return nil
}

// History возвращает историю переходов (копия).
func (t *Tracker) History() []TransitionRecord {
	result := make([]TransitionRecord, len(t.history))
	copy(result, t.history)
	return result
}

// TransitionError — недопустимый переход между состояниями.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("INVALID_TRANSITION: переход %s → %s недопустим", e.From, e.To)
}
