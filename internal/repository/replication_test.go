package repository

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// stubRow — pgx.Row с заранее заданными значениями.
type stubRow struct {
	caughtUp bool
	seconds  float64
	err      error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*bool) = r.caughtUp
	*dest[1].(*float64) = r.seconds
	return nil
}

// stubRows — pgx.Rows поверх заранее заданных значений столбцов.
type stubRows struct {
	pgx.Rows
	values [][]any
	pos    int
}

func (r *stubRows) Next() bool {
	r.pos++
	return r.pos <= len(r.values)
}

func (r *stubRows) Scan(dest ...any) error {
	for i, v := range r.values[r.pos-1] {
		target := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(v))
	}
	return nil
}

func (r *stubRows) Close()     {}
func (r *stubRows) Err() error { return nil }

// stubDB — DBTX со строкой для QueryRow и набором строк для Query.
type stubDB struct {
	row  stubRow
	rows [][]any
}

func (d stubDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (d stubDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return &stubRows{values: d.rows}, nil
}

func (d stubDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return d.row
}

func TestReplicaLag(t *testing.T) {
	tests := []struct {
		name string
		row  stubRow
		want time.Duration
	}{
		// primary простаивает: возраст транзакции растёт, но WAL воспроизведён полностью
		{name: "реплика догнала при простое primary", row: stubRow{caughtUp: true, seconds: 600}, want: 0},
		{name: "реплика отстаёт", row: stubRow{seconds: 2.5}, want: 2500 * time.Millisecond},
		{name: "отрицательный возраст", row: stubRow{seconds: -1}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lag, err := NewReplicationRepository(stubDB{row: tt.row}).ReplicaLag(context.Background())
			if err != nil {
				t.Fatalf("ReplicaLag() ошибка: %v", err)
			}
			if lag != tt.want {
				t.Errorf("ReplicaLag() = %v, ожидалось %v", lag, tt.want)
			}
		})
	}
}

func TestReplicaLag_QueryError(t *testing.T) {
	dbErr := errors.New("connection refused")
	_, err := NewReplicationRepository(stubDB{row: stubRow{err: dbErr}}).ReplicaLag(context.Background())
	if !errors.Is(err, dbErr) {
		t.Errorf("ожидалась исходная ошибка в цепочке, получено %v", err)
	}
}
