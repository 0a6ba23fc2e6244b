package calllog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockDB implements the DB interface for testing.
type mockDB struct {
	execFunc  func(sql string, args ...any) (pgconn.CommandTag, error)
	queryFunc func(sql string, args ...any) (pgx.Rows, error)

	execSQL  []string
	execArgs [][]any
}

func (m *mockDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return nil
}

func (m *mockDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(sql, args...)
	}
	return nil, errors.New("unexpected Query")
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execSQL = append(m.execSQL, sql)
	m.execArgs = append(m.execArgs, args)
	if m.execFunc != nil {
		return m.execFunc(sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func TestStore_Migrate(t *testing.T) {
	db := &mockDB{}
	s := NewStore(db)

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "CREATE TABLE IF NOT EXISTS call_log") {
		t.Errorf("Migrate executed %q", db.execSQL)
	}
}

func TestStore_MigrateError(t *testing.T) {
	db := &mockDB{
		execFunc: func(string, ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("permission denied")
		},
	}
	s := NewStore(db)

	err := s.Migrate(context.Background())
	if err == nil || !strings.Contains(err.Error(), "calllog: migrate") {
		t.Errorf("Migrate error = %v", err)
	}
}

func TestStore_Ping(t *testing.T) {
	db := &mockDB{}
	s := NewStore(db)

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if len(db.execSQL) != 1 || db.execSQL[0] != "SELECT 1" {
		t.Errorf("Ping executed %q", db.execSQL)
	}
}

func TestStore_PingError(t *testing.T) {
	db := &mockDB{
		execFunc: func(string, ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("connection refused")
		},
	}
	s := NewStore(db)

	err := s.Ping(context.Background())
	if err == nil || !strings.Contains(err.Error(), "calllog: ping") {
		t.Errorf("Ping error = %v", err)
	}
}

func TestStore_Record(t *testing.T) {
	db := &mockDB{}
	s := NewStore(db)

	e := Entry{
		ConversationUUID: "conv-1",
		RecordingUUID:    "rec-1",
		Transcript:       "next train to brighton",
		FromCRS:          "LBG",
		ToCRS:            "BTN",
		Message:          "The next train to Brighton from London Bridge will be the 14:05.",
		Status:           "notified",
	}
	if err := s.Record(context.Background(), e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if len(db.execArgs) != 1 {
		t.Fatalf("exec count = %d, want 1", len(db.execArgs))
	}
	args := db.execArgs[0]
	if args[0] != "conv-1" || args[3] != "LBG" || args[6] != "notified" {
		t.Errorf("insert args = %v", args)
	}
	createdAt, ok := args[7].(time.Time)
	if !ok || createdAt.IsZero() {
		t.Errorf("created_at arg = %v, want non-zero time", args[7])
	}
}

func TestStore_RecordKeepsExplicitTimestamp(t *testing.T) {
	db := &mockDB{}
	s := NewStore(db)

	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	if err := s.Record(context.Background(), Entry{Status: "fallback", CreatedAt: at}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got := db.execArgs[0][7]; got != at {
		t.Errorf("created_at arg = %v, want %v", got, at)
	}
}

func TestStore_RecordError(t *testing.T) {
	db := &mockDB{
		execFunc: func(string, ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("connection reset")
		},
	}
	s := NewStore(db)

	err := s.Record(context.Background(), Entry{Status: "notified"})
	if err == nil || !strings.Contains(err.Error(), "calllog: record") {
		t.Errorf("Record error = %v", err)
	}
}
