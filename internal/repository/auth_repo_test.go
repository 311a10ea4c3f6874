package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"thermostat_runtime/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

var operatorClock = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func newMockOperators(t *testing.T) (*OperatorSQLite, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		_ = db.Close()
	})

	repo := NewOperatorSQLite(db)
	repo.now = func() time.Time { return operatorClock }
	return repo, mock
}

func TestOperatorSQLite_Create(t *testing.T) {
	tests := []struct {
		name    string
		expect  func(sqlmock.Sqlmock)
		wantID  int
		wantErr error
		anyErr  bool
	}{
		{
			name: "success",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertOperatorSQL)).
					WithArgs("alice", "h123", operatorClock).
					WillReturnResult(sqlmock.NewResult(42, 1))
			},
			wantID: 42,
		},
		{
			name: "duplicate username",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertOperatorSQL)).
					WithArgs("alice", "h123", operatorClock).
					WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: users.username (2067)"))
			},
			wantErr: ErrUsernameTaken,
		},
		{
			name: "exec error",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertOperatorSQL)).
					WithArgs("alice", "h123", operatorClock).
					WillReturnError(errors.New("disk I/O error"))
			},
			anyErr: true,
		},
		{
			name: "last insert id error",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertOperatorSQL)).
					WithArgs("alice", "h123", operatorClock).
					WillReturnResult(sqlmock.NewErrorResult(errors.New("no last id")))
			},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockOperators(t)
			tt.expect(mock)

			id, err := repo.Create(context.Background(), "alice", "h123")

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			case tt.anyErr:
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if errors.Is(err, ErrUsernameTaken) {
					t.Fatalf("generic failure reported as duplicate: %v", err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if id != tt.wantID {
				t.Fatalf("id = %d, want %d", id, tt.wantID)
			}
		})
	}
}

func TestOperatorSQLite_GetByUsername(t *testing.T) {
	local := time.FixedZone("UTC+2", 2*3600)

	t.Run("found", func(t *testing.T) {
		repo, mock := newMockOperators(t)
		rows := sqlmock.NewRows([]string{"id", "username", "password_hash", "created_at"}).
			AddRow(7, "alice", "h123", operatorClock.In(local))
		mock.ExpectQuery(regexp.QuoteMeta(selectOperatorSQL)).WithArgs("alice").WillReturnRows(rows)

		u, err := repo.GetByUsername(context.Background(), "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := models.User{ID: 7, Username: "alice", PasswordHash: "h123"}
		if u.ID != want.ID || u.Username != want.Username || u.PasswordHash != want.PasswordHash {
			t.Fatalf("got %+v, want %+v", u, want)
		}
		if !u.CreatedAt.Equal(operatorClock) || u.CreatedAt.Location() != time.UTC {
			t.Fatalf("created_at = %v, want %v in UTC", u.CreatedAt, operatorClock)
		}
	})

	t.Run("legacy row without created_at", func(t *testing.T) {
		repo, mock := newMockOperators(t)
		rows := sqlmock.NewRows([]string{"id", "username", "password_hash", "created_at"}).
			AddRow(8, "bob", "h456", nil)
		mock.ExpectQuery(regexp.QuoteMeta(selectOperatorSQL)).WithArgs("bob").WillReturnRows(rows)

		u, err := repo.GetByUsername(context.Background(), "bob")
		if err != nil || u == nil || !u.CreatedAt.IsZero() {
			t.Fatalf("unexpected result: %+v, %v", u, err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newMockOperators(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectOperatorSQL)).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

		u, err := repo.GetByUsername(context.Background(), "ghost")
		if err != nil || u != nil {
			t.Fatalf("expected (nil, nil), got (%+v, %v)", u, err)
		}
	})

	t.Run("query error", func(t *testing.T) {
		repo, mock := newMockOperators(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectOperatorSQL)).WithArgs("alice").WillReturnError(errors.New("boom"))

		if _, err := repo.GetByUsername(context.Background(), "alice"); err == nil {
			t.Fatal("expected error")
		}
	})
}
