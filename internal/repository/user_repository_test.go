package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-events/internal/model"
)

var userColumns = []string{"id", "username", "email", "fullname", "password_hash", "external_id",
	"is_external_account", "role", "refresh_token_hash", "interests", "created_at", "updated_at"}

func TestUserRepo_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "success",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs("u1", "alice", "alice@example.com", "Alice", "hash", nil, false, "student", nil,
						[]byte(`["technical"]`), now, now).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "duplicate username",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO users`).
					WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'alice'"})
			},
			wantErr: ErrConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.mock(mock)

			u := &model.User{ID: "u1", Username: "  Alice ", Email: "ALICE@example.com", Fullname: "Alice",
				PasswordHash: "hash", Role: model.RoleStudent, Interests: []string{"technical"},
				CreatedAt: now, UpdatedAt: now}
			err = NewUserRepo(db).Create(ctx, u)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", u.Username)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepo_GetByLogin(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM users WHERE username=\? OR email=\?`).
		WithArgs("alice", "alice").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u1", "alice", "alice@example.com", "Alice", "hash", nil, false, "admin", "abc",
				[]byte(`["sports","technical"]`), now, now))

	u, err := NewUserRepo(db).GetByLogin(context.Background(), " Alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "admin", u.Role)
	assert.Equal(t, "abc", u.RefreshTokenHash)
	assert.Equal(t, "", u.ExternalID)
	assert.Equal(t, []string{"sports", "technical"}, u.Interests)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM users WHERE id=\?`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = NewUserRepo(db).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepo_SearchByUsernameEscapes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM users WHERE username LIKE \?`).
		WithArgs(`a\_b%`, 20).
		WillReturnRows(sqlmock.NewRows(userColumns))

	users, err := NewUserRepo(db).SearchByUsername(context.Background(), "A_b", 20)
	require.NoError(t, err)
	assert.Empty(t, users)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_UpdateRole(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{"updated", 1, nil},
		{"missing user", 0, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectExec(`UPDATE users SET role=\?`).
				WithArgs("admin", sqlmock.AnyArg(), "u1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err = NewUserRepo(db).UpdateRole(context.Background(), "u1", "admin")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestUserRepo_UpdateProfileDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET fullname=\?, email=\?`).
		WithArgs("Bob", "taken@example.com", sqlmock.AnyArg(), "u2").
		WillReturnError(&mysql.MySQLError{Number: 1062})

	err = NewUserRepo(db).UpdateProfile(context.Background(), "u2", "Bob", "Taken@Example.com")
	assert.ErrorIs(t, err, ErrConflict)
}
