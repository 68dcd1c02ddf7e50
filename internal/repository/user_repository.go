package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/campus-events/internal/model"
)

// UserRepo is the MySQL UserStore.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userCols = "id,username,email,fullname,password_hash,external_id,is_external_account,role,refresh_token_hash,interests,created_at,updated_at"

// Create inserts u. Username and email are normalized first.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Username = model.NormalizeUsername(u.Username)
	u.Email = model.NormalizeEmail(u.Email)
	if u.Interests == nil {
		u.Interests = []string{}
	}
	interests, err := json.Marshal(u.Interests)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO users ("+userCols+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?)",
		u.ID, u.Username, u.Email, u.Fullname, nullString(u.PasswordHash), nullString(u.ExternalID),
		u.IsExternalAccount, u.Role, nullString(u.RefreshTokenHash), interests, u.CreatedAt, u.UpdatedAt)
	return mapWriteErr(err)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, "SELECT "+userCols+" FROM users WHERE id=? LIMIT 1", id)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "SELECT "+userCols+" FROM users WHERE email=? LIMIT 1", model.NormalizeEmail(email))
}

func (r *UserRepo) GetByLogin(ctx context.Context, identifier string) (*model.User, error) {
	id := strings.ToLower(strings.TrimSpace(identifier))
	return r.getOne(ctx, "SELECT "+userCols+" FROM users WHERE username=? OR email=? LIMIT 1", id, id)
}

func (r *UserRepo) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return r.getOne(ctx, "SELECT "+userCols+" FROM users WHERE external_id=? LIMIT 1", externalID)
}

// SearchByUsername matches usernames starting with prefix.
func (r *UserRepo) SearchByUsername(ctx context.Context, prefix string, limit int) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userCols+" FROM users WHERE username LIKE ? ORDER BY username ASC LIMIT ?",
		escapeLike(model.NormalizeUsername(prefix))+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id, fullname, email string) error {
	return r.exec(ctx, "UPDATE users SET fullname=?, email=?, updated_at=? WHERE id=?",
		fullname, model.NormalizeEmail(email), time.Now().UTC(), id)
}

func (r *UserRepo) UpdateInterests(ctx context.Context, id string, interests []string) error {
	bs, err := json.Marshal(interests)
	if err != nil {
		return err
	}
	return r.exec(ctx, "UPDATE users SET interests=?, updated_at=? WHERE id=?", bs, time.Now().UTC(), id)
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.exec(ctx, "UPDATE users SET password_hash=?, updated_at=? WHERE id=?", hash, time.Now().UTC(), id)
}

func (r *UserRepo) UpdateRole(ctx context.Context, id, role string) error {
	return r.exec(ctx, "UPDATE users SET role=?, updated_at=? WHERE id=?", role, time.Now().UTC(), id)
}

// LinkExternal attaches a Google subject to an existing local account.
func (r *UserRepo) LinkExternal(ctx context.Context, id, externalID string) error {
	return r.exec(ctx, "UPDATE users SET external_id=?, updated_at=? WHERE id=?", externalID, time.Now().UTC(), id)
}

func (r *UserRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return mapWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, q string, args ...any) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*model.User, error) {
	var (
		u                 model.User
		pwd, ext, refresh sql.NullString
		interests         []byte
	)
	if err := s.Scan(&u.ID, &u.Username, &u.Email, &u.Fullname, &pwd, &ext, &u.IsExternalAccount,
		&u.Role, &refresh, &interests, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.PasswordHash = pwd.String
	u.ExternalID = ext.String
	u.RefreshTokenHash = refresh.String
	u.Interests = []string{}
	if len(interests) > 0 {
		if err := json.Unmarshal(interests, &u.Interests); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

// mapWriteErr turns MySQL duplicate-key violations (1062) into ErrConflict.
func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return ErrConflict
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
