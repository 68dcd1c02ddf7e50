package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo keeps the single refresh token hash on the users row
// (column refresh_token_hash).
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// SetRefresh overwrites the stored hash, invalidating any earlier token.
func (r *TokenRepo) SetRefresh(ctx context.Context, userID, hash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET refresh_token_hash=?, updated_at=? WHERE id=?",
		hash, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateRefresh swaps oldHash for newHash in one conditional UPDATE, so two
// requests presenting the same token cannot both succeed.
func (r *TokenRepo) RotateRefresh(ctx context.Context, userID, oldHash, newHash string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET refresh_token_hash=?, updated_at=? WHERE id=? AND refresh_token_hash=?",
		newHash, time.Now().UTC(), userID, oldHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClearRefresh revokes the user's refresh token (logout).
func (r *TokenRepo) ClearRefresh(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET refresh_token_hash=NULL, updated_at=? WHERE id=?",
		time.Now().UTC(), userID)
	return err
}
