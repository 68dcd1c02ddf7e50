package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables used by the MySQL stores. Each statement is
// idempotent so Migrate can run on every deploy.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                  CHAR(36)     NOT NULL PRIMARY KEY,
		username            VARCHAR(64)  NOT NULL,
		email               VARCHAR(255) NOT NULL,
		fullname            VARCHAR(255) NOT NULL,
		password_hash       VARCHAR(255) NULL,
		external_id         VARCHAR(255) NULL,
		is_external_account TINYINT(1)   NOT NULL DEFAULT 0,
		role                ENUM('student','admin','superadmin') NOT NULL DEFAULT 'student',
		refresh_token_hash  CHAR(64)     NULL,
		interests           JSON         NOT NULL,
		created_at          DATETIME     NOT NULL,
		updated_at          DATETIME     NOT NULL,
		UNIQUE KEY uq_users_username (username),
		UNIQUE KEY uq_users_email (email),
		UNIQUE KEY uq_users_external_id (external_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS events (
		id                CHAR(36)     NOT NULL PRIMARY KEY,
		owner_id          CHAR(36)     NOT NULL,
		organizer_name    VARCHAR(255) NOT NULL,
		name              VARCHAR(255) NOT NULL,
		title             VARCHAR(255) NOT NULL,
		description       TEXT         NULL,
		event_date        VARCHAR(32)  NOT NULL,
		event_time        VARCHAR(32)  NOT NULL,
		occurs_at         DATETIME     NOT NULL,
		venue             VARCHAR(255) NOT NULL,
		domains           JSON         NOT NULL,
		registration_link VARCHAR(1024) NULL,
		thumbnail_url     VARCHAR(1024) NULL,
		is_approved       TINYINT(1)   NOT NULL DEFAULT 1,
		created_at        DATETIME     NOT NULL,
		updated_at        DATETIME     NOT NULL,
		KEY idx_events_occurs_at (occurs_at),
		KEY idx_events_owner (owner_id, occurs_at),
		CONSTRAINT fk_events_owner FOREIGN KEY (owner_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
