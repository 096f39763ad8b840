package repository

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		address     VARCHAR(42) PRIMARY KEY,
		name        VARCHAR(100) NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		verified    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS credit_scores (
		agent_address   VARCHAR(42) PRIMARY KEY REFERENCES agents(address),
		score           INTEGER NOT NULL DEFAULT 300 CHECK (score >= 300 AND score <= 850),
		tier            VARCHAR(20) NOT NULL DEFAULT 'No Credit',
		max_loan_amount BIGINT NOT NULL DEFAULT 25000000,
		total_loans     INTEGER NOT NULL DEFAULT 0,
		repaid_loans    INTEGER NOT NULL DEFAULT 0,
		defaulted_loans INTEGER NOT NULL DEFAULT 0,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS credit_score_history (
		id            BIGSERIAL PRIMARY KEY,
		agent_address VARCHAR(42) NOT NULL,
		loan_id       BIGINT,
		old_score     INTEGER NOT NULL,
		new_score     INTEGER NOT NULL,
		reason        VARCHAR(32) NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		loan_id          BIGSERIAL PRIMARY KEY,
		borrower_address VARCHAR(42) NOT NULL REFERENCES agents(address),
		lender_address   VARCHAR(42),
		amount           BIGINT NOT NULL,
		interest_rate    INTEGER NOT NULL,
		duration         INTEGER NOT NULL,
		purpose          TEXT NOT NULL DEFAULT '',
		status           SMALLINT NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		funded_at        TIMESTAMPTZ,
		repaid_at        TIMESTAMPTZ,
		tx_hash          VARCHAR(66)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_borrower_status ON loans (borrower_address, status)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_lender ON loans (lender_address)`,
	`CREATE TABLE IF NOT EXISTS pending_verifications (
		id            BIGSERIAL PRIMARY KEY,
		agent_address VARCHAR(42) NOT NULL UNIQUE REFERENCES agents(address),
		token         VARCHAR(64) NOT NULL UNIQUE,
		status        VARCHAR(20) NOT NULL DEFAULT 'pending',
		x_username    VARCHAR(50),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		verified_at   TIMESTAMPTZ,
		verified_by   VARCHAR(50)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id             BIGSERIAL PRIMARY KEY,
		loan_id        BIGINT NOT NULL REFERENCES loans(loan_id),
		sender_address VARCHAR(42) NOT NULL,
		content        TEXT NOT NULL,
		is_read        BOOLEAN NOT NULL DEFAULT FALSE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_loan ON messages (loan_id)`,
	`CREATE TABLE IF NOT EXISTS webhooks (
		id            BIGSERIAL PRIMARY KEY,
		agent_address VARCHAR(42) NOT NULL,
		url           TEXT NOT NULL,
		events        TEXT NOT NULL DEFAULT '[]',
		secret        TEXT NOT NULL,
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (agent_address, url)
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_logs (
		id              BIGSERIAL PRIMARY KEY,
		webhook_id      BIGINT NOT NULL,
		delivery_id     VARCHAR(36) NOT NULL,
		event           VARCHAR(50) NOT NULL,
		payload         TEXT NOT NULL,
		response_status INTEGER NOT NULL DEFAULT 0,
		response_body   TEXT,
		success         BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS auto_repay_configs (
		id            BIGSERIAL PRIMARY KEY,
		agent_address VARCHAR(42) NOT NULL,
		loan_id       BIGINT NOT NULL REFERENCES loans(loan_id),
		threshold     BIGINT NOT NULL,
		min_balance   BIGINT NOT NULL,
		enabled       BOOLEAN NOT NULL DEFAULT TRUE,
		executed_at   TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (agent_address, loan_id)
	)`,
	`CREATE TABLE IF NOT EXISTS insurance_policies (
		id              BIGSERIAL PRIMARY KEY,
		loan_id         BIGINT NOT NULL REFERENCES loans(loan_id),
		lender_address  VARCHAR(42) NOT NULL,
		coverage_amount BIGINT NOT NULL,
		premium_paid    BIGINT NOT NULL,
		tx_hash         VARCHAR(66),
		claimed         BOOLEAN NOT NULL DEFAULT FALSE,
		claim_tx_hash   VARCHAR(66),
		claimed_at      TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS referrals (
		id               BIGSERIAL PRIMARY KEY,
		referrer_address VARCHAR(42) NOT NULL,
		referred_address VARCHAR(42) NOT NULL,
		referral_code    VARCHAR(32) NOT NULL,
		status           VARCHAR(20) NOT NULL DEFAULT 'pending',
		reward_amount    BIGINT NOT NULL DEFAULT 0,
		tx_hash          VARCHAR(66),
		paid_at          TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (referrer_address, referred_address)
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		address     TEXT PRIMARY KEY,
		name        TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		verified    BOOLEAN NOT NULL DEFAULT 0,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS credit_scores (
		agent_address   TEXT PRIMARY KEY REFERENCES agents(address),
		score           INTEGER NOT NULL DEFAULT 300 CHECK (score >= 300 AND score <= 850),
		tier            TEXT NOT NULL DEFAULT 'No Credit',
		max_loan_amount INTEGER NOT NULL DEFAULT 25000000,
		total_loans     INTEGER NOT NULL DEFAULT 0,
		repaid_loans    INTEGER NOT NULL DEFAULT 0,
		defaulted_loans INTEGER NOT NULL DEFAULT 0,
		updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS credit_score_history (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_address TEXT NOT NULL,
		loan_id       INTEGER,
		old_score     INTEGER NOT NULL,
		new_score     INTEGER NOT NULL,
		reason        TEXT NOT NULL,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		loan_id          INTEGER PRIMARY KEY AUTOINCREMENT,
		borrower_address TEXT NOT NULL REFERENCES agents(address),
		lender_address   TEXT,
		amount           INTEGER NOT NULL,
		interest_rate    INTEGER NOT NULL,
		duration         INTEGER NOT NULL,
		purpose          TEXT NOT NULL DEFAULT '',
		status           INTEGER NOT NULL DEFAULT 0,
		created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		funded_at        DATETIME,
		repaid_at        DATETIME,
		tx_hash          TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_borrower_status ON loans (borrower_address, status)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_lender ON loans (lender_address)`,
	`CREATE TABLE IF NOT EXISTS pending_verifications (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_address TEXT NOT NULL UNIQUE REFERENCES agents(address),
		token         TEXT NOT NULL UNIQUE,
		status        TEXT NOT NULL DEFAULT 'pending',
		x_username    TEXT,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		verified_at   DATETIME,
		verified_by   TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		loan_id        INTEGER NOT NULL REFERENCES loans(loan_id),
		sender_address TEXT NOT NULL,
		content        TEXT NOT NULL,
		is_read        BOOLEAN NOT NULL DEFAULT 0,
		created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_loan ON messages (loan_id)`,
	`CREATE TABLE IF NOT EXISTS webhooks (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_address TEXT NOT NULL,
		url           TEXT NOT NULL,
		events        TEXT NOT NULL DEFAULT '[]',
		secret        TEXT NOT NULL,
		active        BOOLEAN NOT NULL DEFAULT 1,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (agent_address, url)
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_logs (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		webhook_id      INTEGER NOT NULL,
		delivery_id     TEXT NOT NULL,
		event           TEXT NOT NULL,
		payload         TEXT NOT NULL,
		response_status INTEGER NOT NULL DEFAULT 0,
		response_body   TEXT,
		success         BOOLEAN NOT NULL DEFAULT 0,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS auto_repay_configs (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_address TEXT NOT NULL,
		loan_id       INTEGER NOT NULL REFERENCES loans(loan_id),
		threshold     INTEGER NOT NULL,
		min_balance   INTEGER NOT NULL,
		enabled       BOOLEAN NOT NULL DEFAULT 1,
		executed_at   DATETIME,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (agent_address, loan_id)
	)`,
	`CREATE TABLE IF NOT EXISTS insurance_policies (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		loan_id         INTEGER NOT NULL REFERENCES loans(loan_id),
		lender_address  TEXT NOT NULL,
		coverage_amount INTEGER NOT NULL,
		premium_paid    INTEGER NOT NULL,
		tx_hash         TEXT,
		claimed         BOOLEAN NOT NULL DEFAULT 0,
		claim_tx_hash   TEXT,
		claimed_at      DATETIME,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS referrals (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		referrer_address TEXT NOT NULL,
		referred_address TEXT NOT NULL,
		referral_code    TEXT NOT NULL,
		status           TEXT NOT NULL DEFAULT 'pending',
		reward_amount    INTEGER NOT NULL DEFAULT 0,
		tx_hash          TEXT,
		paid_at          DATETIME,
		created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (referrer_address, referred_address)
	)`,
}

// EnsureSchema creates any missing tables for the active backend
func (d *DB) EnsureSchema(ctx context.Context) error {
	stmts := postgresSchema
	if d.DriverName() == "sqlite3" {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := d.x.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
