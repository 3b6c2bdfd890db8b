package database

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/blazewallet/schedvault/config"
)

// Package-level singleton so the API and worker paths share one pool.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database connection error: %v", err)
		return nil, err
	}
	err = createScheduledTransactionTable(db)
	if err != nil {
		return nil, err
	}
	err = createDecryptAuditTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// createScheduledTransactionTable creates the PostgreSQL table backing the
// ScheduledTransaction model. encrypted_auth is a nullable JSONB column:
// present only while status is pending, nulled by the same statement that
// moves a row out of pending.
func createScheduledTransactionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS scheduled_transactions (
			id SERIAL PRIMARY KEY,
			scheduled_tx_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			chain TEXT NOT NULL,
			from_address TEXT NOT NULL,
			to_address TEXT NOT NULL,
			amount NUMERIC NOT NULL,
			token_address TEXT,
			token_symbol TEXT,
			memo TEXT,
			scheduled_for TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			max_wait_hours INTEGER NOT NULL DEFAULT 24,
			priority TEXT NOT NULL DEFAULT 'standard',
			status TEXT NOT NULL DEFAULT 'pending',
			encrypted_auth JSONB,
			retry_count INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			executed_at TIMESTAMPTZ,
			transaction_hash TEXT,
			claimed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_scheduled_transactions_user_status
			ON scheduled_transactions (user_id, status);
		CREATE INDEX IF NOT EXISTS idx_scheduled_transactions_due
			ON scheduled_transactions (status, scheduled_for, expires_at)
	`)
	return err
}

// createDecryptAuditTable creates the audit trail of unwrap/decrypt
// attempts. Rows never contain key material, only outcomes.
func createDecryptAuditTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS scheduled_tx_decrypt_audit (
			id SERIAL PRIMARY KEY,
			scheduled_tx_id TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			reason TEXT,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}
