package database

import (
	"database/sql"
	"log"
	"sync"

	"github.com/carebridge/settlement/cache"
	"github.com/carebridge/settlement/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
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
		newCache, errCache := cache.NewCache()
		if errCache != nil {
			log.Printf("cache init error, continuing without cache: %v", errCache)
		}
		instance = &Datasource{Conn: con, Cache: newCache}
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
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createPayeeTable(db)
	if err != nil {
		return nil, err
	}
	err = createWorkRecordTable(db)
	if err != nil {
		return nil, err
	}
	err = createSettlementAttemptTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createPayeeTable creates a PostgreSQL table for the Payee struct
func createPayeeTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS payees (
			id SERIAL PRIMARY KEY,
			payee_id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL CHECK (kind IN ('caregiver', 'housekeeper', 'marketing_partner', 'training_center')),
			name TEXT NOT NULL,
			external_account_reference TEXT,
			account_verified BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	if err != nil {
		log.Printf("Error creating payees table: %v", err)
	}
	return err
}

// createWorkRecordTable creates a PostgreSQL table for the WorkRecord struct.
// All payee kinds share one polymorphic ledger table; locking is per payee via
// the (payee_id, payment_status) index.
func createWorkRecordTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS work_records (
			id SERIAL PRIMARY KEY,
			record_id TEXT NOT NULL UNIQUE,
			payee_id TEXT NOT NULL REFERENCES payees(payee_id),
			payee_kind TEXT NOT NULL,
			client_id TEXT NOT NULL,
			work_date DATE NOT NULL,
			hours_worked NUMERIC(8,2) NOT NULL CHECK (hours_worked >= 0),
			service_kind TEXT NOT NULL,
			gross_client_charge NUMERIC(20,2) NOT NULL CHECK (gross_client_charge > 0),
			payee_earnings NUMERIC(20,2) NOT NULL,
			marketing_commission NUMERIC(20,2) NOT NULL,
			training_commission NUMERIC(20,2) NOT NULL,
			platform_margin NUMERIC(20,2) NOT NULL,
			currency TEXT NOT NULL,
			pricing_version TEXT NOT NULL,
			payment_status TEXT NOT NULL DEFAULT 'pending' CHECK (payment_status IN ('pending', 'paid', 'failed')),
			paid_at TIMESTAMP,
			external_transfer_reference TEXT,
			failure_reason TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_work_records_payee_status ON work_records (payee_id, payment_status)
	`)
	if err != nil {
		log.Printf("Error creating work_records table: %v", err)
	}
	return err
}

// createSettlementAttemptTable creates a PostgreSQL table for the SettlementAttempt struct
func createSettlementAttemptTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS settlement_attempts (
			id SERIAL PRIMARY KEY,
			attempt_id TEXT NOT NULL UNIQUE,
			payee_id TEXT NOT NULL,
			requested_amount NUMERIC(20,2) NOT NULL,
			currency TEXT NOT NULL,
			entry_ids TEXT[] NOT NULL,
			idempotency_key TEXT NOT NULL,
			external_reference TEXT,
			outcome TEXT NOT NULL CHECK (outcome IN ('success', 'failed', 'in_doubt', 'resolved_success', 'resolved_failed')),
			reason TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_settlement_attempts_key ON settlement_attempts (idempotency_key)
	`)
	if err != nil {
		log.Printf("Error creating settlement_attempts table: %v", err)
	}
	return err
}
