package ledger

import (
	"database/sql"
	"fmt"

	"ms-parcel/internal/config"
	"ms-parcel/internal/logger"
	"ms-parcel/internal/models"

	_ "github.com/lib/pq"
)

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB creates a ledger store using an existing database connection
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	log.Info("DATABASE", "Creating transaction ledger with existing database connection")

	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize ledger tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize ledger tables: %w", err)
	}

	log.Info("DATABASE", "Transaction ledger initialized successfully with existing connection")
	return store, nil
}

func NewPostgreSQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*PostgreSQLStore, error) {
	log.LogDatabase("CONNECT", "postgresql", fmt.Sprintf("Connecting to PostgreSQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open PostgreSQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping PostgreSQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "postgresql", "PostgreSQL connection established and ledger tables initialized")
	return store, nil
}

func (s *PostgreSQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "postgresql", "Creating transactions table if not exists")

	transactionsQuery := `
    CREATE TABLE IF NOT EXISTS transactions (
        id VARCHAR(36) PRIMARY KEY,
        reference VARCHAR(64) NOT NULL UNIQUE,
        provider_txn_id VARCHAR(128),
        booking_id VARCHAR(36) NOT NULL,
        shipper_id VARCHAR(36) NOT NULL,
        amount BIGINT NOT NULL,
        currency VARCHAR(8) NOT NULL,
        method VARCHAR(32) NOT NULL,
        status VARCHAR(16) NOT NULL,
        idempotency_key VARCHAR(128) NOT NULL UNIQUE,
        retry_count INT NOT NULL DEFAULT 0,
        error_code VARCHAR(64),
        error_message VARCHAR(500),
        completed_at TIMESTAMP,
        webhook_received_at TIMESTAMP,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        updated_at TIMESTAMP
    );
    `

	if _, err := s.db.Exec(transactionsQuery); err != nil {
		return fmt.Errorf("failed to create transactions table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_transactions_booking_id ON transactions(booking_id);",
		"CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);",
		"CREATE INDEX IF NOT EXISTS idx_transactions_provider_txn_id ON transactions(provider_txn_id);",
	}

	for _, indexQuery := range indexes {
		if _, err := s.db.Exec(indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	s.log.LogDatabase("SUCCESS", "postgresql", "Ledger tables and indexes ready")
	return nil
}

const transactionColumns = `
    id, reference, provider_txn_id, booking_id, shipper_id, amount, currency,
    method, status, idempotency_key, retry_count, error_code, error_message,
    completed_at, webhook_received_at, created_at, updated_at
`

func scanTransaction(row interface{ Scan(...interface{}) error }) (*models.Transaction, error) {
	txn := &models.Transaction{}
	var providerTxnID, errorCode, errorMessage sql.NullString
	var completedAt, webhookReceivedAt, updatedAt sql.NullTime

	err := row.Scan(
		&txn.ID, &txn.Reference, &providerTxnID, &txn.BookingID, &txn.ShipperID,
		&txn.Amount, &txn.Currency, &txn.Method, &txn.Status, &txn.IdempotencyKey,
		&txn.RetryCount, &errorCode, &errorMessage,
		&completedAt, &webhookReceivedAt, &txn.CreatedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.ProviderTxnID = providerTxnID.String
	txn.ErrorCode = errorCode.String
	txn.ErrorMessage = errorMessage.String
	if completedAt.Valid {
		txn.CompletedAt = completedAt.Time
	}
	if webhookReceivedAt.Valid {
		txn.WebhookReceivedAt = webhookReceivedAt.Time
	}
	if updatedAt.Valid {
		txn.UpdatedAt = updatedAt.Time
	}
	return txn, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t sql.NullTime, valid bool) sql.NullTime {
	t.Valid = valid
	return t
}

// SaveTransaction inserts a new payment attempt row
func (s *PostgreSQLStore) SaveTransaction(txn *models.Transaction) error {
	s.log.LogDatabase("INSERT", "transactions", fmt.Sprintf("Saving transaction %s", txn.Reference))

	query := `
    INSERT INTO transactions (
        id, reference, provider_txn_id, booking_id, shipper_id, amount, currency,
        method, status, idempotency_key, retry_count, error_code, error_message,
        completed_at, webhook_received_at, created_at, updated_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
    `

	_, err := s.db.Exec(query,
		txn.ID, txn.Reference, nullString(txn.ProviderTxnID), txn.BookingID, txn.ShipperID,
		txn.Amount, txn.Currency, txn.Method, txn.Status, txn.IdempotencyKey,
		txn.RetryCount, nullString(txn.ErrorCode), nullString(txn.ErrorMessage),
		nullTime(sql.NullTime{Time: txn.CompletedAt}, !txn.CompletedAt.IsZero()),
		nullTime(sql.NullTime{Time: txn.WebhookReceivedAt}, !txn.WebhookReceivedAt.IsZero()),
		txn.CreatedAt,
		nullTime(sql.NullTime{Time: txn.UpdatedAt}, !txn.UpdatedAt.IsZero()),
	)

	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save transaction %s: %s", txn.Reference, err.Error()))
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	s.log.LogDatabase("SUCCESS", "transactions", fmt.Sprintf("Transaction %s saved successfully", txn.Reference))
	return nil
}

// UpdateTransaction rewrites the mutable fields of an attempt
func (s *PostgreSQLStore) UpdateTransaction(txn *models.Transaction) error {
	s.log.LogDatabase("UPDATE", "transactions", fmt.Sprintf("Updating transaction %s", txn.Reference))

	query := `
    UPDATE transactions SET
        provider_txn_id = $1, status = $2, retry_count = $3,
        error_code = $4, error_message = $5,
        completed_at = $6, webhook_received_at = $7, updated_at = $8
    WHERE id = $9
    `

	_, err := s.db.Exec(query,
		nullString(txn.ProviderTxnID), txn.Status, txn.RetryCount,
		nullString(txn.ErrorCode), nullString(txn.ErrorMessage),
		nullTime(sql.NullTime{Time: txn.CompletedAt}, !txn.CompletedAt.IsZero()),
		nullTime(sql.NullTime{Time: txn.WebhookReceivedAt}, !txn.WebhookReceivedAt.IsZero()),
		nullTime(sql.NullTime{Time: txn.UpdatedAt}, !txn.UpdatedAt.IsZero()),
		txn.ID,
	)

	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to update transaction %s: %s", txn.Reference, err.Error()))
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	return nil
}

// GetByReference retrieves a transaction by its system reference
func (s *PostgreSQLStore) GetByReference(reference string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`

	txn, err := scanTransaction(s.db.QueryRow(query, reference))
	if err != nil {
		if err == sql.ErrNoRows {
			s.log.LogDatabase("NOT_FOUND", "transactions", fmt.Sprintf("Transaction %s not found", reference))
			return nil, fmt.Errorf("transaction not found")
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get transaction %s: %s", reference, err.Error()))
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetByProviderTxnID retrieves a transaction by the external provider id
func (s *PostgreSQLStore) GetByProviderTxnID(providerTxnID string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE provider_txn_id = $1`

	txn, err := scanTransaction(s.db.QueryRow(query, providerTxnID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("transaction not found")
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetByIdempotencyKey retrieves a transaction by the caller-supplied key
func (s *PostgreSQLStore) GetByIdempotencyKey(key string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`

	txn, err := scanTransaction(s.db.QueryRow(query, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// ListByBooking retrieves the payment attempt history for a booking, newest first
func (s *PostgreSQLStore) ListByBooking(bookingID string) ([]*models.Transaction, error) {
	s.log.LogDatabase("SELECT", "transactions", fmt.Sprintf("Listing transactions for booking %s", bookingID))

	query := `SELECT ` + transactionColumns + `
    FROM transactions
    WHERE booking_id = $1
    ORDER BY created_at DESC
    `

	rows, err := s.db.Query(query, bookingID)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to list transactions: %s", err.Error()))
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			s.log.Error("DATABASE", fmt.Sprintf("Failed to scan transaction row: %s", err.Error()))
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return txns, nil
}

// HasCompletedForBooking reports whether a COMPLETED attempt already exists
func (s *PostgreSQLStore) HasCompletedForBooking(bookingID string) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM transactions WHERE booking_id = $1 AND status = $2`
	if err := s.db.QueryRow(query, bookingID, models.TxnCompleted).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count completed transactions: %w", err)
	}
	return count > 0, nil
}

func (s *PostgreSQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "postgresql", "Closing PostgreSQL connection")
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}
