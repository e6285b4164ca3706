package ledger

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/Alias1177/perpbot/models"
)

// PostgresLedger stores closed trades in Postgres for durable off-host
// history. It implements the same TradeLedger interface as the file ledger.
type PostgresLedger struct {
	db *sql.DB
}

// ConnectionParams holds PostgreSQL connection parameters.
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewPostgresLedger opens the database connection and ensures the trades
// table exists.
func NewPostgresLedger(params ConnectionParams) (*PostgresLedger, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	return &PostgresLedger{db: db}, nil
}

// createTables creates the trades table if it doesn't exist.
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			asset TEXT NOT NULL,
			direction TEXT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			size DOUBLE PRECISION NOT NULL,
			leverage INT NOT NULL,
			pnl_pct DOUBLE PRECISION NOT NULL,
			opened_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP NOT NULL,
			exit_reason TEXT NOT NULL
		)
	`)
	return err
}

// Append inserts one closed trade.
func (l *PostgresLedger) Append(trade models.Trade) error {
	_, err := l.db.Exec(`
		INSERT INTO trades (
			asset, direction, entry_price, exit_price, size, leverage,
			pnl_pct, opened_at, closed_at, exit_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		trade.Asset, string(trade.Direction), trade.EntryPrice, trade.ExitPrice,
		trade.Size, trade.Leverage, trade.PnlPct, trade.OpenedAt, trade.ClosedAt,
		trade.ExitReason,
	)
	return err
}

// Recent returns the n most recent trades by close time, oldest first.
func (l *PostgresLedger) Recent(n int) ([]models.Trade, error) {
	rows, err := l.db.Query(`
		SELECT asset, direction, entry_price, exit_price, size, leverage,
		       pnl_pct, opened_at, closed_at, exit_reason
		FROM (
			SELECT * FROM trades ORDER BY id DESC LIMIT $1
		) recent
		ORDER BY id ASC
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var direction string
		if err := rows.Scan(
			&t.Asset, &direction, &t.EntryPrice, &t.ExitPrice, &t.Size,
			&t.Leverage, &t.PnlPct, &t.OpenedAt, &t.ClosedAt, &t.ExitReason,
		); err != nil {
			return nil, err
		}
		t.Direction = models.Direction(direction)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Count returns the total number of recorded trades.
func (l *PostgresLedger) Count() (int, error) {
	var count int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&count)
	return count, err
}

// Close releases the database connection.
func (l *PostgresLedger) Close() error {
	return l.db.Close()
}
