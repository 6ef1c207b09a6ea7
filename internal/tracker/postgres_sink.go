package tracker

import (
	"database/sql"

	_ "github.com/lib/pq"

	"momentum/internal/models"
)

// PostgresSink persists closed trades to a `trades` table. It is a second
// concrete implementation of Sink, selected via config when a durable,
// queryable trade log is preferred over the JSON-lines file.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) WriteTrade(trade models.Trade) error {
	query := `
		INSERT INTO trades (ticker, side, size, entry_price_cents, exit_price_cents, opened_at, closed_at, exit_reason, realized_pnl_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.Exec(
		query,
		trade.Ticker,
		string(trade.Side),
		trade.Size,
		int(trade.EntryPrice),
		int(trade.ExitPrice),
		trade.OpenedAt,
		trade.ClosedAt,
		string(trade.ExitReason),
		trade.RealizedPnL,
	)
	return err
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the trades table if it does not already exist. It is
// intentionally minimal — a full migration tool is out of scope here.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id                 SERIAL PRIMARY KEY,
			ticker             TEXT NOT NULL,
			side               TEXT NOT NULL,
			size               INTEGER NOT NULL,
			entry_price_cents  INTEGER NOT NULL,
			exit_price_cents   INTEGER NOT NULL,
			opened_at          TIMESTAMPTZ NOT NULL,
			closed_at          TIMESTAMPTZ NOT NULL,
			exit_reason        TEXT NOT NULL,
			realized_pnl_cents BIGINT NOT NULL
		)`)
	return err
}
