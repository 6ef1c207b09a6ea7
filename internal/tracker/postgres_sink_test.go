package tracker

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"momentum/internal/models"
)

func TestPostgresSinkWriteTrade(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	sink := NewPostgresSink(db)

	trade := models.Trade{
		Ticker:      "TICK-24",
		Side:        models.Yes,
		Size:        5,
		EntryPrice:  36,
		ExitPrice:   32,
		OpenedAt:    time.Now(),
		ClosedAt:    time.Now(),
		ExitReason:  models.ExitStopLoss,
		RealizedPnL: -25,
	}

	mock.ExpectExec(`INSERT INTO trades`).
		WithArgs("TICK-24", "yes", 5, 36, 32, trade.OpenedAt, trade.ClosedAt, "stop_loss", int64(-25)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := sink.WriteTrade(trade); err != nil {
		t.Fatalf("WriteTrade() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS trades`).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := EnsureSchema(db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
}
