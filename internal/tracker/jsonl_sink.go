package tracker

import (
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"momentum/internal/models"
	"momentum/pkg/crypto"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// tradeRecord is the on-disk shape of a closed trade, matching §6's schema.
type tradeRecord struct {
	Ticker      string `json:"ticker"`
	Side        string `json:"side"`
	Size        int    `json:"size"`
	EntryPrice  int    `json:"entry_price_cents"`
	ExitPrice   int    `json:"exit_price_cents"`
	OpenedAt    int64  `json:"opened_at_unix_ms"`
	ClosedAt    int64  `json:"closed_at_unix_ms"`
	ExitReason  string `json:"exit_reason"`
	RealizedPnL int64  `json:"realized_pnl_cents"`
}

// JSONLSink appends one JSON object per line to a file, per §6.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
}

func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{file: f}, nil
}

func (s *JSONLSink) WriteTrade(trade models.Trade) error {
	rec := tradeRecord{
		Ticker:      trade.Ticker,
		Side:        string(trade.Side),
		Size:        trade.Size,
		EntryPrice:  int(trade.EntryPrice),
		ExitPrice:   int(trade.ExitPrice),
		OpenedAt:    trade.OpenedAt.UnixMilli(),
		ClosedAt:    trade.ClosedAt.UnixMilli(),
		ExitReason:  string(trade.ExitReason),
		RealizedPnL: trade.RealizedPnL,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(line)
	return err
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// sessionMetadata is written once alongside the trade log, to a
// "<path>.meta.json" companion file, so an operator inspecting a run's
// output later can see which credential produced it without the
// credential itself ever being written in the clear.
type sessionMetadata struct {
	StartedAtUnixMs int64                `json:"started_at_unix_ms"`
	Credential      crypto.CredentialRef `json:"credential"`
}

// WriteSessionMetadata seals apiKey and privateKeyPath under key and
// writes them, alongside a start timestamp, to path+".meta.json". It is
// meant to be called once per process, right after NewJSONLSink.
func WriteSessionMetadata(path, apiKey, privateKeyPath string, useDemo bool, key []byte) error {
	ref, err := crypto.SealCredential(apiKey, privateKeyPath, useDemo, key)
	if err != nil {
		return err
	}

	meta := sessionMetadata{
		StartedAtUnixMs: time.Now().UnixMilli(),
		Credential:      ref,
	}

	line, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	return os.WriteFile(path+".meta.json", line, 0644)
}
