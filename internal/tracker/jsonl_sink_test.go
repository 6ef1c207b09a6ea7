package tracker

import (
	encjson "encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"momentum/internal/models"
	"momentum/pkg/crypto"
)

func TestJSONLSinkWriteTrade(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trades.jsonl")

	sink, err := NewJSONLSink(path)
	if err != nil {
		t.Fatalf("NewJSONLSink failed: %v", err)
	}
	defer sink.Close()

	trade := models.Trade{
		Ticker:      "INXD-24DEC31",
		Side:        models.Yes,
		Size:        5,
		EntryPrice:  35,
		ExitPrice:   40,
		OpenedAt:    time.Unix(1700000000, 0),
		ClosedAt:    time.Unix(1700000060, 0),
		ExitReason:  models.ExitTrailingStop,
		RealizedPnL: 2500,
	}

	if err := sink.WriteTrade(trade); err != nil {
		t.Fatalf("WriteTrade failed: %v", err)
	}
	sink.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read trade log: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var rec tradeRecord
	if err := encjson.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if rec.Ticker != "INXD-24DEC31" || rec.RealizedPnL != 2500 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestJSONLSinkAppendsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trades.jsonl")

	trade := models.Trade{Ticker: "T1", Side: models.Yes, Size: 1}

	sink1, _ := NewJSONLSink(path)
	sink1.WriteTrade(trade)
	sink1.Close()

	sink2, _ := NewJSONLSink(path)
	sink2.WriteTrade(trade)
	sink2.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected append, got %d lines", len(lines))
	}
}

func TestWriteSessionMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trades.jsonl")
	key, _ := crypto.GenerateKey()

	if err := WriteSessionMetadata(path, "live-abcd1234", "/etc/kalshi/key.pem", true, key); err != nil {
		t.Fatalf("WriteSessionMetadata failed: %v", err)
	}

	data, err := os.ReadFile(path + ".meta.json")
	if err != nil {
		t.Fatalf("failed to read metadata file: %v", err)
	}

	var meta sessionMetadata
	if err := encjson.Unmarshal(data, &meta); err != nil {
		t.Fatalf("metadata is not valid JSON: %v", err)
	}

	if meta.Credential.APIKeyFingerprint != "...1234" {
		t.Errorf("fingerprint = %q, want %q", meta.Credential.APIKeyFingerprint, "...1234")
	}
	if !meta.Credential.UseDemo {
		t.Error("UseDemo should be true")
	}
	if strings.Contains(string(data), "live-abcd1234") {
		t.Error("plaintext API key leaked into metadata file")
	}

	decrypted, err := crypto.Decrypt(meta.Credential.SealedAPIKey, key)
	if err != nil || decrypted != "live-abcd1234" {
		t.Errorf("SealedAPIKey did not round-trip: got %q, err %v", decrypted, err)
	}
}

func TestWriteSessionMetadataInvalidKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trades.jsonl")

	err := WriteSessionMetadata(path, "key", "path", false, []byte("too-short"))
	if err != crypto.ErrInvalidKeyLength {
		t.Errorf("got %v, want %v", err, crypto.ErrInvalidKeyLength)
	}
}
