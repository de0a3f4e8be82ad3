package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lendvault/native/vault"
)

func TestEventSinkLogsDeposits(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sink := NewEventSink(logger)

	lender := common.HexToAddress("0x0000000000000000000000000000000000000001")
	sink.Emit(vault.Deposited{
		Lender: lender,
		Assets: big.NewInt(1_000),
		Shares: big.NewInt(1_000),
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["event"] != "vault.deposited" {
		t.Fatalf("unexpected event: %v", entry)
	}
	if entry["assets"] != "1000" {
		t.Fatalf("unexpected assets: %v", entry)
	}
	if entry["lender"] != lender.Hex() {
		t.Fatalf("unexpected lender: %v", entry)
	}
}

func TestEventSinkHandlesLiquidations(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sink := NewEventSink(logger)

	sink.Emit(vault.Liquidated{
		PositionID:       7,
		Liquidator:       common.HexToAddress("0x0000000000000000000000000000000000000002"),
		LiquidatorCost:   big.NewInt(600),
		LiquidationValue: big.NewInt(675),
		ReserveCost:      big.NewInt(0),
		Missing:          big.NewInt(0),
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["level"] != "WARN" {
		t.Fatalf("liquidation should log at warn: %v", entry)
	}
	if entry["liquidation_value"] != "675" {
		t.Fatalf("unexpected value: %v", entry)
	}
}
