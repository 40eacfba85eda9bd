package model

import (
	"encoding/json"
	"testing"
)

func TestKind_Valid(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindTokenCreated, true},
		{KindBotLog, true},
		{KindPriceUpdate, true},
		{"", false},
		{"orderbook", false},
	}

	for _, tt := range tests {
		if got := tt.kind.Valid(); got != tt.want {
			t.Errorf("Kind(%q).Valid() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestTokenID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want TokenID
	}{
		{"number", `42`, "42"},
		{"string", `"TOKEN123"`, "TOKEN123"},
		{"null", `null`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id TokenID
			if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if id != tt.want {
				t.Errorf("TokenID = %q, want %q", id, tt.want)
			}
		})
	}

	t.Run("invalid", func(t *testing.T) {
		var id TokenID
		if err := json.Unmarshal([]byte(`{"a":1}`), &id); err == nil {
			t.Error("expected error for object id")
		}
	})
}

func TestBotLog_IsError(t *testing.T) {
	if !(BotLog{InfoTag: "error"}).IsError() {
		t.Error("expected error tag to be reported")
	}
	if (BotLog{InfoTag: "info"}).IsError() {
		t.Error("info tag should not be an error")
	}
}

func TestBotLog_Wallet(t *testing.T) {
	const addr = "So11111111111111111111111111111111111111112"

	t.Run("valid", func(t *testing.T) {
		l := BotLog{WalletAddress: addr}
		pk, err := l.Wallet()
		if err != nil {
			t.Fatalf("Wallet failed: %v", err)
		}
		if pk.String() != addr {
			t.Errorf("Wallet = %s, want %s", pk, addr)
		}
		if got, want := l.ShortWallet(), "So1111...1112"; got != want {
			t.Errorf("ShortWallet = %q, want %q", got, want)
		}
	})

	t.Run("missing", func(t *testing.T) {
		l := BotLog{}
		if _, err := l.Wallet(); err == nil {
			t.Error("expected error for empty wallet")
		}
		if l.ShortWallet() != "" {
			t.Errorf("ShortWallet = %q, want empty", l.ShortWallet())
		}
	})

	t.Run("malformed", func(t *testing.T) {
		l := BotLog{WalletAddress: "not-a-wallet-0OIl"}
		if _, err := l.Wallet(); err == nil {
			t.Error("expected error for malformed wallet")
		}
	})
}
