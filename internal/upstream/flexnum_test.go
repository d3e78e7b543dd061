package upstream

import (
	"encoding/json"
	"testing"
)

func TestFlexStringAcceptsStringOrNumber(t *testing.T) {
	var s struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"123","b":456}`), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s.A.String() != "123" {
		t.Fatalf("A = %q, want 123", s.A.String())
	}
	if s.B.String() != "456" {
		t.Fatalf("B = %q, want 456", s.B.String())
	}
}

func TestFlexFloatAcceptsStringOrNumber(t *testing.T) {
	var s struct {
		A FlexFloat `json:"a"`
		B FlexFloat `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"12.5","b":7.25}`), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s.A.Float64() != 12.5 {
		t.Fatalf("A = %v, want 12.5", s.A.Float64())
	}
	if s.B.Float64() != 7.25 {
		t.Fatalf("B = %v, want 7.25", s.B.Float64())
	}
}

func TestContractUpdateParsesTolerantly(t *testing.T) {
	raw := `{
		"contract_id": "9988",
		"underlying": "frxEURUSD",
		"contract_type": "CALL",
		"status": "sold",
		"buy_price": "10",
		"payout": 19.5,
		"profit": "9.5",
		"is_sold": true
	}`
	var cu ContractUpdate
	if err := json.Unmarshal([]byte(raw), &cu); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if cu.ContractID.String() != "9988" {
		t.Fatalf("ContractID = %q", cu.ContractID.String())
	}
	if cu.BuyPrice.Float64() != 10 || cu.Payout.Float64() != 19.5 || cu.Profit.Float64() != 9.5 {
		t.Fatalf("numeric fields mismatch: %+v", cu)
	}
	if !cu.IsSold {
		t.Fatalf("expected IsSold=true")
	}
}
