package record

import (
	"errors"
	"testing"
)

func TestCollectionMapping(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindTransaction, "transactions"},
		{KindPendingPayment, "pendingPayments"},
		{KindMeterReading, "meterReadings"},
		{KindNote, "notes"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, err := tt.kind.Collection()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Collection() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseKindRejectsUnknown(t *testing.T) {
	for _, s := range []string{"", "transactions", "Transaction", "invoice"} {
		if _, err := ParseKind(s); !errors.Is(err, ErrUnknownKind) {
			t.Errorf("ParseKind(%q) error = %v, want ErrUnknownKind", s, err)
		}
	}
	if _, err := Kind("invoice").Collection(); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Collection() error = %v, want ErrUnknownKind", err)
	}
}

func TestKindsCoverMapping(t *testing.T) {
	for _, k := range Kinds() {
		if !k.Valid() {
			t.Errorf("kind %q not valid", k)
		}
		if _, err := New(k); err != nil {
			t.Errorf("New(%q) error = %v", k, err)
		}
	}
}

func TestDecodeTransaction(t *testing.T) {
	raw := []byte(`{"date":"2024-03-01","type":"in","amount":250.5,"remark":"sale","user":"Sonu","timestamp":1709251200000}`)
	v, err := Decode(KindTransaction, raw)
	if err != nil {
		t.Fatal(err)
	}
	tx, ok := v.(*Transaction)
	if !ok {
		t.Fatalf("Decode returned %T, want *Transaction", v)
	}
	if tx.Amount != 250.5 || tx.Type != "in" {
		t.Errorf("got %+v", tx)
	}
}

func TestDecodePendingPayment(t *testing.T) {
	raw := []byte(`{"date":"2024-03-01","amount":1200,"remark":"milk vendor","user":"Sonu","timestamp":1709251200000}`)
	v, err := Decode(KindPendingPayment, raw)
	if err != nil {
		t.Fatal(err)
	}
	pp, ok := v.(*PendingPayment)
	if !ok {
		t.Fatalf("Decode returned %T, want *PendingPayment", v)
	}
	if pp.Amount != 1200 || pp.Remark != "milk vendor" {
		t.Errorf("got %+v", pp)
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		raw  string
	}{
		{"bad type", KindTransaction, `{"date":"2024-03-01","type":"sideways","amount":1,"remark":"r","user":"u","timestamp":1}`},
		{"zero amount", KindTransaction, `{"date":"2024-03-01","type":"in","amount":0,"remark":"r","user":"u","timestamp":1}`},
		{"bad date", KindNote, `{"date":"01/03/2024","title":"t","content":"c","user":"u","timestamp":1}`},
		{"unknown field", KindNote, `{"date":"2024-03-01","title":"t","content":"c","user":"u","timestamp":1,"color":"red"}`},
		{"not json", KindMeterReading, `{`},
		{"missing user", KindPendingPayment, `{"date":"2024-03-01","amount":5,"remark":"r","timestamp":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.kind, []byte(tt.raw)); !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("Decode error = %v, want ErrInvalidPayload", err)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	k, err := KindOf(&MeterReading{})
	if err != nil || k != KindMeterReading {
		t.Errorf("KindOf(*MeterReading) = %q, %v", k, err)
	}
	if _, err := KindOf(42); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("KindOf(int) error = %v, want ErrUnknownKind", err)
	}
}
