// Package record defines the logical record kinds a business can capture and
// the remote collections they are committed to.
package record

import (
	"errors"
	"fmt"
)

// Kind is a logical record type. The set is closed.
type Kind string

const (
	KindTransaction    Kind = "transaction"
	KindPendingPayment Kind = "pendingPayment"
	KindMeterReading   Kind = "meterReading"
	KindNote           Kind = "note"
)

// ErrUnknownKind is returned for a kind outside the closed set.
var ErrUnknownKind = errors.New("unknown record kind")

var collections = map[Kind]string{
	KindTransaction:    "transactions",
	KindPendingPayment: "pendingPayments",
	KindMeterReading:   "meterReadings",
	KindNote:           "notes",
}

// Kinds returns every known kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindTransaction, KindPendingPayment, KindMeterReading, KindNote}
}

// ParseKind validates s against the closed set.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := collections[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Valid reports whether k belongs to the closed set.
func (k Kind) Valid() bool {
	_, ok := collections[k]
	return ok
}

// Collection returns the remote collection name for k.
func (k Kind) Collection() (string, error) {
	name, ok := collections[k]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
	}
	return name, nil
}

func (k Kind) String() string { return string(k) }
