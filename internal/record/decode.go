package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidPayload wraps decoding and validation failures.
var ErrInvalidPayload = errors.New("invalid payload")

var validate = validator.New()

// New returns an empty typed record for k.
func New(k Kind) (any, error) {
	switch k {
	case KindTransaction:
		return &Transaction{}, nil
	case KindPendingPayment:
		return &PendingPayment{}, nil
	case KindMeterReading:
		return &MeterReading{}, nil
	case KindNote:
		return &Note{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
}

// Decode parses raw into the typed record for k and validates it.
// Unknown fields are rejected so typos don't silently reach the remote store.
func Decode(k Kind, raw []byte) (any, error) {
	v, err := New(k)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, k, err)
	}
	if err := Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Validate checks struct tags on a typed record.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+":"+fe.Tag())
	}
	return fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(fields, ", "))
}

// KindOf returns the kind for a typed record value.
func KindOf(v any) (Kind, error) {
	switch v.(type) {
	case *Transaction, Transaction:
		return KindTransaction, nil
	case *PendingPayment, PendingPayment:
		return KindPendingPayment, nil
	case *MeterReading, MeterReading:
		return KindMeterReading, nil
	case *Note, Note:
		return KindNote, nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnknownKind, v)
}
