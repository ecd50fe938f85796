package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/maclap/cashtrack/internal/record"
	"github.com/maclap/cashtrack/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("submit: %w", record.ErrUnknownKind), codes.InvalidArgument},
		{fmt.Errorf("submit: %w: amount", record.ErrInvalidPayload), codes.InvalidArgument},
		{fmt.Errorf("requeue x: %w", store.ErrNotFound), codes.NotFound},
		{fmt.Errorf("%w: disk gone", store.ErrStorageUnavailable), codes.Unavailable},
		{store.ErrQueueClosed, codes.Unavailable},
		{fmt.Errorf("enqueue note: %w: full", store.ErrStorageWriteFailed), codes.Aborted},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		st, ok := grpcstatus.FromError(toStatus(tt.err))
		if !ok {
			t.Fatalf("toStatus(%v) is not a status error", tt.err)
		}
		if st.Code() != tt.want {
			t.Errorf("toStatus(%v) = %s, want %s", tt.err, st.Code(), tt.want)
		}
		if st.Message() != tt.err.Error() {
			t.Errorf("message = %q, want %q", st.Message(), tt.err.Error())
		}
	}
	if toStatus(nil) != nil {
		t.Error("toStatus(nil) should be nil")
	}
}

func TestSubmitRequestKeepsPayloadObject(t *testing.T) {
	in := SubmitRequest{Kind: "note", Payload: []byte(`{"title":"gas","content":"meter read","date":"2026-10-01","user":"ana","timestamp":1760000000000}`)}
	s, err := ToStruct(in)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Fields["payload"].GetStructValue().Fields["title"].GetStringValue(); got != "gas" {
		t.Errorf("payload.title = %q, want gas", got)
	}

	var out SubmitRequest
	if err := FromStruct(s, &out); err != nil {
		t.Fatal(err)
	}
	if out.Kind != "note" {
		t.Errorf("kind = %q", out.Kind)
	}
	if _, err := record.Decode(record.Kind(out.Kind), out.Payload); err != nil {
		t.Errorf("decoded payload no longer valid: %v", err)
	}
}
