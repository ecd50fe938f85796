package api

import (
	"context"

	"github.com/maclap/cashtrack/internal/outbox"
	"github.com/maclap/cashtrack/internal/record"
)

// RecordService implements the RecordService gRPC service.
type RecordService struct {
	writer *outbox.Writer
}

// NewRecordService creates a new record service.
func NewRecordService(w *outbox.Writer) *RecordService {
	return &RecordService{writer: w}
}

func (s *RecordService) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	kind, err := record.ParseKind(req.Kind)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := s.writer.Submit(ctx, kind, req.Payload)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SubmitResponse{ID: out.ID, RemoteID: out.RemoteID, Queued: out.Queued}, nil
}
