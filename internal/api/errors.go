package api

import (
	"errors"

	"github.com/maclap/cashtrack/internal/record"
	"github.com/maclap/cashtrack/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	switch {
	case errors.Is(err, record.ErrUnknownKind), errors.Is(err, record.ErrInvalidPayload):
		code = codes.InvalidArgument
	case errors.Is(err, store.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, store.ErrStorageUnavailable), errors.Is(err, store.ErrQueueClosed):
		code = codes.Unavailable
	case errors.Is(err, store.ErrStorageWriteFailed):
		code = codes.Aborted
	}
	return grpcstatus.Error(code, err.Error())
}
