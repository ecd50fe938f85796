package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/maclap/cashtrack/internal/bus"
	"github.com/maclap/cashtrack/internal/netstate"
	"github.com/maclap/cashtrack/internal/outbox"
	"github.com/maclap/cashtrack/internal/status"
	"github.com/maclap/cashtrack/internal/store"
	cashsync "github.com/maclap/cashtrack/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// SyncService implements the SyncService gRPC service.
type SyncService struct {
	profile     string
	startedAt   time.Time
	queue       *store.Queue
	coordinator *outbox.Coordinator
	monitor     *netstate.Monitor
	machine     *status.Machine
	tracker     *cashsync.Tracker
	bus         *bus.Bus
}

// NewSyncService creates a new sync service.
func NewSyncService(
	profile string,
	q *store.Queue,
	c *outbox.Coordinator,
	m *netstate.Monitor,
	machine *status.Machine,
	tracker *cashsync.Tracker,
	b *bus.Bus,
) *SyncService {
	return &SyncService{
		profile:     profile,
		startedAt:   time.Now(),
		queue:       q,
		coordinator: c,
		monitor:     m,
		machine:     machine,
		tracker:     tracker,
		bus:         b,
	}
}

// SyncNow drains on the daemon's context; the caller's deadline only bounds
// how long it waits for the answer.
func (s *SyncService) SyncNow(_ context.Context, _ *Empty) (*SyncNowResponse, error) {
	res, ran := s.coordinator.DrainNow()
	return &SyncNowResponse{
		Ran:     ran,
		Online:  s.monitor.Online(),
		Success: res.Success,
		Failed:  res.Failed,
	}, nil
}

// GetSyncStatus never fails: a broken queue is reported in StorageError so
// clients can show a degraded-mode warning.
func (s *SyncService) GetSyncStatus(ctx context.Context, _ *Empty) (*SyncStatus, error) {
	st := &SyncStatus{
		Profile:     s.profile,
		State:       string(s.machine.Current()),
		Online:      s.monitor.Online(),
		NetworkMode: string(s.monitor.Mode()),
		Draining:    s.coordinator.Draining(),
		StartedAt:   s.startedAt,
	}

	byKind, err := s.queue.CountByKind(ctx)
	if err != nil {
		st.StorageError = err.Error()
		return st, nil
	}
	st.PendingByKind = make(map[string]int, len(byKind))
	for k, n := range byKind {
		st.PendingByKind[string(k)] = n
		st.Pending += n
	}
	if dead, err := s.queue.ListDeadLetters(ctx); err == nil {
		st.DeadLetters = len(dead)
	}

	if h, err := s.tracker.History(ctx); err == nil {
		if h.Last != nil {
			at := h.Last.At
			st.LastDrainAt = &at
			st.LastSuccess = h.Last.Result.Success
			st.LastFailed = h.Last.Result.Failed
		}
		st.TotalCycles = h.Totals.Cycles
		st.TotalSuccess = h.Totals.Success
		st.TotalFailed = h.Totals.Failed
	}
	return st, nil
}

func (s *SyncService) ListPending(ctx context.Context, _ *Empty) (*ListPendingResponse, error) {
	recs, err := s.queue.ListUnsynced(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListPendingResponse{Records: make([]PendingRecord, 0, len(recs))}
	for _, r := range recs {
		resp.Records = append(resp.Records, PendingRecord{
			ID:         r.ID,
			Kind:       string(r.Kind),
			EnqueuedAt: r.EnqueuedAt,
			RetryCount: r.RetryCount,
			LastError:  r.LastError,
		})
	}
	return resp, nil
}

func (s *SyncService) ListDeadLetters(ctx context.Context, _ *Empty) (*ListDeadLettersResponse, error) {
	dead, err := s.queue.ListDeadLetters(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListDeadLettersResponse{Records: make([]DeadLetter, 0, len(dead))}
	for _, d := range dead {
		resp.Records = append(resp.Records, DeadLetter{
			ID:         d.ID,
			Kind:       string(d.Kind),
			Payload:    d.Payload,
			EnqueuedAt: d.EnqueuedAt,
			RetryCount: d.RetryCount,
			LastError:  d.LastError,
			DeadAt:     d.DeadAt,
		})
	}
	return resp, nil
}

func (s *SyncService) RequeueDeadLetter(ctx context.Context, req *RequeueRequest) (*RequeueResponse, error) {
	if req.ID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "id is required")
	}
	id, err := s.queue.RequeueDeadLetter(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RequeueResponse{ID: id}, nil
}

func (s *SyncService) PurgeDeadLetters(ctx context.Context, _ *Empty) (*PurgeResponse, error) {
	n, err := s.queue.PurgeDeadLetters(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &PurgeResponse{Purged: n}, nil
}

func (s *SyncService) SetNetworkMode(_ context.Context, req *SetNetworkModeRequest) (*SetNetworkModeResponse, error) {
	mode, err := netstate.ParseMode(req.Mode)
	if err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	s.monitor.SetMode(mode)
	return &SetNetworkModeResponse{Mode: string(mode), Online: s.monitor.Online()}, nil
}

func (s *SyncService) WatchEvents(req *WatchEventsRequest, stream EventSender) error {
	ch, unsub := s.bus.Subscribe(req.Prefix, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if err := stream.Send(&Event{
				Kind:    evt.Kind,
				At:      evt.Timestamp,
				Profile: s.profile,
				Payload: eventPayload(evt),
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

// eventPayload renders a bus payload as JSON for clients.
func eventPayload(evt bus.Event) json.RawMessage {
	var v any = evt.Payload
	switch p := evt.Payload.(type) {
	case nil:
		return nil
	case outbox.Dropped:
		v = map[string]any{
			"id":          p.ID,
			"kind":        string(p.Kind),
			"retry_count": p.RetryCount,
			"dead_letter": p.DeadLetter,
			"error":       p.Err.Error(),
		}
	case status.StatusChange:
		v = map[string]string{"from": string(p.From), "to": string(p.To)}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
