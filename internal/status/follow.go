package status

import (
	"context"

	"github.com/maclap/cashtrack/internal/bus"
	"go.uber.org/zap"
)

// Follow keeps m in step with connectivity and sync events until ctx is
// cancelled. It subscribes before returning, so events published after
// Follow returns are never missed. One subscription keeps net. and sync.
// events in publish order; next ignores every other kind.
func Follow(ctx context.Context, b *bus.Bus, m *Machine, logger *zap.Logger) {
	ch, unsub := b.Subscribe("", 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				apply(m, next(m.Current(), evt.Kind), logger)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// next returns the state an event moves the indicator to, or "" to stay put.
func next(cur State, kind string) State {
	switch kind {
	case bus.KindNetOnline:
		if cur == Offline {
			return Online
		}
	case bus.KindNetOffline:
		if cur != Offline {
			return Offline
		}
	case bus.KindSyncStarted:
		if cur == Online {
			return Syncing
		}
	case bus.KindSyncCompleted:
		if cur == Syncing {
			return Online
		}
	}
	return ""
}

func apply(m *Machine, to State, logger *zap.Logger) {
	if to == "" {
		return
	}
	if err := m.Transition(to); err != nil {
		logger.Debug("status transition skipped", zap.Error(err))
	}
}
