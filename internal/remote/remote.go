// Package remote abstracts the document store that offline records are
// committed to once connectivity returns.
package remote

import (
	"context"
	"encoding/json"
	"errors"
)

// Store creates documents in named collections. Create must either fully
// apply or fail; it never partially applies.
type Store interface {
	Create(ctx context.Context, collection string, payload json.RawMessage) (remoteID string, err error)
}

// ErrRejected marks a create the remote store refused outright.
var ErrRejected = errors.New("remote rejected document")
