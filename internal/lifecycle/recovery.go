package lifecycle

import (
	"context"

	"github.com/Jangseon-park/vector-db-benchmark/internal/backend"
)

// WaitForRecovery waits out the backend's asynchronous post-restart work
// (index rebuild, compaction) before queries are allowed. Backends that
// don't expose the capability are already queryable. Connection errors
// abort the wait with a warning and the caller proceeds optimistically.
func (m *Manager) WaitForRecovery(ctx context.Context, up backend.Uploader) {
	rec, ok := up.(backend.Recoverer)
	if !ok {
		return
	}
	if err := rec.WaitForRecovery(ctx); err != nil {
		m.out.Warningf("waiting for recovery failed: %v", err)
		m.log.Warn("recovery wait aborted, proceeding optimistically", "error", err)
	}
}
