package readiness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/apperr"
)

const mediaTable = "media_assets"

// Columns the media pipeline writes on every accepted upload. A database
// that lacks any of them must reject media intake instead of dropping data.
var requiredMediaColumns = []string{
	"file_id",
	"media_type",
	"archive_chat_id",
	"archive_message_id",
}

type SchemaProber interface {
	TableColumns(ctx context.Context, table string) (map[string]bool, error)
}

// Guard verifies the media schema before any media write. A successful probe
// is cached; Invalidate drops the cache when a later write hits a schema
// error anyway.
type Guard struct {
	probe SchemaProber

	mu    sync.Mutex
	ready bool
}

func NewGuard(probe SchemaProber) *Guard {
	return &Guard{probe: probe}
}

func (g *Guard) Ensure(ctx context.Context) error {
	if g.probe == nil {
		return fmt.Errorf("schema prober is nil")
	}

	g.mu.Lock()
	ready := g.ready
	g.mu.Unlock()
	if ready {
		return nil
	}

	columns, err := g.probe.TableColumns(ctx, mediaTable)
	if err != nil {
		if isConnectivity(err) {
			return &apperr.ConnectivityError{Op: "schema probe", Err: err}
		}
		return fmt.Errorf("schema probe: %w", err)
	}

	var missing []string
	for _, col := range requiredMediaColumns {
		if !columns[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &apperr.ReadinessError{
			Table:   mediaTable,
			Missing: missing,
			Hint:    "apply pending migrations",
		}
	}

	g.mu.Lock()
	g.ready = true
	g.mu.Unlock()

	return nil
}

func (g *Guard) Invalidate() {
	g.mu.Lock()
	g.ready = false
	g.mu.Unlock()
}

func isConnectivity(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{"connection refused", "dial", "i/o timeout", "broken pipe"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
