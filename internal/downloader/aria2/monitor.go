package aria2dl

import (
	"context"
	"log/slog"
	"time"

	"github.com/tinoosan/manifest-sync/internal/aria2"
	"github.com/tinoosan/manifest-sync/internal/downloader"
)

// Monitor turns aria2 completion notifications into transfer progress events.
type Monitor struct {
	cl  *aria2.Client
	rep downloader.Reporter
	log *slog.Logger

	dialTimeout time.Duration
	dialBackoff time.Duration
}

// NewMonitor creates a Monitor for the aria2 RPC endpoint behind cl.
func NewMonitor(cl *aria2.Client, rep downloader.Reporter, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{cl: cl, rep: downloader.Or(rep), log: log, dialTimeout: 10 * time.Second, dialBackoff: 250 * time.Millisecond}
}

// Run connects to aria2, retrying while the process starts up, and reports
// progress until ctx is cancelled or the connection drops.
func (m *Monitor) Run(ctx context.Context, total int) {
	ch, err := m.connect(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.log.Warn("aria2 progress monitor unavailable", "err", err)
		}
		return
	}

	var completed, failed int
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			switch n.Method {
			case aria2.MethodDownloadComplete:
				completed += len(n.Params)
			case aria2.MethodDownloadError:
				failed += len(n.Params)
				m.explain(ctx, n.Params)
			default:
				continue
			}
			m.rep.Report(downloader.Event{
				Type:     downloader.EventTransferProgress,
				Progress: &downloader.Progress{Completed: completed, Failed: failed, Total: total},
			})
		}
	}
}

// explain logs why aria2 gave up on each download.
func (m *Monitor) explain(ctx context.Context, events []aria2.NotificationEvent) {
	for _, ev := range events {
		st, err := m.cl.TellStatus(ctx, ev.GID)
		if err != nil {
			m.log.Warn("aria2 download failed", "gid", ev.GID, "status_err", err)
			continue
		}
		m.log.Warn("aria2 download failed",
			"gid", ev.GID,
			"path", st.Path(),
			"uri", st.URI(),
			"error_code", st.ErrorCode,
			"error", st.ErrorMessage)
	}
}

func (m *Monitor) connect(ctx context.Context) (<-chan aria2.Notification, error) {
	deadline := time.Now().Add(m.dialTimeout)
	for {
		ch, err := m.cl.Notifications(ctx)
		if err == nil {
			return ch, nil
		}
		if ctx.Err() != nil || time.Now().After(deadline) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.dialBackoff):
		}
	}
}
