// Package cleanup implements the Session/Share-Token Cleanup subsystem
// (C12): two independent periodic sweeps over expired rows, each run as its
// own suture.Service so one ticking loop can fail and restart without
// affecting the other. Grounded on the recovery package's reaper shape
// (same ticker-in-select pattern) applied to the simpler two-table purge
// spec.md §4.11 describes.
package cleanup

import (
	"context"
	"time"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/db"
	"github.com/Serph91P/StreamVault-sub001/log"
)

// SessionSweeper periodically deletes expired login sessions.
type SessionSweeper struct {
	gw *db.Gateway
}

func NewSessionSweeper(gw *db.Gateway) *SessionSweeper { return &SessionSweeper{gw: gw} }

func (s *SessionSweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(config.SessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.gw.DeleteExpiredSessions(ctx)
			if err != nil {
				log.LogError("", "cleanup: session sweep failed", err)
				continue
			}
			if n > 0 {
				log.Log("", "cleanup: expired sessions removed", "count", n)
			}
		}
	}
}

// ShareTokenSweeper periodically deletes expired share tokens. Token
// validation also deletes on the spot when ValidateShareToken finds an
// expired row (spec.md §4.11 lazy-on-validate path, implemented in
// db.Gateway.ValidateShareToken's failure branch) -- this sweep only
// catches tokens nobody ever tries to validate again.
type ShareTokenSweeper struct {
	gw *db.Gateway
}

func NewShareTokenSweeper(gw *db.Gateway) *ShareTokenSweeper { return &ShareTokenSweeper{gw: gw} }

func (s *ShareTokenSweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(config.ShareTokenCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.gw.DeleteExpiredShareTokens(ctx)
			if err != nil {
				log.LogError("", "cleanup: share token sweep failed", err)
				continue
			}
			if n > 0 {
				log.Log("", "cleanup: expired share tokens removed", "count", n)
			}
		}
	}
}
