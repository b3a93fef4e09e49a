package recording

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Serph91P/StreamVault-sub001/db"
)

// episodeCache memoizes the last episode number handed out for a
// (streamerID, YYYYMM) pair so a streamer going live repeatedly in one
// process lifetime doesn't pay a row-locked DB round trip every time.
// Single-node only: correctness relies on this process being the sole
// writer of episode numbers, which spec.md's no-clustering non-goal
// guarantees. Cold keys fall through to db.Gateway.NextEpisodeNumber,
// whose FOR UPDATE lock stays the source of truth on a cache miss.
type episodeCache struct {
	c *gocache.Cache
}

func newEpisodeCache() *episodeCache {
	return &episodeCache{c: gocache.New(gocache.NoExpiration, 30 * time.Minute)}
}

func (e *episodeCache) next(ctx context.Context, gw *db.Gateway, streamerID int64, yyyymm string) (int, error) {
	key := fmt.Sprintf("%d:%s", streamerID, yyyymm)
	if n, err := e.c.IncrementInt(key, 1); err == nil {
		return n, nil
	}

	n, err := gw.NextEpisodeNumber(ctx, streamerID, yyyymm)
	if err != nil {
		return 0, err
	}
	e.c.Set(key, n, gocache.DefaultExpiration)
	return n, nil
}
