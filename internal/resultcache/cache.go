package resultcache

import (
    "context"
    "encoding/json"
    "errors"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/park285/typing-arena/internal/domain"
)

const defaultTTL = 24 * time.Hour

// Entry is the cached copy of a finalized competition's rankings.
type Entry struct {
    CompetitionID string                `json:"competitionId"`
    Rankings      []domain.FinalRanking `json:"rankings"`
    CachedAt      time.Time             `json:"cachedAt"`
}

type Cache struct {
    rdb *redis.Client
    ttl time.Duration
    now func() time.Time
}

func New(rdb *redis.Client, ttl time.Duration) *Cache {
    if ttl <= 0 {
        ttl = defaultTTL
    }
    return &Cache{rdb: rdb, ttl: ttl, now: time.Now}
}

func keyRankings(competitionID string) string {
    return "arena:rankings:" + strings.TrimSpace(competitionID)
}

func (c *Cache) PutRankings(ctx context.Context, competitionID string, rankings []domain.FinalRanking) error {
    raw, err := json.Marshal(Entry{CompetitionID: competitionID, Rankings: rankings, CachedAt: c.now().UTC()})
    if err != nil { return err }
    return c.rdb.Set(ctx, keyRankings(competitionID), raw, c.ttl).Err()
}

// GetRankings returns nil, nil on a cache miss.
func (c *Cache) GetRankings(ctx context.Context, competitionID string) (*Entry, error) {
    raw, err := c.rdb.Get(ctx, keyRankings(competitionID)).Bytes()
    if errors.Is(err, redis.Nil) {
        return nil, nil
    }
    if err != nil { return nil, err }
    var e Entry
    if err := json.Unmarshal(raw, &e); err != nil {
        // a corrupt entry is treated as a miss and dropped
        _ = c.rdb.Del(ctx, keyRankings(competitionID)).Err()
        return nil, nil
    }
    return &e, nil
}

func (c *Cache) Invalidate(ctx context.Context, competitionID string) error {
    return c.rdb.Del(ctx, keyRankings(competitionID)).Err()
}
