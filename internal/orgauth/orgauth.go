package orgauth

import (
    "context"
    "crypto/rand"
    "crypto/subtle"
    "encoding/hex"
    "encoding/json"
    "errors"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

var (
    ErrInvalidToken = errors.New("invalid organizer token")
    ErrNoOrganizer  = errors.New("organizer id is required")
)

// Session is what the auth service stores under org:session:<token>.
type Session struct {
    OrganizerID string    `json:"organizerId"`
    Name        string    `json:"name,omitempty"`
    IssuedAt    time.Time `json:"issuedAt"`
}

// Redis verifies organizer tokens against sessions written by the auth service.
type Redis struct {
    rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

func keySession(token string) string { return "org:session:" + strings.TrimSpace(token) }

func (r *Redis) VerifyOrganizer(ctx context.Context, token string) (string, error) {
    if strings.TrimSpace(token) == "" {
        return "", ErrInvalidToken
    }
    raw, err := r.rdb.Get(ctx, keySession(token)).Bytes()
    if errors.Is(err, redis.Nil) {
        return "", ErrInvalidToken
    }
    if err != nil { return "", err }
    var s Session
    if err := json.Unmarshal(raw, &s); err != nil { return "", ErrInvalidToken }
    if strings.TrimSpace(s.OrganizerID) == "" {
        return "", ErrInvalidToken
    }
    return s.OrganizerID, nil
}

// Issue stores a new session for organizerID and returns its token. Used by tooling and tests.
func (r *Redis) Issue(ctx context.Context, organizerID, name string, ttl time.Duration) (string, error) {
    if strings.TrimSpace(organizerID) == "" {
        return "", ErrNoOrganizer
    }
    token, err := newToken()
    if err != nil { return "", err }
    raw, err := json.Marshal(Session{OrganizerID: organizerID, Name: name, IssuedAt: time.Now().UTC()})
    if err != nil { return "", err }
    if err := r.rdb.Set(ctx, keySession(token), raw, ttl).Err(); err != nil { return "", err }
    return token, nil
}

// Revoke deletes a session.
func (r *Redis) Revoke(ctx context.Context, token string) error {
    return r.rdb.Del(ctx, keySession(token)).Err()
}

func newToken() (string, error) {
    b := make([]byte, 24)
    if _, err := rand.Read(b); err != nil { return "", err }
    return hex.EncodeToString(b), nil
}

// Static accepts a single configured token for local development.
type Static struct {
    token       string
    organizerID string
}

func NewStatic(token, organizerID string) *Static {
    return &Static{token: strings.TrimSpace(token), organizerID: strings.TrimSpace(organizerID)}
}

func (s *Static) VerifyOrganizer(_ context.Context, token string) (string, error) {
    token = strings.TrimSpace(token)
    if s.token == "" || token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
        return "", ErrInvalidToken
    }
    return s.organizerID, nil
}
