package arenabuilder

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/jonboulle/clockwork"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/park285/typing-arena/internal/api"
    "github.com/park285/typing-arena/internal/arena"
    "github.com/park285/typing-arena/internal/config"
    "github.com/park285/typing-arena/internal/metrics"
    "github.com/park285/typing-arena/internal/msgcat"
    "github.com/park285/typing-arena/internal/orgauth"
    "github.com/park285/typing-arena/internal/resultcache"
    "github.com/park285/typing-arena/internal/store"
    "github.com/park285/typing-arena/internal/sweeper"
    "github.com/park285/typing-arena/internal/transport"
)

type Deps struct {
    Store   store.Gateway
    Engine  *arena.Engine
    Hub     *transport.Hub
    WS      *transport.Server
    API     *api.Server
    Sweeper *sweeper.Sweeper
    Metrics *metrics.Recorder
    Catalog *msgcat.Catalog

    db    *sql.DB
    redis *redis.Client
}

// Options lets callers substitute infrastructure, mainly for tests.
type Options struct {
    Store store.Gateway
    Redis *redis.Client
    Clock clockwork.Clock
}

func New(cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
    return NewWithOptions(cfg, logger, Options{})
}

func NewWithOptions(cfg *config.AppConfig, logger *zap.Logger, opts Options) (*Deps, error) {
    if cfg == nil {
        return nil, fmt.Errorf("nil config")
    }
    if logger == nil {
        logger = zap.NewNop()
    }
    d := &Deps{Metrics: metrics.New(), Store: opts.Store, redis: opts.Redis}

    cat, err := msgcat.New(cfg.MessagesDir)
    if err != nil { return nil, fmt.Errorf("load messages: %w", err) }
    d.Catalog = cat

    // Store: Postgres when configured, otherwise in-process
    if d.Store == nil {
        if strings.TrimSpace(cfg.DatabaseURL) != "" {
            db, err := store.Open(cfg.DatabaseURL)
            if err != nil { return nil, fmt.Errorf("open postgres: %w", err) }
            ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
            err = store.EnsureSchema(ctx, db)
            cancel()
            if err != nil {
                _ = db.Close()
                return nil, err
            }
            d.db = db
            d.Store = store.NewPostgres(db)
        } else {
            logger.Warn("store_memory_fallback", zap.String("reason", "DATABASE_URL not set"))
            d.Store = store.NewMemory()
        }
    }

    // Redis (optional): organizer sessions and the results cache
    if d.redis == nil && strings.TrimSpace(cfg.RedisURL) != "" {
        rdb, err := openRedis(cfg.RedisURL)
        if err != nil {
            d.Close()
            return nil, err
        }
        d.redis = rdb
    }
    var verifier arena.OrganizerVerifier
    var rankings arena.RankingsCache
    var cacheReader api.RankingsReader
    if d.redis != nil {
        verifier = orgauth.NewRedis(d.redis)
        rc := resultcache.New(d.redis, cfg.ResultsCacheTTL)
        rankings, cacheReader = rc, rc
    } else {
        verifier = orgauth.NewStatic(cfg.DevOrganizerToken, cfg.DevOrganizerID)
        logger.Warn("organizer_static_token", zap.String("organizer_id", cfg.DevOrganizerID))
    }

    d.Hub = transport.NewHub(cfg.SendQueue, logger.Named("hub"))
    d.Engine, err = arena.New(arena.Options{
        Store:        d.Store,
        Broadcaster:  d.Hub,
        Verifier:     verifier,
        Rankings:     rankings,
        Metrics:      d.Metrics,
        Clock:        opts.Clock,
        Logger:       logger.Named("arena"),
        StoreTimeout: cfg.StoreTimeout,
    })
    if err != nil {
        d.Close()
        return nil, err
    }
    d.WS, err = transport.NewServer(transport.ServerOptions{
        Engine:          d.Engine,
        Hub:             d.Hub,
        Catalog:         d.Catalog,
        Metrics:         d.Metrics,
        Logger:          logger.Named("ws"),
        AllowedOrigins:  cfg.AllowedOrigins,
        MaxMessageBytes: cfg.MaxMessageBytes,
    })
    if err != nil {
        d.Close()
        return nil, err
    }
    d.API, err = api.New(api.Options{
        Store:   d.Store,
        Live:    d.Engine,
        Cache:   cacheReader,
        Logger:  logger.Named("api"),
        Timeout: cfg.StoreTimeout,
    })
    if err != nil {
        d.Close()
        return nil, err
    }
    d.Sweeper, err = sweeper.New(d.Engine.Registry(), cfg.SweepInterval, cfg.RetentionTTL, opts.Clock, logger.Named("sweeper"))
    if err != nil {
        d.Close()
        return nil, fmt.Errorf("init sweeper: %w", err)
    }
    return d, nil
}

// Mux serves the realtime endpoint next to health and metrics.
func (d *Deps) Mux() *http.ServeMux {
    mux := http.NewServeMux()
    mux.Handle("/ws", d.WS)
    mux.Handle("/metrics", d.Metrics.Handler())
    mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
        w.Header().Set("Content-Type", "text/plain; charset=utf-8")
        _, _ = w.Write([]byte("ok"))
    })
    return mux
}

// Close stops background work and releases connections. Safe on a partially built Deps.
func (d *Deps) Close() error {
    var errs []error
    if d.Sweeper != nil {
        if err := d.Sweeper.Shutdown(); err != nil {
            errs = append(errs, err)
        }
    }
    if d.Engine != nil {
        d.Engine.Close()
    }
    if d.redis != nil {
        if err := d.redis.Close(); err != nil {
            errs = append(errs, err)
        }
    }
    if d.db != nil {
        if err := d.db.Close(); err != nil {
            errs = append(errs, err)
        }
    }
    return errors.Join(errs...)
}

func openRedis(raw string) (*redis.Client, error) {
    opt, err := redis.ParseURL(raw)
    if err != nil { return nil, fmt.Errorf("parse redis url: %w", err) }
    rdb := redis.NewClient(opt)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := rdb.Ping(ctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, fmt.Errorf("ping redis: %w", err)
    }
    return rdb, nil
}
