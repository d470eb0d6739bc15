package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	appcfg "github.com/park285/typing-arena/internal/config"
	"github.com/park285/typing-arena/internal/orgauth"
	"github.com/park285/typing-arena/internal/seed"
	"github.com/park285/typing-arena/internal/store"
)

func main() {
	file := flag.String("f", "competitions.yaml", "competition definitions (YAML)")
	issue := flag.Duration("issue-token", 0, "also issue an organizer token valid for this long (needs REDIS_URL)")
	flag.Parse()

	// Load applies .env; its other requirements do not matter here
	_, _ = appcfg.Load()
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	in, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open %s: %v", *file, err)
	}
	defs, err := seed.Parse(in)
	_ = in.Close()
	if err != nil {
		log.Fatalf("%v", err)
	}

	db, err := store.Open(databaseURL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("%v", err)
	}
	gw := store.NewPostgres(db)

	var tokens *orgauth.Redis
	if *issue > 0 {
		opt, err := redis.ParseURL(strings.TrimSpace(os.Getenv("REDIS_URL")))
		if err != nil {
			log.Fatalf("REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		tokens = orgauth.NewRedis(rdb)
	}

	for _, d := range defs.Competitions {
		c, err := seed.Create(ctx, gw, d, time.Now())
		if err != nil {
			log.Fatalf("create %q: %v", d.Name, err)
		}
		fmt.Printf("%s\t%s\t%s\t%d rounds\n", c.ID, c.Code, c.Name, len(c.Rounds))
		if tokens != nil {
			token, err := tokens.Issue(ctx, c.OrganizerID, c.Organizer, *issue)
			if err != nil {
				log.Fatalf("issue token for %s: %v", c.OrganizerID, err)
			}
			fmt.Printf("\torganizer token: %s\n", token)
		}
	}
}
