// Command backup exports or imports the full tracker state as a JSON file,
// directly against the configured Redis, without the service running.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net"
	"os"
	"time"

	"github.com/2beens/liftlog/internal/backup"
	"github.com/2beens/liftlog/internal/config"
	"github.com/2beens/liftlog/internal/store"
	"github.com/2beens/liftlog/pkg"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development ]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	mode := flag.String("mode", "export", "export | import")
	file := flag.String("file", "./liftlog-backup.json", "snapshot file path")
	flag.Parse()

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		log.Fatalf("load config: %s", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: os.Getenv("LIFTLOG_REDIS_PASS"),
		DB:       0,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Errorf("close redis client: %s", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// offline tool: unlike the service there is no in-memory fallback,
	// a backup against nothing is worthless
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis: %s", err)
	}
	kv := store.NewRedisKV(rdb)

	switch *mode {
	case "export":
		runExport(ctx, kv, *file)
	case "import":
		runImport(ctx, kv, *file)
	default:
		log.Fatalf("unknown mode %q, use export or import", *mode)
	}
}

func runExport(ctx context.Context, kv store.KV, path string) {
	snapshot, err := backup.Export(ctx, kv)
	if err != nil {
		log.Fatalf("export: %s", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		log.Fatalf("marshal snapshot: %s", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Fatalf("write snapshot file: %s", err)
	}
	log.Printf("exported to %s (%d bytes)", path, len(data))
}

func runImport(ctx context.Context, kv store.KV, path string) {
	exists, err := pkg.PathExists(path, false)
	if err != nil {
		log.Fatalf("check snapshot file: %s", err)
	}
	if !exists {
		log.Fatalf("snapshot file %s not found", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read snapshot file: %s", err)
	}

	if err := backup.Import(ctx, kv, data); err != nil {
		log.Fatalf("import: %s", err)
	}
	log.Printf("imported %s", path)
}
