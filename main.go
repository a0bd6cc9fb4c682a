package main

import (
	"context"
	"log"
	"os"
	"time"

	"reconstudy/internal/api"
	"reconstudy/internal/config"
	"reconstudy/internal/dataset"
	"reconstudy/internal/gateway"
	"reconstudy/internal/recorder"
	"reconstudy/internal/redis"
	"reconstudy/internal/session"
	"reconstudy/internal/storage"
	"reconstudy/internal/worker"
	"reconstudy/internal/workflow"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("RECONSTUDY_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("RECONSTUDY_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// The session cache is optional; without redis every lookup hits the
	// database.
	rdb, err := redis.NewClient(cfg)
	if err != nil {
		log.Printf("redis unavailable, running without session cache: %v", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	ctx := context.Background()

	basic := cfg.BasicConfig
	library := dataset.NewLibrary(basic.InvoiceDir, basic.PurchaseDir, basic.ModifiedInvoiceDir, basic.ModifiedRatio, nil)
	extractor, err := dataset.NewExtractor(ctx)
	if err != nil {
		log.Fatalf("init document extractor: %v", err)
	}
	analyzer, err := gateway.New(cfg)
	if err != nil {
		log.Fatalf("init analyzer gateway: %v", err)
	}

	dispatch := worker.NewDispatcher(
		basic.MinWorkers,
		basic.MaxWorkers,
		basic.QueueSize,
		time.Duration(basic.WorkerIdleTimeout)*time.Minute,
	)
	rec := recorder.New(basic.ResultsDir)
	controller := workflow.NewController(library, extractor, analyzer, rec, dispatch, basic.TasksPerLevel)

	sessionTTL := time.Duration(basic.SessionTTLMinutes) * time.Minute
	store := session.NewStore(db, rdb, sessionTTL)

	purgeCtx, purgeCancel := context.WithCancel(ctx)
	defer purgeCancel()
	go purgeExpiredSessions(purgeCtx, store)

	handlers := api.NewHandler(store, controller, library, dispatch)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := basic.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func purgeExpiredSessions(ctx context.Context, store *session.Store) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.PurgeExpired(ctx); err != nil {
				log.Printf("purge expired sessions: %v", err)
			}
		}
	}
}
