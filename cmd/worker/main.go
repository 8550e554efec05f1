package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"eventtrack/internal/auditlog"
	"eventtrack/internal/config"
	"eventtrack/internal/queue"
	"eventtrack/internal/store"
)

// Worker drains the audit queue into the audit_log table.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "eventtrack:audit")
	}

	auditStore := auditlog.NewStore(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "lifecycle" {
			continue
		}

		rec, err := auditlog.Decode(msg.Body)
		if err != nil {
			log.Printf("bad audit payload: %v", err)
			continue
		}

		if err := auditStore.Insert(ctx, rec); err != nil {
			log.Printf("audit insert failed for %s: %v", rec.ID, err)
			continue
		}
		log.Printf("audit %s recorded: %s event=%d actor=%d", rec.ID, rec.Kind, rec.EventID, rec.ActorID)
	}

	log.Println("worker stopped")
}
