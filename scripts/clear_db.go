// Command clear_db wipes the games, game requests, and durable timers for a
// dev environment, leaving user accounts/ratings intact. Adapted from the
// teacher's games+moves wipe script onto the Store's collection layout.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"chessmata/internal/config"
	"chessmata/internal/store"
)

func main() {
	cfg, err := config.Load("dev")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	s, err := store.New(cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		log.Fatalf("failed to connect to mongodb: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close(ctx)
	}()

	ctx := context.Background()
	db := s.Database()

	for _, collection := range []string{"games", "game_requests", "timers", "router_events"} {
		result, err := db.Collection(collection).DeleteMany(ctx, map[string]interface{}{})
		if err != nil {
			log.Fatalf("failed to clear %s: %v", collection, err)
		}
		fmt.Printf("deleted %d documents from %s\n", result.DeletedCount, collection)
	}

	fmt.Println("database cleared")
}
