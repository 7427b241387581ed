package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/joho/godotenv"
	"github.com/rl-arena/ranked-matchmaker/internal/repository"
	"github.com/rl-arena/ranked-matchmaker/pkg/database"
	"github.com/rl-arena/ranked-matchmaker/pkg/logger"
)

// 개발용 데모 플레이어 생성. 이미 있으면 레이팅만 갱신
func main() {
	count := flag.Int("players", 10, "number of demo players")
	base := flag.Int("rating", 1000, "center rating")
	spread := flag.Int("spread", 300, "max distance from the center rating")
	flag.Parse()

	_ = godotenv.Load()
	logger.Init("info", "development")
	defer logger.Sync()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set in environment")
	}

	db, err := database.Connect(dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if _, err := db.Migrate(); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	ctx := context.Background()
	players := repository.NewPlayerRepository(db)

	for i := 1; i <= *count; i++ {
		rating := *base
		if *spread > 0 {
			rating += rand.Intn(2**spread+1) - *spread
		}

		externalID := fmt.Sprintf("demo-%d", i)
		p, err := players.GetOrCreate(ctx, externalID, fmt.Sprintf("Demo Player %d", i), rating)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", externalID, err)
		}
		if err := players.UpdateRating(ctx, p.ID, rating); err != nil {
			log.Fatalf("Failed to set rating for %s: %v", externalID, err)
		}

		logger.Info("Seeded player", "externalId", externalID, "id", p.ID, "rating", rating)
	}

	fmt.Printf("Seeded %d demo players\n", *count)
}
