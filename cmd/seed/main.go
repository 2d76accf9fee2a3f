package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hackgods/session-scheduling/internal/auth"
	"github.com/hackgods/session-scheduling/internal/config"
	"github.com/hackgods/session-scheduling/internal/db"
	"github.com/hackgods/session-scheduling/internal/logging"
	"github.com/hackgods/session-scheduling/internal/scheduling"
)

var specialties = []string{
	"Strength Training",
	"Yoga",
	"Pilates",
	"Mobility",
	"Boxing",
	"Running",
	"Nutrition Coaching",
	"Rehabilitation",
	"CrossFit",
	"Swimming",
}

func main() {
	providers := flag.Int("providers", 50, "number of provider profiles to create")
	clients := flag.Int("clients", 5, "number of client tokens to print")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.Must(false)
	defer logger.Sync()
	logger.Info("seed starting", zap.Int("providers", *providers))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{AppName: "session-scheduling-seed"})
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	gofakeit.Seed(time.Now().UnixNano())

	repo := scheduling.NewPgRepository(pool, cfg.TxMaxRetries)
	quiet := zap.NewNop()
	directory := scheduling.NewProviderDirectory(repo, quiet)
	registry := scheduling.NewAvailabilityRegistry(repo, quiet)
	gateway := auth.NewGateway(cfg.JWTSecret, cfg.JWTTTL)

	owners, err := seedProviders(ctx, logger, directory, registry, *providers)
	if err != nil {
		logger.Fatal("seed providers", zap.Error(err))
	}
	logger.Info("providers seeded", zap.Int("count", len(owners)))

	fmt.Println("# provider tokens")
	for i, owner := range owners {
		if i == 3 {
			break
		}
		printToken(logger, gateway, auth.Principal{ID: owner, Role: auth.RoleProvider})
	}
	fmt.Println("# client tokens")
	for i := 0; i < *clients; i++ {
		printToken(logger, gateway, auth.Principal{ID: uuid.New(), Role: auth.RoleClient})
	}

	logger.Info("seed complete")
}

// seedProviders creates profiles with a weekday schedule and returns their
// owner IDs.
func seedProviders(ctx context.Context, logger *zap.Logger, dir *scheduling.ProviderDirectory, reg *scheduling.AvailabilityRegistry, count int) ([]uuid.UUID, error) {
	owners := make([]uuid.UUID, 0, count)

	for i := 0; i < count; i++ {
		owner := uuid.New()
		_, err := dir.CreateProfile(ctx, owner, scheduling.ProfileInput{
			HourlyRate:      decimal.NewFromFloat(gofakeit.Price(25, 150)),
			Bio:             gofakeit.Sentence(12),
			Specialty:       specialties[gofakeit.Number(0, len(specialties)-1)],
			ExperienceYears: gofakeit.Number(0, 25),
			Certification:   gofakeit.Company() + " Certified",
		})
		if err != nil {
			return owners, fmt.Errorf("create profile %d: %w", i, err)
		}

		for day := scheduling.Monday; day <= scheduling.Friday; day++ {
			if gofakeit.Bool() && day != scheduling.Monday {
				continue
			}
			// Morning and afternoon blocks with a lunch gap.
			open := gofakeit.Number(6, 9)
			shut := gofakeit.Number(15, 20)
			blocks := [][2]scheduling.Clock{
				{scheduling.NewClock(open, 0), scheduling.NewClock(12, 0)},
				{scheduling.NewClock(13, 0), scheduling.NewClock(shut, 0)},
			}
			for _, b := range blocks {
				if _, err := reg.Add(ctx, owner, day, b[0], b[1]); err != nil {
					return owners, fmt.Errorf("add window for %s: %w", owner, err)
				}
			}
		}

		owners = append(owners, owner)
		if (i+1)%10 == 0 {
			logger.Info("providers seeded", zap.Int("done", i+1), zap.Int("total", count))
		}
	}
	return owners, nil
}

func printToken(logger *zap.Logger, gw *auth.Gateway, p auth.Principal) {
	tok, err := gw.IssueToken(p)
	if err != nil {
		logger.Fatal("issue token", zap.Error(err))
	}
	fmt.Printf("%s %s %s\n", p.Role, p.ID, tok)
}
