package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/app"
	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/listing"
)

var (
	seedCount     int
	seedCaretaker string
)

func init() {
	seedCmd.Flags().IntVar(&seedCount, "count", 20, "number of demo properties to insert")
	seedCmd.Flags().StringVar(&seedCaretaker, "caretaker", "seed", "caretaker id recorded on each property")
	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo published properties",
	RunE:  runSeed,
}

var seedCities = []string{"Douala", "Yaounde", "Buea", "Limbe", "Bamenda", "Kribi"}

func runSeed(cmd *cobra.Command, _ []string) error {
	if seedCount < 1 {
		return fmt.Errorf("--count must be positive")
	}

	cfg := loadConfig()
	log := app.NewStderrLogger(cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		log.Warn("seed.inmemory", "hint", "without HAVEN_DATABASE_URL seeded rows vanish on exit")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	base := time.Now().UTC()
	for i := 0; i < seedCount; i++ {
		city := seedCities[i%len(seedCities)]
		p, err := a.Listings().Create(ctx, listing.CreateInput{
			Title:       fmt.Sprintf("%d-bedroom unit in %s", 1+i%4, city),
			City:        city,
			MonthlyRent: int64(40_000 + (i*7919)%160_000),
			Bedrooms:    1 + i%4,
			Status:      listing.StatusPublished,
			CaretakerID: seedCaretaker,
			// Spread creation times so created_at ordering is stable.
			Now: base.Add(-time.Duration(i) * time.Minute),
		})
		if err != nil {
			return fmt.Errorf("seed property %d: %w", i, err)
		}
		log.Debug("seed.property", "property_id", p.ID, "city", p.City)
	}

	log.Info("seed.done", "count", seedCount)
	return nil
}
