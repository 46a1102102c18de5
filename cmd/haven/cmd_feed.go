package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/app"
	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/feed"
	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/listing"
)

var (
	feedConsumer string
	feedCursor   string
	feedLimit    int
	feedSort     string
	feedMark     bool
)

func init() {
	f := feedCmd.Flags()
	f.StringVar(&feedConsumer, "consumer", "", "consumer id whose seen history filters the feed (required)")
	f.StringVar(&feedCursor, "cursor", "", "cursor token from a previous page")
	f.IntVar(&feedLimit, "limit", 20, "page size (1..100)")
	f.StringVar(&feedSort, "sort", "", `sort order, e.g. "monthly_rent:asc,created_at:desc"`)
	f.BoolVar(&feedMark, "mark", false, "record the printed units as seen")
	_ = feedCmd.MarkFlagRequired("consumer")
	rootCmd.AddCommand(feedCmd)
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Print one unseen page for a consumer as JSON",
	RunE:  runFeed,
}

type feedUnit struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	City        string    `json:"city"`
	MonthlyRent int64     `json:"monthly_rent"`
	Bedrooms    int       `json:"bedrooms"`
	CreatedAt   time.Time `json:"created_at"`
}

type feedOutput struct {
	Units      []feedUnit `json:"units"`
	NextCursor *string    `json:"next_cursor"`
	HasMore    bool       `json:"has_more"`
}

func runFeed(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	log := app.NewStderrLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	var sort feed.SortConfig
	if feedSort != "" {
		if sort, err = feed.ParseSortConfig(feedSort); err != nil {
			return err
		}
	}
	asm, err := a.API().Assembler(sort)
	if err != nil {
		return err
	}
	cursor, err := a.Cursors().Decode(feedCursor)
	if err != nil {
		return err
	}

	page, err := asm.FetchUnseenPage(ctx, a.History(), feedConsumer, cursor, feedLimit)
	if err != nil {
		return err
	}

	out := feedOutput{Units: make([]feedUnit, 0, len(page.Units)), HasMore: page.HasMore}
	ids := make([]string, 0, len(page.Units))
	for _, p := range page.Units {
		out.Units = append(out.Units, toFeedUnit(p))
		ids = append(ids, p.ID)
	}
	if page.NextCursor != nil {
		tok, err := a.Cursors().Encode(page.NextCursor)
		if err != nil {
			return err
		}
		out.NextCursor = &tok
	}

	if feedMark && len(ids) > 0 {
		if _, err := a.History().MarkSeen(ctx, feedConsumer, ids, time.Now()); err != nil {
			return fmt.Errorf("mark seen: %w", err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func toFeedUnit(p listing.Property) feedUnit {
	return feedUnit{
		ID:          p.ID,
		Title:       p.Title,
		City:        p.City,
		MonthlyRent: p.MonthlyRent,
		Bedrooms:    p.Bedrooms,
		CreatedAt:   p.CreatedAt,
	}
}
