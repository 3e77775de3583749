package main

import (
	"fmt"

	"github.com/ashureev/hope-map/internal/geocode"
	"github.com/ashureev/hope-map/internal/prep"
	"github.com/spf13/cobra"
)

var (
	geocodeIn       string
	geocodeOut      string
	geocodeProvider string
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Attach coordinates to analyzed stories using the place in each story ID",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("in") {
			geocodeIn = cfg.Stories.AnalyzedPath
		}
		if !cmd.Flags().Changed("out") {
			geocodeOut = cfg.Stories.GeocodedPath
		}

		geoCfg := cfg.Geocode
		if cmd.Flags().Changed("provider") {
			geoCfg.Provider = geocodeProvider
		}
		geocoder, err := geocode.New(geoCfg)
		if err != nil {
			return fmt.Errorf("creating geocoder: %w", err)
		}

		stories, err := prep.ReadStories(geocodeIn)
		if err != nil {
			return fmt.Errorf("reading analyzed stories (run analyze first): %w", err)
		}

		ctx, cancel := interruptible()
		defer cancel()

		fmt.Printf("Geocoding %d stories via %s...\n", len(stories), geoCfg.Provider)
		enriched, err := prep.Geocode(ctx, geocoder, stories, logger, printProgress)
		if err != nil {
			return err
		}

		if err := prep.WriteStories(geocodeOut, enriched); err != nil {
			return err
		}
		fmt.Printf("Saved %d geocoded stories to %s (%d places resolved)\n", len(enriched), geocodeOut, geocoder.Len())
		return nil
	},
}

func init() {
	geocodeCmd.Flags().StringVar(&geocodeIn, "in", "analyzed_stories.json", "Analyzed stories file")
	geocodeCmd.Flags().StringVar(&geocodeOut, "out", "geocoded_stories.json", "Output file")
	geocodeCmd.Flags().StringVar(&geocodeProvider, "provider", "", "Geocoding backend, photon or proxy (default from config)")
}
