package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/EmpoweredVote/tract-census/internal/config"
	"github.com/EmpoweredVote/tract-census/internal/db"
	"github.com/EmpoweredVote/tract-census/internal/refresh"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env.local")

	timeout := flag.Duration("timeout", 0, "per-request fetch timeout (default FETCH_TIMEOUT or 10s)")
	state := flag.String("state", "", "state FIPS code (default STATE_FIPS or 55)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"usage: %s [flags] <destination> <tracts> <api-key> <fields> <year>\n\n"+
				"  destination  qualified destination table, e.g. gis.census_languages\n"+
				"  tracts       qualified tract geometry table, e.g. tiger.tracts_55\n"+
				"  api-key      Census API key\n"+
				"  fields       semicolon-separated ACS field codes\n"+
				"  year         ACS survey year\n\n"+
				"Empty or missing arguments fall back to the environment (.env.local).\n\n",
			os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.LoadFromEnv()
	cfg.ApplyParams(flag.Args())
	if *timeout > 0 {
		cfg.FetchTimeout = *timeout
	}
	if *state != "" {
		cfg.StateFIPS = *state
	}

	if err := cfg.Validate(); err != nil {
		log.Println(err)
		flag.Usage()
		os.Exit(2)
	}

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stats, err := refresh.RunOnce(ctx, cfg, gdb)
	if err != nil {
		log.Fatalf("update failed: %v", err)
	}
	log.Printf("updated %d rows of %s from %d tracts", stats.Updated, cfg.Destination, stats.SourceRows)
}
