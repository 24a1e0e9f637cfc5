package main

import (
	"flag"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/texts-hq/sentry-relay/internal/seeder"
)

var (
	targetURL      = flag.String("target", "http://localhost:8787", "relay base URL")
	projectID      = flag.String("project", "1", "project ID for the envelope path")
	count          = flag.Int("count", 100, "number of envelopes to send")
	interval       = flag.Duration("interval", 100*time.Millisecond, "interval between envelopes")
	exceptionRatio = flag.Float64("exception-ratio", 0.3, "fraction of envelopes carrying exception data")
)

func main() {
	flag.Parse()

	gofakeit.Seed(time.Now().UnixNano())

	log.Printf("Starting envelope seeder:")
	log.Printf("  Target: %s", *targetURL)
	log.Printf("  Project: %s", *projectID)
	log.Printf("  Count: %d", *count)
	log.Printf("  Interval: %v", *interval)
	log.Printf("  Exception ratio: %.2f", *exceptionRatio)

	res, err := seeder.Run(seeder.Options{
		TargetURL:      *targetURL,
		ProjectID:      *projectID,
		Count:          *count,
		Interval:       *interval,
		ExceptionRatio: *exceptionRatio,
	})
	if err != nil {
		log.Fatalf("Seeder failed: %v", err)
	}

	log.Printf("Done: %d sent, %d failed", res.Sent, res.Failed)
}
