package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	stripeprovider "github.com/tendant/simple-site/pkg/simplesite/payment/stripe"
)

type Config struct {
	APIKey  string `env:"STRIPE_API_KEY" env-required:"true"`
	APIBase string `env:"STRIPE_API_BASE" env-default:""`
}

func main() {
	limit := flag.Int64("limit", 10, "number of checkout sessions to list")
	timeout := flag.Duration("timeout", 15*time.Second, "request timeout")
	flag.Parse()

	_ = godotenv.Load()

	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	provider := stripeprovider.New(
		stripeprovider.WithAPIBase(config.APIBase),
		stripeprovider.WithLogger(slog.Default()),
		stripeprovider.WithMaxNetworkRetries(0),
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sessions, err := provider.ListRecentSessions(ctx, config.APIKey, *limit)
	if err != nil {
		slog.Error("Stripe connectivity check failed", "api_base", config.APIBase, "err", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tSTATUS\tPAYMENT\tAMOUNT\tREFERENCE\tCREATED\n")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d %s\t%s\t%s\n",
			s.ID, s.Status, s.PaymentStatus, s.AmountTotal, s.Currency, s.ClientReferenceID,
			time.Unix(s.Created, 0).UTC().Format(time.RFC3339))
	}
	w.Flush()
	fmt.Printf("\nOK: %d checkout session(s)\n", len(sessions))
}
