// libctl is the operator companion to the libraria backend: it seeds the
// database with a default admin and sample catalog, and manages admin
// accounts from the command line.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okhuang/libraria-be/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:           "libctl",
		Short:         "Operator tooling for the libraria backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSeedCmd(), newCreateAdminCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("libctl: %v", err)
	}
}

// openStore loads .env, resolves DATABASE_URL, and connects.
func openStore(ctx context.Context) (*postgres.Store, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return postgres.NewStore(ctx, databaseURL)
}
