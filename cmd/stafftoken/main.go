// stafftoken mints staff access tokens for gate kiosks and local testing.
// It signs with JWT_SECRET (read from the environment or .env), the same
// secret the server verifies with.
//
//	stafftoken --id gate-north --name "North Gate" --role GATE --ttl 720h
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/venue-ticketing/internal/middleware"
	"github.com/iliyamo/venue-ticketing/internal/model"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		id, name, role string
		ttl            time.Duration
	)
	flagSet := pflag.NewFlagSet("stafftoken", pflag.ContinueOnError)
	flagSet.StringVar(&id, "id", "", "staff or device ID recorded on scans and tickets (required)")
	flagSet.StringVar(&name, "name", "", "display name")
	flagSet.StringVar(&role, "role", middleware.RoleCounter, "ADMIN, COUNTER or GATE")
	flagSet.DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read .env: %w", err)
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return errors.New("JWT_SECRET is not set")
	}

	tok, err := middleware.IssueStaffToken(secret, model.Staff{ID: id, Name: name}, role, ttl)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tok)
}
