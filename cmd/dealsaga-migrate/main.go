package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/akriventsev/dealsaga/migrations"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	dbURL := flag.String("database-url", os.Getenv("DEALSAGA_STORE_DSN"), "PostgreSQL connection string")
	migrationsDir := flag.String("migrations-dir", migrations.DefaultDir, "Path to migrations directory")

	flag.CommandLine.Parse(os.Args[2:])

	if *dbURL == "" {
		fmt.Fprintf(os.Stderr, "Error: --database-url or DEALSAGA_STORE_DSN is required\n")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", *dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.SetDialect("postgres"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "up":
		runUp(db, *migrationsDir)
	case "down":
		steps := int64(1)
		if len(flag.Args()) > 0 {
			if n, err := strconv.ParseInt(flag.Args()[0], 10, 64); err == nil {
				steps = n
			}
		}
		runDown(db, *migrationsDir, steps)
	case "status":
		runStatus(db, *migrationsDir)
	case "version":
		runVersion(db)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("dealsaga Migration Tool")
	fmt.Println()
	fmt.Println("Usage: dealsaga-migrate <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up         - Apply all pending migrations")
	fmt.Println("  down [N]   - Rollback N migrations (default: 1)")
	fmt.Println("  status     - Show status of all migrations")
	fmt.Println("  version    - Show current migration version")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --database-url     - PostgreSQL connection string (default: $DEALSAGA_STORE_DSN)")
	fmt.Println("  --migrations-dir   - Path to migrations directory (default: ./migrations)")
}

func runUp(db *sql.DB, dir string) {
	if err := migrations.RunMigrations(db, dir); err != nil {
		fmt.Fprintf(os.Stderr, "Error applying migrations: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Migrations applied successfully")
}

func runDown(db *sql.DB, dir string, steps int64) {
	if err := migrations.RollbackMigrations(db, dir, steps); err != nil {
		fmt.Fprintf(os.Stderr, "Error rolling back migrations: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Rolled back %d migration(s)\n", steps)
}

func runStatus(db *sql.DB, dir string) {
	statuses, err := migrations.GetMigrationStatus(db, dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting status: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Migration Status:")
	fmt.Println("================")
	for _, status := range statuses {
		statusIcon := "⏳"
		if status.Status == "applied" {
			statusIcon = "✅"
		}

		fmt.Printf("%s %d - %s", statusIcon, status.Version, status.Name)
		if status.AppliedAt != nil {
			fmt.Printf(" (applied at %s)", status.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
}

func runVersion(db *sql.DB) {
	version, err := migrations.GetCurrentVersion(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting version: %v\n", err)
		os.Exit(1)
	}

	if version == 0 {
		fmt.Println("No migrations applied")
	} else {
		fmt.Println(version)
	}
}
