package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stemsi/certify-backend/internal/config"
)

func main() {
	var migrationDir string
	flag.StringVar(&migrationDir, "path", "migrations", "Path to migration files")
	flag.Parse()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		return
	}

	m, err := migrate.New("file://"+migrationDir, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Migration failed to initialize: %v", err)
	}
	defer m.Close()

	switch args[0] {
	case "up":
		check("Up", m.Up())
		fmt.Println("Migrated up successfully")
	case "down":
		check("Down", m.Down())
		fmt.Println("Migrated down successfully")
	case "steps":
		n := intArg(args, "steps")
		check("Steps", m.Steps(n))
		fmt.Printf("Applied %d step(s)\n", n)
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("No migrations applied")
			return
		}
		if err != nil {
			log.Fatalf("Version failed: %v", err)
		}
		fmt.Printf("Version: %d, Dirty: %t\n", version, dirty)
	case "force":
		v := intArg(args, "force")
		if err := m.Force(v); err != nil {
			log.Fatalf("Force failed: %v", err)
		}
		fmt.Printf("Forced version to %d\n", v)
	default:
		printUsage()
	}
}

func check(op string, err error) {
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("%s failed: %v", op, err)
	}
}

func intArg(args []string, command string) int {
	if len(args) < 2 {
		log.Fatalf("%s requires a numeric argument", command)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		log.Fatalf("Invalid %s argument: %v", command, err)
	}
	return n
}

func printUsage() {
	fmt.Println("Usage: migrate [flags] <command>")
	fmt.Println("Commands: up, down, steps <n>, version, force <version>")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
