package main

import (
	"fmt"
	"os"

	"github.com/deepchat/deepchat-backend/internal/config"
	"github.com/deepchat/deepchat-backend/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	switch direction {
	case "up":
		if err := database.RunMigrations(cfg.Database); err != nil {
			fmt.Fprintln(os.Stderr, "Migration failed:", err)
			os.Exit(1)
		}
		fmt.Println("Migrations applied")
	case "down":
		if err := database.RollbackMigration(cfg.Database); err != nil {
			fmt.Fprintln(os.Stderr, "Rollback failed:", err)
			os.Exit(1)
		}
		fmt.Println("Last migration rolled back")
	default:
		fmt.Fprintf(os.Stderr, "Usage: %s [up|down]\n", os.Args[0])
		os.Exit(1)
	}
}
