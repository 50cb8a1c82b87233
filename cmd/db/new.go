package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/garrettladley/whoopweb/internal/config"
	"github.com/spf13/cobra"
)

var migrationDirs = map[config.StoreKind]string{
	config.StoreSQLite:   filepath.Join("internal", "migrations", "sql"),
	config.StorePostgres: filepath.Join("internal", "migrations", "postgres", "sql"),
}

func newMigrationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new <name>",
		Short: "Create a new migration file for the selected store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readStore(cmd)
			if err != nil {
				return err
			}

			dir, ok := migrationDirs[cfg.Session.Store]
			if !ok {
				return fmt.Errorf("store %q has no migrations", cfg.Session.Store)
			}

			filename, err := createMigration(dir, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Created migration: %s\n", filename)
			return nil
		},
	}
}

func createMigration(dir, name string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read migrations directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%06d_%s.sql", nextMigrationNum(entries), name))
	if _, err := os.Stat(filename); err == nil {
		return "", fmt.Errorf("migration file already exists: %s", filename)
	}

	content := fmt.Sprintf("-- Migration: %s\n\n", name)
	if err := os.WriteFile(filename, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("failed to create migration file: %w", err)
	}
	return filename, nil
}

func nextMigrationNum(entries []os.DirEntry) int {
	var highest int
	for _, entry := range entries {
		prefix, _, ok := strings.Cut(entry.Name(), "_")
		if !ok || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var num int
		if _, err := fmt.Sscanf(prefix, "%d", &num); err != nil {
			continue
		}
		highest = max(highest, num)
	}
	return highest + 1
}
