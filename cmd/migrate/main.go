package main

import (
	"flag"
	"fmt"
	"log"

	"aquadetect/internal/config"
	"aquadetect/internal/logger"
	"aquadetect/internal/repository/sqlite"
	"aquadetect/internal/services/history"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	resultDir := flag.String("results", cfg.ResultDirectory, "Directory containing annotated images")
	uploadDir := flag.String("uploads", cfg.UploadDirectory, "Directory containing original images")
	dbPath := flag.String("db", cfg.HistoryDatabase, "History database path")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("History database path is empty (set HISTORY_DB or -db)")
	}

	fmt.Printf("Importing annotated images from %s into %s\n", *resultDir, *dbPath)

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	repo := sqlite.NewRequestRepository(db)
	summary, err := history.NewImporter(repo, *resultDir, *uploadDir, logger.NewNop()).Import()
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	fmt.Printf("✅ Imported %d records (%d already known)\n", summary.Imported, summary.Existing)
	if summary.Skipped > 0 {
		fmt.Printf("⚠️  Skipped %d files\n", summary.Skipped)
	}

	stats, err := repo.GetStats()
	if err == nil {
		fmt.Printf("\n📊 History:\n")
		fmt.Printf("   Total requests: %d\n", stats.TotalRequests)
		for status, count := range stats.PerStatus {
			fmt.Printf("      - %s: %d\n", status, count)
		}
	}
}
