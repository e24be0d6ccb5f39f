package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"road-severity/severity"
	"road-severity/utils"
)

// Config holds training configuration
type Config struct {
	DataPath   string
	OutputDir  string
	K          int
	Oversample bool
	Seed       uint64
}

func main() {
	config := parseFlags()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("=== Severity Model Training Pipeline ===\n")
	log.Printf("Training data: %s\n", config.DataPath)
	log.Printf("Output dir: %s\n", config.OutputDir)
	log.Println()

	startTime := time.Now()

	log.Println("Step 1: Reading training data...")
	rows, err := readRows(config.DataPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to read training data: %v", err)
	}
	log.Printf("Read %d rows\n", len(rows))
	log.Printf("Class distribution: %s\n", severity.Summary(rows))
	log.Println()

	log.Println("Step 2: Fitting encoders and classifier...")
	artifacts, err := severity.Train(rows, severity.TrainOptions{
		K:          config.K,
		Oversample: config.Oversample,
		Seed:       config.Seed,
	})
	if err != nil {
		log.Fatalf("ERROR: Training failed: %v", err)
	}
	stats := artifacts.Model.Stats()
	log.Printf("Built %d prototypes over %d features (k=%d)\n", stats.PrototypeCount, stats.Dimensions, stats.K)
	log.Println()

	log.Println("Step 3: Saving artifacts to disk...")
	if err := utils.CreateFolder(config.OutputDir); err != nil {
		log.Fatalf("ERROR: Failed to create %s: %v", config.OutputDir, err)
	}
	if err := artifacts.Save(config.OutputDir); err != nil {
		log.Fatalf("ERROR: Failed to save artifacts: %v", err)
	}
	log.Printf("Artifacts saved to: %s\n", config.OutputDir)
	log.Println()

	printTrainingSummary(artifacts, stats, startTime)
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.DataPath, "data", filepath.Join("data", "road_pred.csv"),
		"CSV dataset with the seven features and accident_severity")
	flag.StringVar(&config.OutputDir, "output", "model",
		"Directory to write the model, encoders, feature order and target encoder")
	flag.IntVar(&config.K, "k", 5,
		"Number of nearest neighbours")
	flag.BoolVar(&config.Oversample, "oversample", true,
		"Duplicate minority classes up to the majority count")
	flag.Uint64Var(&config.Seed, "seed", 42,
		"Seed for oversampling")

	flag.Parse()

	if _, err := os.Stat(config.DataPath); os.IsNotExist(err) {
		log.Fatalf("ERROR: Training data does not exist: %s", config.DataPath)
	}

	return config
}

func readRows(path string) ([]severity.LabeledTrip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return severity.ReadDataset(f)
}

func printTrainingSummary(artifacts *severity.Artifacts, stats severity.ModelStats, startTime time.Time) {
	log.Println("=" + strings.Repeat("=", 59))
	log.Println("TRAINING SUMMARY")
	log.Println("=" + strings.Repeat("=", 59))
	log.Printf("Feature order: %s\n", strings.Join(artifacts.FeatureOrder, ", "))
	for _, field := range artifacts.Codec.Fields() {
		log.Printf("  %-25s %d values\n", field, len(artifacts.Codec.Domain(field)))
	}
	log.Printf("Target classes: %s\n", strings.Join(artifacts.Target.Classes(), ", "))
	for i, support := range stats.ClassSupport {
		label, _ := artifacts.Target.Decode(i)
		log.Printf("  %-10s %d prototypes\n", label, support)
	}
	log.Printf("Total time: %.2fs\n", time.Since(startTime).Seconds())
	log.Println("=" + strings.Repeat("=", 59))
}
