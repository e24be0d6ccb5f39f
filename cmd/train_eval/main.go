package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"

	"road-severity/severity"
	"road-severity/utils"
)

// Trains on a shuffled split of the dataset and reports accuracy on the
// held-out rows, optionally saving the artifacts.
func main() {
	dataFlag := flag.String("data", filepath.Join("data", "road_pred.csv"), "Labelled CSV dataset")
	kFlag := flag.Int("k", utils.GetEnvInt("SEVERITY_MODEL_K", 5), "Number of neighbours")
	testFlag := flag.Float64("test", 0.2, "Fraction of rows held out for evaluation")
	seedFlag := flag.Uint64("seed", 42, "Seed for the split and oversampling")
	oversample := flag.Bool("oversample", true, "Oversample minority classes in the training split")
	outputFlag := flag.String("output", "", "Directory to save the trained artifacts (empty to skip)")
	flag.Parse()

	f, err := os.Open(*dataFlag)
	if err != nil {
		log.Fatalf("failed to open %s: %v", *dataFlag, err)
	}
	rows, err := severity.ReadDataset(f)
	f.Close()
	if err != nil {
		log.Fatalf("failed to read %s: %v", *dataFlag, err)
	}

	train, test := severity.SplitDataset(rows, rand.New(rand.NewPCG(*seedFlag, *seedFlag)), *testFlag)
	if len(test) == 0 {
		log.Fatalf("no rows held out; increase -test")
	}
	fmt.Printf("Training on %d rows (%s), testing on %d rows (%s)\n\n",
		len(train), severity.Summary(train), len(test), severity.Summary(test))

	artifacts, err := severity.Train(train, severity.TrainOptions{K: *kFlag, Oversample: *oversample, Seed: *seedFlag})
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	engine, err := artifacts.Engine()
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}

	// Held-out rows may carry categories the training split never saw.
	var usable []severity.LabeledTrip
	for _, row := range test {
		if _, err := engine.Encode(row.Trip); err == nil {
			usable = append(usable, row)
		}
	}
	if skipped := len(test) - len(usable); skipped > 0 {
		fmt.Printf("Skipped %d held-out rows with unseen categories\n", skipped)
	}

	report, err := severity.EvaluateEngine(engine, usable)
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}

	fmt.Printf("k=%d model accuracy: %.2f%%, final accuracy: %.2f%%, rule overrides: %d\n",
		*kFlag, report.ModelAccuracy*100, report.FinalAccuracy*100, report.RuleOverrides)
	for _, m := range report.Classes {
		fmt.Printf("  %-8s precision %.3f recall %.3f f1 %.3f (n=%d)\n", m.Class, m.Precision, m.Recall, m.F1, m.Support)
	}

	if *outputFlag != "" {
		if err := utils.CreateFolder(*outputFlag); err != nil {
			log.Fatalf("failed to create %s: %v", *outputFlag, err)
		}
		if err := artifacts.Save(*outputFlag); err != nil {
			log.Fatalf("failed to save artifacts: %v", err)
		}
		fmt.Printf("\nArtifacts saved to %s\n", *outputFlag)
	}
}
