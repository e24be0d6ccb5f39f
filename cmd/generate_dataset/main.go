package main

import (
	"flag"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"road-severity/severity"
	"road-severity/utils"
)

func main() {
	n := flag.Int("n", 5000, "Number of rows to generate")
	seed := flag.Uint64("seed", 0, "Random seed (0 uses the current time)")
	output := flag.String("output", filepath.Join("data", "road_pred.csv"), "Output CSV path")
	flag.Parse()

	if *n <= 0 {
		log.Fatalf("ERROR: -n must be positive, got %d", *n)
	}
	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}

	log.SetFlags(log.Ldate | log.Ltime)
	log.Printf("Generating %d rows (seed %d)\n", *n, *seed)

	rows := severity.GenerateDataset(rand.New(rand.NewPCG(*seed, *seed)), *n)

	if dir := filepath.Dir(*output); dir != "." && dir != "" {
		if err := utils.CreateFolder(dir); err != nil {
			log.Fatalf("ERROR: Failed to create %s: %v", dir, err)
		}
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("ERROR: Failed to create %s: %v", *output, err)
	}
	if err := severity.WriteDataset(f, rows); err != nil {
		f.Close()
		log.Fatalf("ERROR: Failed to write dataset: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("ERROR: Failed to close %s: %v", *output, err)
	}

	log.Printf("Class distribution: %s\n", severity.Summary(rows))
	log.Printf("Dataset saved to: %s\n", *output)
}
