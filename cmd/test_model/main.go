package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"road-severity/severity"
)

// TestPrediction stores the decision for one input row
type TestPrediction struct {
	Row          int                 `json:"row"`
	Trip         severity.TripRecord `json:"trip"`
	RuleVerdict  string              `json:"rule_verdict,omitempty"`
	ModelVerdict string              `json:"model_verdict,omitempty"`
	Severity     string              `json:"severity,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// Decides every row of an unlabelled (or labelled) CSV of trips and writes
// the verdicts as CSV and optionally JSON. Rows that fail validation are
// reported with their error instead of aborting the run.
func main() {
	modelDir := flag.String("model", "model", "Directory holding the trained artifacts")
	input := flag.String("input", "", "CSV of trips with a header row naming the seven features")
	outputCSV := flag.String("output-csv", "", "Path for CSV results (stdout when empty)")
	outputJSON := flag.String("output-json", "", "Path for JSON results (empty to skip)")
	flag.Parse()

	if *input == "" {
		log.Fatal("Usage: test_model -input trips.csv [-model model] [-output-csv out.csv] [-output-json out.json]")
	}

	engine, err := severity.LoadEngine(*modelDir)
	if err != nil {
		log.Fatalf("failed to load engine: %v", err)
	}

	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("failed to open %s: %v", *input, err)
	}
	defer f.Close()

	results, err := decideAll(engine, f)
	if err != nil {
		log.Fatalf("failed to read %s: %v", *input, err)
	}

	out := os.Stdout
	if *outputCSV != "" {
		out, err = os.Create(*outputCSV)
		if err != nil {
			log.Fatalf("failed to create %s: %v", *outputCSV, err)
		}
		defer out.Close()
	}
	if err := writeCSV(out, results); err != nil {
		log.Fatalf("failed to write CSV: %v", err)
	}

	if *outputJSON != "" {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			log.Fatalf("failed to marshal JSON: %v", err)
		}
		if err := os.WriteFile(*outputJSON, data, 0644); err != nil {
			log.Fatalf("failed to write %s: %v", *outputJSON, err)
		}
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	log.Printf("Decided %d rows, %d rejected\n", len(results)-failed, failed)
}

func decideAll(engine *severity.Engine, r io.Reader) ([]TestPrediction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var results []TestPrediction
	for row := 2; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		src := severity.MapSource{}
		for i, name := range header {
			if i < len(record) {
				src[name] = record[i]
			}
		}

		result := TestPrediction{Row: row}
		d, err := engine.DecideForm(src)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Trip = d.Trip
			result.RuleVerdict = d.RuleVerdict.String()
			result.ModelVerdict = d.ModelVerdict.String()
			result.Severity = d.Severity.String()
		}
		results = append(results, result)
	}
	return results, nil
}

func writeCSV(w io.Writer, results []TestPrediction) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"row", "rule_verdict", "model_verdict", "severity", "error"}); err != nil {
		return err
	}
	for _, r := range results {
		if err := writer.Write([]string{strconv.Itoa(r.Row), r.RuleVerdict, r.ModelVerdict, r.Severity, r.Error}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
