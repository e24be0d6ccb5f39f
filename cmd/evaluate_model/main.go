package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"road-severity/severity"
)

// EvaluationConfig holds evaluation parameters
type EvaluationConfig struct {
	ModelDir   string
	DataPath   string
	ReportPath string
}

type savedReport struct {
	Timestamp time.Time `json:"timestamp"`
	ModelDir  string    `json:"modelDir"`
	DataPath  string    `json:"dataPath"`
	*severity.EvaluationReport
}

func main() {
	config := parseFlags()

	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("=== Model Evaluation Pipeline ===")
	log.Printf("Model: %s\n", config.ModelDir)
	log.Printf("Data: %s\n", config.DataPath)
	log.Println()

	engine, err := severity.LoadEngine(config.ModelDir)
	if err != nil {
		log.Fatalf("ERROR: Failed to load model: %v", err)
	}

	f, err := os.Open(config.DataPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to open data: %v", err)
	}
	rows, err := severity.ReadDataset(f)
	f.Close()
	if err != nil {
		log.Fatalf("ERROR: Failed to read data: %v", err)
	}
	log.Printf("Evaluating %d rows (%s)\n", len(rows), severity.Summary(rows))

	report, err := severity.EvaluateEngine(engine, rows)
	if err != nil {
		log.Fatalf("ERROR: Evaluation failed: %v", err)
	}

	printEvaluationReport(report)

	if config.ReportPath != "" {
		if err := saveReport(savedReport{
			Timestamp:        time.Now(),
			ModelDir:         config.ModelDir,
			DataPath:         config.DataPath,
			EvaluationReport: report,
		}, config.ReportPath); err != nil {
			log.Printf("WARNING: Failed to save report: %v\n", err)
		} else {
			log.Printf("Report saved to: %s\n", config.ReportPath)
		}
	}
}

func parseFlags() EvaluationConfig {
	config := EvaluationConfig{}

	flag.StringVar(&config.ModelDir, "model", "model",
		"Directory holding the trained artifacts")
	flag.StringVar(&config.DataPath, "data", filepath.Join("data", "road_pred.csv"),
		"Labelled CSV dataset to evaluate against")
	flag.StringVar(&config.ReportPath, "report", "",
		"Path to save a JSON evaluation report (empty to skip)")

	flag.Parse()

	return config
}

func printEvaluationReport(report *severity.EvaluationReport) {
	log.Println()
	log.Println("=" + strings.Repeat("=", 59))
	log.Println("EVALUATION RESULTS")
	log.Println("=" + strings.Repeat("=", 59))

	log.Printf("Model accuracy: %.2f%% (%d/%d)\n",
		report.ModelAccuracy*100, report.ModelCorrect, report.Samples)
	log.Printf("Final verdict accuracy: %.2f%% (%d/%d)\n",
		report.FinalAccuracy*100, report.FinalCorrect, report.Samples)
	log.Printf("Rule overrides: %d\n", report.RuleOverrides)
	log.Println()

	log.Println("Per-Class Performance (model):")
	log.Println(strings.Repeat("-", 60))
	log.Printf("%-10s %10s %10s %10s %10s\n", "Class", "Precision", "Recall", "F1", "Support")
	log.Println(strings.Repeat("-", 60))
	for _, m := range report.Classes {
		log.Printf("%-10s %9.1f%% %9.1f%% %10.3f %10d\n",
			m.Class, m.Precision*100, m.Recall*100, m.F1, m.Support)
	}
	log.Println()

	printConfusionMatrix(report.Confusion)
}

func printConfusionMatrix(matrix [][]int) {
	log.Println("Confusion Matrix (model):")
	log.Println(strings.Repeat("-", 60))

	labels := severity.Severities()
	fmt.Printf("%-15s", "Actual \\ Pred")
	for _, label := range labels {
		fmt.Printf(" %8s", label)
	}
	fmt.Println()

	for i, actual := range labels {
		fmt.Printf("%-15s", actual)
		for j := range labels {
			if count := matrix[i][j]; count > 0 {
				fmt.Printf(" %8d", count)
			} else {
				fmt.Printf(" %8s", ".")
			}
		}
		fmt.Println()
	}
	log.Println()
}

func saveReport(report savedReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
