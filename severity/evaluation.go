package severity

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// ClassMetrics summarises the model's performance on one severity.
type ClassMetrics struct {
	Class     Severity `json:"class"`
	Support   int      `json:"support"`
	Predicted int      `json:"predicted"`
	Correct   int      `json:"correct"`
	Precision float64  `json:"precision"`
	Recall    float64  `json:"recall"`
	F1        float64  `json:"f1"`
}

// EvaluationReport compares an engine's verdicts against labelled rows.
// Confusion is indexed [actual][predicted] in Severities() order and counts
// model verdicts.
type EvaluationReport struct {
	Samples       int            `json:"samples"`
	ModelCorrect  int            `json:"modelCorrect"`
	ModelAccuracy float64        `json:"modelAccuracy"`
	FinalCorrect  int            `json:"finalCorrect"`
	FinalAccuracy float64        `json:"finalAccuracy"`
	RuleOverrides int            `json:"ruleOverrides"`
	Classes       []ClassMetrics `json:"classes"`
	Confusion     [][]int        `json:"confusion"`
}

// EvaluateEngine decides every row and tallies model and final accuracy.
func EvaluateEngine(e *Engine, rows []LabeledTrip) (*EvaluationReport, error) {
	if len(rows) == 0 {
		return nil, errors.New("no evaluation rows")
	}

	classes := Severities()
	confusion := make([][]int, len(classes))
	for i := range confusion {
		confusion[i] = make([]int, len(classes))
	}

	report := &EvaluationReport{Samples: len(rows), Confusion: confusion}
	for i, row := range rows {
		d, err := e.Decide(row.Trip)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		confusion[row.Severity][d.ModelVerdict]++
		if d.ModelVerdict == row.Severity {
			report.ModelCorrect++
		}
		if d.Severity == row.Severity {
			report.FinalCorrect++
		}
		if d.RuleOverride() {
			report.RuleOverrides++
		}
	}

	report.ModelAccuracy = float64(report.ModelCorrect) / float64(len(rows))
	report.FinalAccuracy = float64(report.FinalCorrect) / float64(len(rows))

	for _, s := range classes {
		m := ClassMetrics{Class: s, Correct: confusion[s][s]}
		for _, other := range classes {
			m.Support += confusion[s][other]
			m.Predicted += confusion[other][s]
		}
		if m.Predicted > 0 {
			m.Precision = float64(m.Correct) / float64(m.Predicted)
		}
		if m.Support > 0 {
			m.Recall = float64(m.Correct) / float64(m.Support)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.Classes = append(report.Classes, m)
	}
	return report, nil
}

// SplitDataset shuffles a copy of rows and holds out testFraction of them.
func SplitDataset(rows []LabeledTrip, rng *rand.Rand, testFraction float64) (train, test []LabeledTrip) {
	shuffled := append([]LabeledTrip(nil), rows...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	testFraction = min(max(testFraction, 0), 1)
	cut := len(shuffled) - int(float64(len(shuffled))*testFraction)
	return shuffled[:cut], shuffled[cut:]
}
