package evaluation

import (
	"time"

	"github.com/theimaginaryfoundation/prodcat/categorize/fileutils"
)

// Report is the JSON summary written by the evaluate tool.
type Report struct {
	Input       string             `json:"input"`
	TruthColumn string             `json:"truth_column"`
	PredColumn  string             `json:"pred_column"`
	Rows        int                `json:"rows"`
	Scores      map[string]float64 `json:"scores"`
	Comparison  *Comparison        `json:"comparison,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Comparison is a McNemar test of Input against another result file.
type Comparison struct {
	Other      string `json:"other"`
	PredColumn string `json:"pred_column"`
	Level      Level  `json:"level"`
	McNemarResult
}

func WriteReport(path string, r Report) error {
	return fileutils.WriteJSONFileAtomic(path, r, true)
}
