package categorize

import (
	"time"

	"github.com/theimaginaryfoundation/prodcat/categorize/fileutils"
)

// RunManifest records how a result file was produced.
type RunManifest struct {
	RunID           string         `json:"run_id"`
	Experiment      ExperimentType `json:"experiment"`
	WithDefinitions bool           `json:"with_definitions"`
	Model           string         `json:"model"`
	Structured      bool           `json:"structured,omitempty"`
	Seed            uint64         `json:"seed"`
	APISeed         bool           `json:"api_seed,omitempty"`

	SelfConsistencyRounds int     `json:"self_consistency_rounds"`
	ChoiceShufflingRounds int     `json:"choice_shuffling_rounds"`
	MaxRetries            int     `json:"max_retries"`
	GreedyTemperature     float64 `json:"greedy_temperature"`
	SamplingTemperature   float64 `json:"sampling_temperature"`

	InputPath    string `json:"input_path"`
	OutputPath   string `json:"output_path"`
	LogPath      string `json:"log_path"`
	TaxonomyPath string `json:"taxonomy_path,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Stats      RunStats  `json:"stats"`
	Error      string    `json:"error,omitempty"`
}

func WriteRunManifest(path string, m RunManifest) error {
	return fileutils.WriteJSONFileAtomic(path, m, true)
}
