package pipeline

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Tunables holds the retrieval and distribution thresholds. They are tuned
// constants, not invariants, so they live in a single SSM-hosted YAML
// document rather than in code. Zero fields fall back to the defaults.
type Tunables struct {
	TopK                int     `yaml:"top_k"`
	GroundingThreshold  float64 `yaml:"grounding_threshold"`
	LowQualityThreshold float64 `yaml:"low_quality_threshold"`
	SignalsForOffer     int     `yaml:"signals_for_offer"`
	HistoryLimit        int     `yaml:"history_limit"`
	MaxTurns            int     `yaml:"max_turns"`
	MaxQuestionLen      int     `yaml:"max_question_len"`
	MinAnswerLen        int     `yaml:"min_answer_len"`
}

// DefaultTunables returns the compiled-in defaults used when the SSM
// document is absent or leaves a field unset.
func DefaultTunables() Tunables {
	return Tunables{
		TopK:                5,
		GroundingThreshold:  0.55,
		LowQualityThreshold: 0.4,
		SignalsForOffer:     2,
		HistoryLimit:        10,
		MaxTurns:            20,
		MaxQuestionLen:      300,
		MinAnswerLen:        40,
	}
}

// ParseTunables decodes the YAML tunables document and backfills defaults
// for any unset field.
func ParseTunables(raw []byte) (Tunables, error) {
	t := Tunables{}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tunables{}, fmt.Errorf("pipeline: parse tunables: %w", err)
	}
	def := DefaultTunables()
	if t.TopK <= 0 {
		t.TopK = def.TopK
	}
	if t.GroundingThreshold <= 0 {
		t.GroundingThreshold = def.GroundingThreshold
	}
	if t.LowQualityThreshold <= 0 {
		t.LowQualityThreshold = def.LowQualityThreshold
	}
	if t.SignalsForOffer <= 0 {
		t.SignalsForOffer = def.SignalsForOffer
	}
	if t.HistoryLimit <= 0 {
		t.HistoryLimit = def.HistoryLimit
	}
	if t.MaxTurns <= 0 {
		t.MaxTurns = def.MaxTurns
	}
	if t.MaxQuestionLen <= 0 {
		t.MaxQuestionLen = def.MaxQuestionLen
	}
	if t.MinAnswerLen <= 0 {
		t.MinAnswerLen = def.MinAnswerLen
	}
	return t, nil
}
