package ml

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ImportancePath derives the feature importance file paired with a model
// path: models/x_model.gob -> models/x_model_feature_importance.csv.
func ImportancePath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + "_feature_importance.csv"
}

// SaveFeatureImportance writes scores as a feature,importance CSV.
func SaveFeatureImportance(path string, scores []FeatureScore) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"feature", "importance"}); err != nil {
		return err
	}
	for _, s := range scores {
		if err := w.Write([]string{s.Feature, strconv.FormatFloat(s.Importance, 'f', -1, 64)}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	log.Info().Str("path", path).Int("features", len(scores)).Msg("Feature importance saved")
	return f.Close()
}

// LoadFeatureImportance reads a file written by SaveFeatureImportance.
func LoadFeatureImportance(path string) ([]FeatureScore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}
	out := make([]FeatureScore, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != 2 {
			return nil, fmt.Errorf("%s line %d: expected 2 fields, got %d", path, i+2, len(rec))
		}
		v, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		out = append(out, FeatureScore{Feature: rec[0], Importance: v})
	}
	return out, nil
}
