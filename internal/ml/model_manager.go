package ml

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ModelExt is the file extension of saved models.
const ModelExt = ".gob"

// ErrModelNotLoaded is the errors.Is target for unusable model artifacts.
var ErrModelNotLoaded = errors.New("model not loaded")

// ModelNotLoadedError reports a model artifact that is missing or cannot be
// decoded.
type ModelNotLoadedError struct {
	Path string
	Err  error
}

func (e *ModelNotLoadedError) Error() string {
	return fmt.Sprintf("model not loaded from %s: %v", e.Path, e.Err)
}

func (e *ModelNotLoadedError) Unwrap() []error { return []error{ErrModelNotLoaded, e.Err} }

// Metrics is the flat metric map stored next to a model.
type Metrics map[string]float64

// MetricsPath derives the metrics file paired with a model path:
// models/x_model.gob -> models/x_model_metrics.json.
func MetricsPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + "_metrics.json"
}

// SaveArtifact writes the model and its metrics as a pair. Both files are
// staged as temporaries and renamed into place; on any failure neither the
// new model nor the new metrics file is left behind.
func SaveArtifact(path string, a *Artifact, metrics Metrics) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	metricsPath := MetricsPath(path)

	modelTmp, err := stage(dir, filepath.Base(path), func(f *os.File) error {
		return gob.NewEncoder(f).Encode(a)
	})
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	defer os.Remove(modelTmp)

	if metrics == nil {
		metrics = Metrics{}
	}
	metricsTmp, err := stage(dir, filepath.Base(metricsPath), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(metrics)
	})
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	defer os.Remove(metricsTmp)

	if err := os.Rename(modelTmp, path); err != nil {
		return fmt.Errorf("install model: %w", err)
	}
	if err := os.Rename(metricsTmp, metricsPath); err != nil {
		os.Remove(path)
		os.Remove(metricsPath)
		return fmt.Errorf("install metrics: %w", err)
	}

	log.Info().Str("model_path", path).Str("metrics_path", metricsPath).Str("kind", string(a.Kind)).
		Int("features", len(a.Features)).Msg("Model saved")
	return nil
}

// stage writes a temporary file next to its final name and syncs it.
func stage(dir, base string, write func(*os.File) error) (string, error) {
	f, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := write(f); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// LoadModel reads a model artifact.
func LoadModel(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ModelNotLoadedError{Path: path, Err: err}
	}
	defer f.Close()

	a := &Artifact{}
	if err := gob.NewDecoder(f).Decode(a); err != nil {
		return nil, &ModelNotLoadedError{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	if _, err := a.Estimator(); err != nil {
		return nil, &ModelNotLoadedError{Path: path, Err: err}
	}
	log.Info().Str("model_path", path).Str("kind", string(a.Kind)).Msg("Model loaded")
	return a, nil
}

// LoadMetrics reads the metrics paired with a model path.
func LoadMetrics(modelPath string) (Metrics, error) {
	data, err := os.ReadFile(MetricsPath(modelPath))
	if err != nil {
		return nil, err
	}
	m := Metrics{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
