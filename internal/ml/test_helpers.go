package ml

import "sync"

// MockMetrics implements MetricsInterface and TrainingMetrics for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      float64
	batches          int
	latencySum       float64
	predictionScores []float64
	probaUnsupported int
	trainingRuns     int
	trainingSeconds  float64
	modelScores      map[string]float64
}

func (m *MockMetrics) PredictionsAdd(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions += v
}

func (m *MockMetrics) BatchesInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
}

func (m *MockMetrics) PredictionLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) PredictionScoreObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionScores = append(m.predictionScores, v)
}

func (m *MockMetrics) ProbaUnsupportedInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probaUnsupported++
}

func (m *MockMetrics) TrainingRunsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingRuns++
}

func (m *MockMetrics) TrainingDurationObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingSeconds += v
}

func (m *MockMetrics) ModelScoreSet(metric string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modelScores == nil {
		m.modelScores = make(map[string]float64)
	}
	m.modelScores[metric] = v
}
