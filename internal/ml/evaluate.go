package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ClassReport holds the per-class scores of an evaluation.
type ClassReport struct {
	Class     int
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Evaluation holds binary classification scores. Confusion is indexed
// [actual][predicted]. ROCAUC is only meaningful when HasROCAUC is set:
// it needs probabilities and both classes in the truth.
type Evaluation struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	ROCAUC    float64
	HasROCAUC bool
	Confusion [2][2]int
	Report    []ClassReport
}

// Metrics flattens the headline scores for the metrics file.
func (e Evaluation) Metrics() Metrics {
	m := Metrics{
		"accuracy":  e.Accuracy,
		"precision": e.Precision,
		"recall":    e.Recall,
		"f1_score":  e.F1,
	}
	if e.HasROCAUC {
		m["roc_auc"] = e.ROCAUC
	}
	return m
}

// Score computes the evaluation of predicted classes against truth, with
// the positive-class scores used for ROC-AUC when scores is not nil.
func Score(truth, predicted []int, scores []float64) (Evaluation, error) {
	if len(truth) != len(predicted) {
		return Evaluation{}, fmt.Errorf("truth has %d rows, predictions %d", len(truth), len(predicted))
	}
	if len(truth) == 0 {
		return Evaluation{}, errors.New("nothing to evaluate")
	}
	var e Evaluation
	for i, t := range truth {
		p := predicted[i]
		if t < 0 || t > 1 || p < 0 || p > 1 {
			return Evaluation{}, fmt.Errorf("row %d: non-binary class (truth %d, predicted %d)", i, t, p)
		}
		e.Confusion[t][p]++
	}

	tn, fp := float64(e.Confusion[0][0]), float64(e.Confusion[0][1])
	fn, tp := float64(e.Confusion[1][0]), float64(e.Confusion[1][1])
	e.Accuracy = (tp + tn) / float64(len(truth))

	for class := 0; class <= 1; class++ {
		hit := float64(e.Confusion[class][class])
		predictedAs := float64(e.Confusion[0][class] + e.Confusion[1][class])
		support := e.Confusion[class][0] + e.Confusion[class][1]
		r := ClassReport{Class: class, Support: support}
		r.Precision = ratio(hit, predictedAs)
		r.Recall = ratio(hit, float64(support))
		r.F1 = harmonic(r.Precision, r.Recall)
		e.Report = append(e.Report, r)
	}
	e.Precision = ratio(tp, tp+fp)
	e.Recall = ratio(tp, tp+fn)
	e.F1 = harmonic(e.Precision, e.Recall)

	if scores != nil {
		auc, err := ROCAUC(truth, scores)
		if err == nil {
			e.ROCAUC = auc
			e.HasROCAUC = true
		}
	}
	return e, nil
}

// ROCAUC returns the area under the ROC curve of positive-class scores.
func ROCAUC(truth []int, scores []float64) (float64, error) {
	if len(truth) != len(scores) {
		return 0, fmt.Errorf("truth has %d rows, scores %d", len(truth), len(scores))
	}
	y := make([]float64, len(scores))
	classes := make([]bool, len(truth))
	var pos int
	for i := range truth {
		y[i] = scores[i]
		classes[i] = truth[i] == 1
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(truth) {
		return 0, errors.New("ROC AUC is undefined when only one class is present")
	}
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// ratio returns num/den, or 0 when den is 0.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func harmonic(p, r float64) float64 {
	return ratio(2*p*r, p+r)
}
