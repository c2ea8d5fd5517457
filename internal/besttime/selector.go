// Package besttime picks the time block with the lowest predicted wait for a
// hospital department on a given day.
package besttime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/BTreeMap/WapiDaktari/internal/models"
	"github.com/BTreeMap/WapiDaktari/internal/predict"
)

// FeatureLookup finds the feature row for an exact key. Missing rows fail
// with models.ErrFeatureRowNotFound.
type FeatureLookup interface {
	FindFeatureRow(ctx context.Context, key models.FeatureKey) (models.FeatureRow, error)
}

// Selector evaluates every time block of a day and keeps the cheapest one.
// It holds no mutable state and may be shared across requests.
type Selector struct {
	lookup       FeatureLookup
	preprocessor predict.Preprocessor
	ensemble     *predict.Ensemble
	blocks       []models.TimeBlock
}

// NewSelector wires a selector to its collaborators.
func NewSelector(lookup FeatureLookup, preprocessor predict.Preprocessor, ensemble *predict.Ensemble) *Selector {
	return &Selector{
		lookup:       lookup,
		preprocessor: preprocessor,
		ensemble:     ensemble,
		blocks:       models.TimeBlocks(),
	}
}

// Select returns the best time block for the hospital department on date.
//
// Blocks without a feature row are skipped. If none resolve, the error wraps
// models.ErrNoPrediction. Any other failure, including a panic inside the
// models, is returned as an error and never partially answered.
func (s *Selector) Select(ctx context.Context, hospital, department string, date time.Time) (result models.BestTime, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Selector.Select: recovered from panic", "panic", r, "hospital", hospital, "department", department)
			result = models.BestTime{}
			err = fmt.Errorf("prediction failed: %v", r)
		}
	}()

	day := date.Format(models.DateLayout)
	slog.Debug("Selector.Select: evaluating time blocks", "hospital", hospital, "department", department, "date", day)

	primary := s.ensemble.Primary()
	found := false
	var bestVector []float64
	best := models.BestTime{
		Hospital:   hospital,
		Department: department,
		Date:       day,
	}
	bestWait := math.Inf(1)
	bestCode := 0

	for _, block := range s.blocks {
		if err := ctx.Err(); err != nil {
			return models.BestTime{}, fmt.Errorf("prediction aborted: %w", err)
		}
		key := models.NewFeatureKey(hospital, department, date, block)
		row, err := s.lookup.FindFeatureRow(ctx, key)
		if errors.Is(err, models.ErrFeatureRowNotFound) {
			slog.Debug("Selector.Select: block skipped, no feature row", "key", key.String())
			best.Skipped = append(best.Skipped, block)
			continue
		}
		if err != nil {
			return models.BestTime{}, fmt.Errorf("lookup %s: %w", key, err)
		}

		x, err := s.preprocessor.Transform(row)
		if err != nil {
			return models.BestTime{}, fmt.Errorf("preprocess %s: %w", key, err)
		}
		wait, err := primary.Regressor.Predict(x)
		if err != nil {
			return models.BestTime{}, fmt.Errorf("regressor %s on %s: %w", primary.Name, key, err)
		}
		code, err := primary.Classifier.Predict(x)
		if err != nil {
			return models.BestTime{}, fmt.Errorf("classifier %s on %s: %w", primary.Name, key, err)
		}
		wait = clampWait(wait)
		slog.Debug("Selector.Select: block evaluated", "key", key.String(), "wait_minutes", wait, "label_code", code)

		if !found || wait < bestWait {
			found = true
			bestWait = wait
			bestCode = code
			bestVector = x
			best.TimeBlock = block
		}
	}

	if !found {
		slog.Info("Selector.Select: no time block resolvable", "hospital", hospital, "department", department, "date", day)
		return models.BestTime{}, fmt.Errorf("%s %s on %s: %w", hospital, department, day, models.ErrNoPrediction)
	}

	best.WaitMinutes = bestWait
	best.Congestion, best.LabelDecoded = s.ensemble.DecodeOrRaw(bestCode)
	if !best.LabelDecoded {
		slog.Warn("Selector.Select: congestion label not decodable, using raw value", "code", bestCode)
	}
	best.Auxiliary = s.auxiliary(bestVector)
	return best, nil
}

// auxiliary evaluates the display-only members on the winning vector. Their
// failures are logged and dropped.
func (s *Selector) auxiliary(x []float64) []models.MemberEstimate {
	var out []models.MemberEstimate
	for _, m := range s.ensemble.Auxiliary() {
		est, err := s.estimate(m, x)
		if err != nil {
			slog.Warn("Selector.auxiliary: member failed", "model", m.Name, "error", err)
			continue
		}
		out = append(out, est)
	}
	return out
}

func (s *Selector) estimate(m predict.Member, x []float64) (est models.MemberEstimate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	wait, err := m.Regressor.Predict(x)
	if err != nil {
		return est, err
	}
	code, err := m.Classifier.Predict(x)
	if err != nil {
		return est, err
	}
	label, _ := s.ensemble.DecodeOrRaw(code)
	return models.MemberEstimate{Model: m.Name, WaitMinutes: clampWait(wait), Congestion: label}, nil
}

// clampWait keeps waits non-negative. NaN is treated as zero.
func clampWait(wait float64) float64 {
	if wait < 0 || math.IsNaN(wait) {
		return 0
	}
	return wait
}
