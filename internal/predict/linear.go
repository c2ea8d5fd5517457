package predict

import (
	"fmt"

	"github.com/BTreeMap/WapiDaktari/internal/models"
)

// LinearRegressor predicts Intercept + Coefficients·x.
type LinearRegressor struct {
	Name         string
	Intercept    float64
	Coefficients []float64
}

// Predict implements Regressor.
func (r *LinearRegressor) Predict(x []float64) (float64, error) {
	if len(x) != len(r.Coefficients) {
		return 0, &DimensionError{Model: r.Name, Want: len(r.Coefficients), Got: len(x)}
	}
	y := r.Intercept
	for i, w := range r.Coefficients {
		y += w * x[i]
	}
	return y, nil
}

// LinearClassifier scores every class with its own linear function and
// returns the encoded label of the highest score. Ties go to the earlier class.
type LinearClassifier struct {
	Name         string
	Classes      []int
	Intercepts   []float64
	Coefficients [][]float64
}

// Predict implements Classifier.
func (c *LinearClassifier) Predict(x []float64) (int, error) {
	if len(c.Classes) == 0 {
		return 0, fmt.Errorf("classifier %s has no classes", c.Name)
	}
	best, bestScore := 0, 0.0
	for k, w := range c.Coefficients {
		if len(x) != len(w) {
			return 0, &DimensionError{Model: c.Name, Want: len(w), Got: len(x)}
		}
		score := c.Intercepts[k]
		for i := range w {
			score += w[i] * x[i]
		}
		if k == 0 || score > bestScore {
			best, bestScore = k, score
		}
	}
	return c.Classes[best], nil
}

// LabelEncoder decodes label codes as indexes into Classes.
type LabelEncoder struct {
	Classes []string
}

// Decode implements LabelDecoder.
func (e *LabelEncoder) Decode(code int) (string, error) {
	if code < 0 || code >= len(e.Classes) {
		return "", fmt.Errorf("%w: %d", models.ErrUnknownLabel, code)
	}
	return e.Classes[code], nil
}
