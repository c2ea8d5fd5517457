// Package predict holds the model-side collaborators of the best-time
// selector: the feature preprocessor, the regression and classification
// ensembles, and the congestion label decoder.
//
// All values in this package are immutable after loading and safe to share
// across concurrent requests.
package predict

import (
	"fmt"

	"github.com/BTreeMap/WapiDaktari/internal/models"
)

// Preprocessor turns a raw feature row into a model-ready vector.
type Preprocessor interface {
	Transform(row models.FeatureRow) ([]float64, error)
}

// Regressor predicts a wait time in minutes.
type Regressor interface {
	Predict(x []float64) (float64, error)
}

// Classifier predicts an encoded congestion label.
type Classifier interface {
	Predict(x []float64) (int, error)
}

// LabelDecoder maps encoded labels back to their names. Unseen codes fail
// with models.ErrUnknownLabel.
type LabelDecoder interface {
	Decode(code int) (string, error)
}

// MissingFeatureError reports an attribute the preprocessor was fitted with
// but the row does not carry.
type MissingFeatureError struct {
	Feature string
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("missing required feature %q", e.Feature)
}

// InvalidFeatureError reports a value that cannot be used for a numeric feature.
type InvalidFeatureError struct {
	Feature string
	Value   string
}

func (e *InvalidFeatureError) Error() string {
	return fmt.Sprintf("invalid value %q for numeric feature %q", e.Value, e.Feature)
}

// DimensionError reports a vector whose length does not match the model.
type DimensionError struct {
	Model string
	Want  int
	Got   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("model %s expects %d features, got %d", e.Model, e.Want, e.Got)
}
