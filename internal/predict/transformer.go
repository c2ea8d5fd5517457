package predict

import (
	"strconv"
	"strings"

	"github.com/BTreeMap/WapiDaktari/internal/models"
)

// NumericColumn is a standardized numeric feature: (x - Mean) / Scale.
type NumericColumn struct {
	Name  string  `yaml:"name"`
	Mean  float64 `yaml:"mean"`
	Scale float64 `yaml:"scale"`
}

// CategoricalColumn is a one-hot encoded feature. Values outside Categories
// encode as all zeros.
type CategoricalColumn struct {
	Name       string   `yaml:"name"`
	Categories []string `yaml:"categories"`
}

// ColumnTransformer lays numeric columns out first, in order, followed by the
// one-hot blocks of the categorical columns, in order.
type ColumnTransformer struct {
	Numeric     []NumericColumn     `yaml:"numeric"`
	Categorical []CategoricalColumn `yaml:"categorical"`
}

// Width is the length of the vectors produced by Transform.
func (c *ColumnTransformer) Width() int {
	n := len(c.Numeric)
	for _, col := range c.Categorical {
		n += len(col.Categories)
	}
	return n
}

// Transform implements Preprocessor.
func (c *ColumnTransformer) Transform(row models.FeatureRow) ([]float64, error) {
	out := make([]float64, 0, c.Width())
	for _, col := range c.Numeric {
		raw, ok := row.Value(col.Name)
		if !ok {
			return nil, &MissingFeatureError{Feature: col.Name}
		}
		x, err := parseNumeric(raw)
		if err != nil {
			return nil, &InvalidFeatureError{Feature: col.Name, Value: raw}
		}
		scale := col.Scale
		if scale == 0 {
			scale = 1
		}
		out = append(out, (x-col.Mean)/scale)
	}
	for _, col := range c.Categorical {
		raw, ok := row.Value(col.Name)
		if !ok {
			return nil, &MissingFeatureError{Feature: col.Name}
		}
		raw = strings.TrimSpace(raw)
		for _, category := range col.Categories {
			if raw == category {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		}
	}
	return out, nil
}

// parseNumeric accepts numbers and the boolean spellings found in the dataset.
func parseNumeric(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "true", "yes":
		return 1, nil
	case "false", "no":
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
