package predict

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// artifactFile is the on-disk layout of a fitted model bundle.
type artifactFile struct {
	Preprocessor ColumnTransformer `yaml:"preprocessor"`
	LabelEncoder struct {
		Classes []string `yaml:"classes"`
	} `yaml:"label_encoder"`
	Models []modelSpec `yaml:"models"`
}

type modelSpec struct {
	Name      string `yaml:"name"`
	Regressor struct {
		Intercept    float64   `yaml:"intercept"`
		Coefficients []float64 `yaml:"coefficients"`
	} `yaml:"regressor"`
	Classifier struct {
		Classes      []int       `yaml:"classes"`
		Intercepts   []float64   `yaml:"intercepts"`
		Coefficients [][]float64 `yaml:"coefficients"`
	} `yaml:"classifier"`
}

// Artifacts is a loaded model bundle.
type Artifacts struct {
	Preprocessor *ColumnTransformer
	Ensemble     *Ensemble
}

// LoadArtifacts reads a model bundle from a YAML file.
func LoadArtifacts(path string) (*Artifacts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifacts: %w", err)
	}
	a, err := ParseArtifacts(data)
	if err != nil {
		return nil, fmt.Errorf("parse model artifacts %s: %w", path, err)
	}
	slog.Debug("predict.LoadArtifacts: model artifacts loaded", "path", path, "members", len(a.Ensemble.Members), "width", a.Preprocessor.Width())
	return a, nil
}

// ParseArtifacts decodes and validates a YAML model bundle.
func ParseArtifacts(data []byte) (*Artifacts, error) {
	var f artifactFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	pre := f.Preprocessor
	width := pre.Width()
	if width == 0 {
		return nil, errors.New("preprocessor has no columns")
	}
	if len(f.LabelEncoder.Classes) == 0 {
		return nil, errors.New("label encoder has no classes")
	}

	members := make([]Member, 0, len(f.Models))
	for _, m := range f.Models {
		if m.Name == "" {
			return nil, errors.New("model without a name")
		}
		if len(m.Regressor.Coefficients) != width {
			return nil, &DimensionError{Model: m.Name + " regressor", Want: width, Got: len(m.Regressor.Coefficients)}
		}
		c := m.Classifier
		if len(c.Classes) == 0 || len(c.Classes) != len(c.Intercepts) || len(c.Classes) != len(c.Coefficients) {
			return nil, fmt.Errorf("classifier %s: classes, intercepts and coefficients must have the same non-zero length", m.Name)
		}
		for _, row := range c.Coefficients {
			if len(row) != width {
				return nil, &DimensionError{Model: m.Name + " classifier", Want: width, Got: len(row)}
			}
		}
		members = append(members, Member{
			Name: m.Name,
			Regressor: &LinearRegressor{
				Name:         m.Name,
				Intercept:    m.Regressor.Intercept,
				Coefficients: m.Regressor.Coefficients,
			},
			Classifier: &LinearClassifier{
				Name:         m.Name,
				Classes:      c.Classes,
				Intercepts:   c.Intercepts,
				Coefficients: c.Coefficients,
			},
		})
	}

	ensemble, err := NewEnsemble(&LabelEncoder{Classes: f.LabelEncoder.Classes}, members...)
	if err != nil {
		return nil, err
	}
	return &Artifacts{Preprocessor: &pre, Ensemble: ensemble}, nil
}
