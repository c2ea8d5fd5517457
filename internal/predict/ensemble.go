package predict

import (
	"errors"
	"fmt"
	"strconv"
)

// Member pairs the regressor and classifier trained by one model family.
type Member struct {
	Name       string
	Regressor  Regressor
	Classifier Classifier
}

// Ensemble holds the model families side by side. The first member is the
// primary one and is the only one that drives selection; the rest are
// auxiliary and only ever displayed.
type Ensemble struct {
	Members []Member
	Decoder LabelDecoder
}

// NewEnsemble validates and builds an ensemble.
func NewEnsemble(decoder LabelDecoder, members ...Member) (*Ensemble, error) {
	if len(members) == 0 {
		return nil, errors.New("ensemble needs at least one member")
	}
	if decoder == nil {
		return nil, errors.New("ensemble needs a label decoder")
	}
	for _, m := range members {
		if m.Regressor == nil || m.Classifier == nil {
			return nil, fmt.Errorf("ensemble member %q is incomplete", m.Name)
		}
	}
	return &Ensemble{Members: members, Decoder: decoder}, nil
}

// Primary returns the deciding member.
func (e *Ensemble) Primary() Member {
	return e.Members[0]
}

// Auxiliary returns the display-only members.
func (e *Ensemble) Auxiliary() []Member {
	return e.Members[1:]
}

// DecodeOrRaw decodes a label, falling back to the code's decimal text when
// the decoder has never seen it. The boolean reports whether decoding succeeded.
func (e *Ensemble) DecodeOrRaw(code int) (string, bool) {
	label, err := e.Decoder.Decode(code)
	if err != nil {
		return strconv.Itoa(code), false
	}
	return label, true
}

// RegressAll runs every member's regressor on x, keyed by member name.
func (e *Ensemble) RegressAll(x []float64) (map[string]float64, error) {
	out := make(map[string]float64, len(e.Members))
	for _, m := range e.Members {
		y, err := m.Regressor.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("regressor %s: %w", m.Name, err)
		}
		out[m.Name] = y
	}
	return out, nil
}

// ClassifyAll runs every member's classifier on x and decodes the labels,
// keyed by member name.
func (e *Ensemble) ClassifyAll(x []float64) (map[string]string, error) {
	out := make(map[string]string, len(e.Members))
	for _, m := range e.Members {
		code, err := m.Classifier.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("classifier %s: %w", m.Name, err)
		}
		out[m.Name], _ = e.DecodeOrRaw(code)
	}
	return out, nil
}
