package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/IDEA-FinAI/RagLLaVA/internal/dataset"
	"github.com/IDEA-FinAI/RagLLaVA/internal/evalerr"
)

// Accuracy buckets.
const (
	BucketAll    = "ALL"
	BucketSingle = "Single"
	BucketMulti  = "Multi"
)

// ProbabilitySamples holds the relevance probabilities of selected images,
// split by whether the image is a ground-truth positive.
type ProbabilitySamples struct {
	GT    []float64 `json:"gt"`
	False []float64 `json:"false"`
}

// RunStatistics accumulates retrieval counts and accuracy over one run.
// Counters only grow.
type RunStatistics struct {
	RetrievalCorrect int
	RetrievalNum     int
	RetrievalPosNum  int

	Accuracy map[string][]float64

	Processed    int
	Failed       int
	HardExamples int

	Probabilities ProbabilitySamples
}

// NewRunStatistics returns empty statistics with all buckets present.
func NewRunStatistics() *RunStatistics {
	return &RunStatistics{
		Accuracy: map[string][]float64{
			BucketAll:    {},
			BucketSingle: {},
			BucketMulti:  {},
		},
		Probabilities: ProbabilitySamples{GT: []float64{}, False: []float64{}},
	}
}

func (s *RunStatistics) addAccuracy(cat dataset.Category, acc float64) {
	s.Accuracy[BucketAll] = append(s.Accuracy[BucketAll], acc)
	switch cat {
	case dataset.CategorySingle:
		s.Accuracy[BucketSingle] = append(s.Accuracy[BucketSingle], acc)
	case dataset.CategoryMulti:
		s.Accuracy[BucketMulti] = append(s.Accuracy[BucketMulti], acc)
	}
}

func (s *RunStatistics) addRetrieval(evidence, positives []string) {
	s.RetrievalNum += len(evidence)
	s.RetrievalPosNum += len(positives)
	s.RetrievalCorrect += countCorrect(evidence, positives)
}

// HardExampleSet maps example GUIDs to examples whose selection contained
// no ground-truth image.
type HardExampleSet map[string]*dataset.Example

// MarshalJSON writes each example as it appeared in the dataset file.
func (h HardExampleSet) MarshalJSON() ([]byte, error) {
	raw := make(map[string]json.RawMessage, len(h))
	for guid, ex := range h {
		if len(ex.Raw) > 0 {
			raw[guid] = ex.Raw
			continue
		}
		b, err := json.Marshal(ex)
		if err != nil {
			return nil, err
		}
		raw[guid] = b
	}
	return json.Marshal(raw)
}

// Ratio is a quotient that may be undefined because its denominator is zero.
type Ratio struct {
	Value   float64
	Defined bool
}

func ratio(num, den float64) Ratio {
	if den == 0 {
		return Ratio{}
	}
	return Ratio{Value: num / den, Defined: true}
}

func (r Ratio) String() string {
	if !r.Defined {
		return "undefined"
	}
	return strconv.FormatFloat(r.Value, 'f', 4, 64)
}

// MarshalJSON encodes an undefined ratio as null.
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// Summary is the end-of-run report.
type Summary struct {
	Precision Ratio `json:"precision"`
	Recall    Ratio `json:"recall"`
	F1        Ratio `json:"f1"`

	AccuracyAll    Ratio `json:"accuracy_all"`
	AccuracySingle Ratio `json:"accuracy_single"`
	AccuracyMulti  Ratio `json:"accuracy_multi"`

	RetrievalCorrect int `json:"retrieval_correct"`
	RetrievalNum     int `json:"retrieval_num"`
	RetrievalPosNum  int `json:"retrieval_pos_num"`

	Processed    int `json:"processed"`
	Failed       int `json:"failed"`
	HardExamples int `json:"hard_examples"`
}

// Summary computes the report for the current counters.
func (s *RunStatistics) Summary() Summary {
	sum := Summary{
		Precision:        ratio(float64(s.RetrievalCorrect), float64(s.RetrievalNum)),
		Recall:           ratio(float64(s.RetrievalCorrect), float64(s.RetrievalPosNum)),
		AccuracyAll:      mean(s.Accuracy[BucketAll]),
		AccuracySingle:   mean(s.Accuracy[BucketSingle]),
		AccuracyMulti:    mean(s.Accuracy[BucketMulti]),
		RetrievalCorrect: s.RetrievalCorrect,
		RetrievalNum:     s.RetrievalNum,
		RetrievalPosNum:  s.RetrievalPosNum,
		Processed:        s.Processed,
		Failed:           s.Failed,
		HardExamples:     s.HardExamples,
	}
	if sum.Precision.Defined && sum.Recall.Defined {
		p, r := sum.Precision.Value, sum.Recall.Value
		sum.F1 = ratio(2*p*r, p+r)
	}
	return sum
}

func mean(xs []float64) Ratio {
	var total float64
	for _, x := range xs {
		total += x
	}
	return ratio(total, float64(len(xs)))
}

// Err reports every undefined metric as an ErrDegenerateMetric, or nil.
func (s Summary) Err() error {
	var errs []error
	for _, m := range []struct {
		name   string
		r      Ratio
		reason string
	}{
		{"precision", s.Precision, "no images were retrieved"},
		{"recall", s.Recall, "no ground-truth images"},
		{"f1", s.F1, "precision and recall are zero or undefined"},
		{"accuracy ALL", s.AccuracyAll, "no scored examples"},
		{"accuracy Single", s.AccuracySingle, "no single-image examples"},
		{"accuracy Multi", s.AccuracyMulti, "no multi-image examples"},
	} {
		if !m.r.Defined {
			errs = append(errs, fmt.Errorf("%w: %s: %s", evalerr.ErrDegenerateMetric, m.name, m.reason))
		}
	}
	return errors.Join(errs...)
}

// Print writes the human-readable report.
func (s Summary) Print(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"Retrieval pre: %s\nRetrieval recall: %s\nRetrieval F1: %s\nGeneration ACC: %s\nSingle Img ACC: %s\nMulti Imgs ACC: %s\nHard examples count: %d\nFailed examples count: %d\n",
		s.Precision, s.Recall, s.F1,
		s.AccuracyAll, s.AccuracySingle, s.AccuracyMulti,
		s.HardExamples, s.Failed,
	)
	return err
}
