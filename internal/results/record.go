// Package results persists per-example evaluation records.
package results

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// OutputRecord is the persisted result of one example.
type OutputRecord struct {
	GUID            string          `json:"guid"`
	Question        string          `json:"question"`
	GeneratorAnswer string          `json:"generator_answer"`
	EMAnswer        json.RawMessage `json:"em_answer"`
	Qcate           string          `json:"qcate,omitempty"`
	GTImages        []string        `json:"gt_images"`
	RetrievedImages RetrievedImages `json:"retrieved_images"`
	ImagePath       string          `json:"image_path"`
	Accuracy        *float64        `json:"accuracy,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// RetrievedImages is the selected candidate list of an example. Scored lists
// encode as an ordered {id: probability} object, unscored ones as an array.
type RetrievedImages struct {
	IDs    []string
	Scores []float64
	Scored bool
}

// ScoredImages returns a scored list. ids and scores are parallel.
func ScoredImages(ids []string, scores []float64) RetrievedImages {
	return RetrievedImages{IDs: ids, Scores: scores, Scored: true}
}

// PlainImages returns an unscored list.
func PlainImages(ids []string) RetrievedImages {
	return RetrievedImages{IDs: ids}
}

// MarshalJSON implements json.Marshaler.
func (r RetrievedImages) MarshalJSON() ([]byte, error) {
	if !r.Scored {
		if r.IDs == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(r.IDs)
	}
	if len(r.IDs) != len(r.Scores) {
		return nil, fmt.Errorf("retrieved images: %d ids, %d scores", len(r.IDs), len(r.Scores))
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range r.IDs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(r.Scores[i], 'g', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, keeping object key order.
func (r *RetrievedImages) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*r = RetrievedImages{}
		return nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		var ids []string
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return err
		}
		*r = PlainImages(ids)
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if _, err := dec.Token(); err != nil {
		return err
	}
	out := RetrievedImages{IDs: []string{}, Scores: []float64{}, Scored: true}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("retrieved images: unexpected key %v", tok)
		}
		var score float64
		if err := dec.Decode(&score); err != nil {
			return fmt.Errorf("retrieved images: score for %s: %w", id, err)
		}
		out.IDs = append(out.IDs, id)
		out.Scores = append(out.Scores, score)
	}
	*r = out
	return nil
}

// OutputName builds the default answer file name for a run configuration.
// The filter is rendered the way the reference tooling did, as its Python
// float text minus the first two characters ("0.25" gives "25", "1e-05"
// gives "-05"). A zero filter adds no segment, as with the reference default,
// even when it was set explicitly.
func OutputName(generator string, filter float64, topk int) string {
	parts := []string{"answer_set", generator}
	if filter != 0 {
		if digits := floatDigits(filter); digits != "" {
			parts = append(parts, digits)
		}
	}
	if topk != 20 {
		parts = append(parts, "clip_top"+strconv.Itoa(topk))
	}
	return strings.Join(parts, "_") + ".jsonl"
}

// floatDigits drops the first two characters of the Python repr of f.
func floatDigits(f float64) string {
	s := pythonFloat(f)
	if len(s) <= 2 {
		return ""
	}
	return s[2:]
}

// pythonFloat formats f like Python's str(float): shortest round-trip digits,
// exponent form below 1e-4 or from 1e16, and a ".0" suffix on integral values.
func pythonFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[0]
		exp = strings.TrimLeft(exp[1:], "0")
		if len(exp) < 2 {
			exp = strings.Repeat("0", 2-len(exp)) + exp
		}
		return mant + "e" + string(sign) + exp
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
