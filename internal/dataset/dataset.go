// Package dataset loads evaluation examples and the lookup tables the pipeline
// consults while processing them.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ImageID is an external image identifier. Source files encode it either as a
// JSON number or a string; it is always handled as its decimal string form.
type ImageID string

// UnmarshalJSON accepts both numeric and string identifiers.
func (id *ImageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ImageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("image id must be a string or number: %w", err)
	}
	*id = ImageID(n.String())
	return nil
}

// PositiveImage is a ground-truth image reference attached to an example.
type PositiveImage struct {
	ImageID ImageID `json:"image_id"`
	Title   string  `json:"title,omitempty"`
	Caption string  `json:"caption,omitempty"`
}

// Answer holds a ground-truth answer stored as a string or as a list of
// strings. Text is the string, or the first list entry, and is what answers
// are scored against. The original JSON is kept for output.
type Answer struct {
	Text string
	raw  json.RawMessage
}

// NewAnswer returns a plain string answer.
func NewAnswer(text string) Answer {
	return Answer{Text: text}
}

// UnmarshalJSON accepts a string or a list of strings.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		a.Text = ""
		if len(list) > 0 {
			a.Text = list[0]
		}
	} else if err := json.Unmarshal(data, &a.Text); err != nil {
		return err
	}
	a.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Raw returns the answer as it appeared in the dataset.
func (a Answer) Raw() json.RawMessage {
	if a.raw != nil {
		return a.raw
	}
	data, _ := json.Marshal(a.Text)
	return data
}

// MarshalJSON writes the original form.
func (a Answer) MarshalJSON() ([]byte, error) {
	return a.Raw(), nil
}

func (a Answer) String() string {
	return a.Text
}

// Example is one evaluation unit. It is immutable once loaded.
type Example struct {
	GUID      string          `json:"-"`
	Question  string          `json:"Q"`
	Answer    Answer          `json:"EM"`
	Category  string          `json:"Qcate"`
	Positives []PositiveImage `json:"img_posFacts"`

	// Raw is the record exactly as it appeared in the source file.
	Raw json.RawMessage `json:"-"`
}

// PositiveIDs returns the ground-truth image identifiers in source order.
func (e *Example) PositiveIDs() []string {
	ids := make([]string, 0, len(e.Positives))
	for _, p := range e.Positives {
		ids = append(ids, string(p.ImageID))
	}
	return ids
}

// Collection is an ordered set of examples keyed by GUID.
type Collection struct {
	order  []string
	byGUID map[string]*Example
}

// Len returns the number of examples.
func (c *Collection) Len() int {
	return len(c.order)
}

// Examples returns the examples in file order.
func (c *Collection) Examples() []*Example {
	out := make([]*Example, 0, len(c.order))
	for _, guid := range c.order {
		out = append(out, c.byGUID[guid])
	}
	return out
}

// Get returns the example with the given GUID.
func (c *Collection) Get(guid string) (*Example, bool) {
	ex, ok := c.byGUID[guid]
	return ex, ok
}

// Load reads a dataset file: a JSON object keyed by example GUID.
func Load(path string) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return c, nil
}

// Decode reads a GUID-keyed dataset object from r. Key order in the input is
// preserved, so iteration matches the file.
func Decode(r io.Reader) (*Collection, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	c := &Collection{byGUID: make(map[string]*Example)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		guid, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key, got %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("read example %s: %w", guid, err)
		}

		ex := &Example{}
		if err := json.Unmarshal(raw, ex); err != nil {
			return nil, fmt.Errorf("decode example %s: %w", guid, err)
		}
		if strings.TrimSpace(ex.Question) == "" {
			return nil, fmt.Errorf("example %s missing question", guid)
		}
		ex.GUID = guid
		ex.Raw = raw

		if _, dup := c.byGUID[guid]; dup {
			return nil, fmt.Errorf("duplicate example %s", guid)
		}
		c.byGUID[guid] = ex
		c.order = append(c.order, guid)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return c, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read %q: %w", want, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// Category is the single- vs multi-image bucket of an example.
type Category int

const (
	CategoryNone Category = iota
	CategorySingle
	CategoryMulti
)

func (c Category) String() string {
	switch c {
	case CategorySingle:
		return "Single"
	case CategoryMulti:
		return "Multi"
	default:
		return "None"
	}
}

// CategoryOf buckets an example by its ground-truth positive count.
func CategoryOf(e *Example) Category {
	switch n := len(e.Positives); {
	case n == 1:
		return CategorySingle
	case n > 1:
		return CategoryMulti
	default:
		return CategoryNone
	}
}

// positionKey renders an index position the way lookup tables key it.
func positionKey(pos int64) string {
	return strconv.FormatInt(pos, 10)
}
