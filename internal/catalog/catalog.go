// Package catalog maps reranker and generator selectors to served models.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/IDEA-FinAI/RagLLaVA/internal/evalerr"
)

//go:embed models.yaml
var defaultCatalog []byte

// Backend kinds.
const (
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
)

// Model is one catalog entry.
type Model struct {
	// Model is the served model id.
	Model string `yaml:"model,omitempty"`
	// Base is the base checkpoint an adapter was trained from. An explicit
	// empty string marks a base model.
	Base *string `yaml:"base,omitempty"`
	// Backend overrides the catalog default backend.
	Backend string `yaml:"backend,omitempty"`
	// ReuseReranker makes a generator share the selected reranker's model.
	ReuseReranker bool `yaml:"reuse_reranker,omitempty"`
}

// Defaults apply to entries that leave a field empty.
type Defaults struct {
	Backend string `yaml:"backend"`
	Base    string `yaml:"base"`
}

// Catalog holds every known selector.
type Catalog struct {
	Defaults   Defaults         `yaml:"defaults"`
	Rerankers  map[string]Model `yaml:"rerankers"`
	Generators map[string]Model `yaml:"generators"`
}

// Resolved is a catalog entry with defaults applied.
type Resolved struct {
	Name    string
	Model   string
	Base    string
	Backend string
}

// Selection is the pair of models chosen for a run.
type Selection struct {
	Reranker  Resolved
	Generator Resolved
	// UseCaption is set for reranker selectors trained with captions.
	UseCaption bool
	// RawPrompt is set for generators fine-tuned on the task format.
	RawPrompt bool
	// SharedModel is set when the generator reuses the reranker model.
	SharedModel bool
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a single YAML catalog document, rejecting unknown fields.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse model catalog: expected single document")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	for name, m := range c.Rerankers {
		if m.Model == "" {
			return evalerr.Configf("reranker %q has no model", name)
		}
		if m.ReuseReranker {
			return evalerr.Configf("reranker %q cannot reuse a reranker", name)
		}
		if err := checkBackend(c.backend(m)); err != nil {
			return fmt.Errorf("reranker %q: %w", name, err)
		}
	}
	for name, m := range c.Generators {
		if m.Model == "" && !m.ReuseReranker {
			return evalerr.Configf("generator %q has no model", name)
		}
		if err := checkBackend(c.backend(m)); err != nil {
			return fmt.Errorf("generator %q: %w", name, err)
		}
	}
	return nil
}

func checkBackend(b string) error {
	switch b {
	case BackendOpenAI, BackendOllama:
		return nil
	default:
		return evalerr.Configf("unknown backend %q", b)
	}
}

func (c *Catalog) backend(m Model) string {
	if m.Backend != "" {
		return m.Backend
	}
	if c.Defaults.Backend != "" {
		return c.Defaults.Backend
	}
	return BackendOpenAI
}

func (c *Catalog) resolve(name string, m Model) Resolved {
	base := c.Defaults.Base
	if m.Base != nil {
		base = *m.Base
	}
	return Resolved{Name: name, Model: m.Model, Base: base, Backend: c.backend(m)}
}

// Resolve selects a reranker and a generator by name.
func (c *Catalog) Resolve(reranker, generator string) (Selection, error) {
	r, ok := c.Rerankers[reranker]
	if !ok {
		return Selection{}, evalerr.Configf("unknown reranker model %q (known: %s)", reranker, strings.Join(names(c.Rerankers), ", "))
	}
	g, ok := c.Generators[generator]
	if !ok {
		return Selection{}, evalerr.Configf("unknown generator model %q (known: %s)", generator, strings.Join(names(c.Generators), ", "))
	}

	sel := Selection{
		Reranker:   c.resolve(reranker, r),
		UseCaption: strings.Contains(reranker, "caption"),
	}
	if g.ReuseReranker {
		sel.Generator = sel.Reranker
		sel.Generator.Name = generator
		sel.SharedModel = true
	} else {
		sel.Generator = c.resolve(generator, g)
	}
	sel.RawPrompt = strings.Contains(sel.Generator.Model, "webqa")
	return sel, nil
}

func names(m map[string]Model) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
