// Package taxonomy holds the static hierarchy of reaction categories used by
// semantic matching.
//
// Categories are grouped by context (professional, casual, emotional) and
// addressed by a "context.name" key. Each category carries anchor phrases
// whose embeddings are averaged into a centroid, a default emoji and a set of
// media search patterns. The built-in hierarchy is compiled into the binary
// from categories.yaml.
package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var defaultYAML []byte

// Category is one leaf of the taxonomy.
type Category struct {
	// Key is "context.name", e.g. "casual.humor".
	Key string

	Context string
	Name    string

	// Anchors are example phrases representative of the category.
	Anchors []string

	Emoji string

	// MediaPatterns are media search queries; one is picked at random per
	// search to vary results.
	MediaPatterns []string
}

// Taxonomy is an immutable, ordered set of categories. It is safe for
// concurrent use.
type Taxonomy struct {
	contexts   []string
	categories []Category
	byKey      map[string]int
}

type fileFormat struct {
	Contexts []struct {
		Name       string `yaml:"name"`
		Categories []struct {
			Name          string   `yaml:"name"`
			Anchors       []string `yaml:"anchors"`
			Emoji         string   `yaml:"emoji"`
			MediaPatterns []string `yaml:"media_patterns"`
		} `yaml:"categories"`
	} `yaml:"contexts"`
}

var (
	defaultOnce sync.Once
	defaultTax  *Taxonomy
)

// Default returns the built-in taxonomy. It panics if the embedded document
// is invalid, which the package tests guard against.
func Default() *Taxonomy {
	defaultOnce.Do(func() {
		t, err := Parse(defaultYAML)
		if err != nil {
			panic(fmt.Sprintf("taxonomy: embedded categories: %v", err))
		}
		defaultTax = t
	})
	return defaultTax
}

// Load reads a taxonomy document from path.
func Load(path string) (*Taxonomy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: open %q: %w", path, err)
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: read %q: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a taxonomy document. Every category needs a
// name, at least one anchor, an emoji and at least one media pattern; keys
// must be unique.
func Parse(raw []byte) (*Taxonomy, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("taxonomy: decode yaml: %w", err)
	}

	t := &Taxonomy{byKey: make(map[string]int)}
	var errs []error
	for _, c := range doc.Contexts {
		ctx := strings.TrimSpace(c.Name)
		if ctx == "" || strings.Contains(ctx, ".") {
			errs = append(errs, fmt.Errorf("invalid context name %q", c.Name))
			continue
		}
		t.contexts = append(t.contexts, ctx)
		for _, cat := range c.Categories {
			name := strings.TrimSpace(cat.Name)
			key := ctx + "." + name
			switch {
			case name == "" || strings.Contains(name, "."):
				errs = append(errs, fmt.Errorf("%s: invalid category name %q", ctx, cat.Name))
				continue
			case len(cat.Anchors) == 0:
				errs = append(errs, fmt.Errorf("%s: no anchors", key))
				continue
			case cat.Emoji == "":
				errs = append(errs, fmt.Errorf("%s: no emoji", key))
				continue
			case len(cat.MediaPatterns) == 0:
				errs = append(errs, fmt.Errorf("%s: no media patterns", key))
				continue
			}
			if _, dup := t.byKey[key]; dup {
				errs = append(errs, fmt.Errorf("%s: duplicate category", key))
				continue
			}
			t.byKey[key] = len(t.categories)
			t.categories = append(t.categories, Category{
				Key:           key,
				Context:       ctx,
				Name:          name,
				Anchors:       cat.Anchors,
				Emoji:         cat.Emoji,
				MediaPatterns: cat.MediaPatterns,
			})
		}
	}
	if len(t.categories) == 0 {
		errs = append(errs, errors.New("no categories defined"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("taxonomy: validate: %w", err)
	}
	return t, nil
}

// Lookup returns the category with the given "context.name" key.
func (t *Taxonomy) Lookup(key string) (Category, bool) {
	i, ok := t.byKey[key]
	if !ok {
		return Category{}, false
	}
	return t.categories[i].clone(), true
}

// All returns every category in document order.
func (t *Taxonomy) All() []Category {
	out := make([]Category, len(t.categories))
	for i, c := range t.categories {
		out[i] = c.clone()
	}
	return out
}

// Keys returns every category key in document order.
func (t *Taxonomy) Keys() []string {
	out := make([]string, len(t.categories))
	for i, c := range t.categories {
		out[i] = c.Key
	}
	return out
}

// Contexts returns the top-level context names in document order.
func (t *Taxonomy) Contexts() []string {
	return append([]string(nil), t.contexts...)
}

// Anchor pairs an anchor phrase with its category key.
type Anchor struct {
	Key    string
	Phrase string
}

// Anchors flattens every anchor phrase of every category, in document order.
func (t *Taxonomy) Anchors() []Anchor {
	var out []Anchor
	for _, c := range t.categories {
		for _, a := range c.Anchors {
			out = append(out, Anchor{Key: c.Key, Phrase: a})
		}
	}
	return out
}

// ShortName returns the part of a category key after the first dot, or the
// key unchanged when it has none.
func ShortName(key string) string {
	if _, name, ok := strings.Cut(key, "."); ok {
		return name
	}
	return key
}

func (c Category) clone() Category {
	c.Anchors = append([]string(nil), c.Anchors...)
	c.MediaPatterns = append([]string(nil), c.MediaPatterns...)
	return c
}
