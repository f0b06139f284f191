package categorize

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"productmatch/internal/domain"
	"productmatch/internal/textnorm"
)

// Glossary pins products containing a phrase to a category without asking
// the oracle.
type Glossary struct {
	Terms []GlossaryTerm `yaml:"terms"`

	resolved []resolvedTerm
}

type GlossaryTerm struct {
	Phrase   string `yaml:"phrase"`
	Category string `yaml:"category"`
}

type resolvedTerm struct {
	phrase   string
	category domain.Category
}

func LoadGlossary(path string) (*Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read glossary: %w", err)
	}
	var g Glossary
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse glossary yaml: %w", err)
	}
	if err := g.resolve(); err != nil {
		return nil, err
	}
	return &g, nil
}

func (g *Glossary) resolve() error {
	g.resolved = g.resolved[:0]
	for _, term := range g.Terms {
		phrase := textnorm.Key(term.Phrase)
		if phrase == "" {
			continue
		}
		category, ok := domain.ParseCategory(term.Category)
		if !ok {
			return fmt.Errorf("glossary phrase %q: unknown category %q", term.Phrase, term.Category)
		}
		g.resolved = append(g.resolved, resolvedTerm{phrase: phrase, category: category})
	}
	return nil
}

// Lookup returns the category of the first term whose phrase occurs in
// product.
func (g *Glossary) Lookup(product string) (domain.Category, bool) {
	if g == nil {
		return domain.CategoryUnknown, false
	}
	key := textnorm.Key(product)
	for _, term := range g.resolved {
		if strings.Contains(key, term.phrase) {
			return term.category, true
		}
	}
	return domain.CategoryUnknown, false
}
