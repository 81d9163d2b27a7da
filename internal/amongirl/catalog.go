package amongirl

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

// TaskTemplate is a catalog entry a player task is drawn from.
type TaskTemplate struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Location     string   `json:"location"`
	Category     Category `json:"category"`
	ExternalLink string   `json:"externalLink,omitempty"`
}

// Catalog holds one pool of candidate tasks per category.
type Catalog map[Category][]TaskTemplate

//go:embed catalog.json
var defaultCatalog []byte

// DefaultCatalog returns the catalog shipped with the binary.
func DefaultCatalog() Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog from path. An empty path yields the default.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a JSON array of templates and groups it by category.
func ParseCatalog(data []byte) (Catalog, error) {
	var templates []TaskTemplate
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parsing task catalog: %w", err)
	}

	c := make(Catalog, len(Categories))
	for i, t := range templates {
		if !t.Category.Valid() {
			return nil, fmt.Errorf("task catalog entry %d (%q): invalid category %q", i, t.Title, t.Category)
		}
		if t.Title == "" {
			return nil, fmt.Errorf("task catalog entry %d: title is required", i)
		}
		c[t.Category] = append(c[t.Category], t)
	}
	for _, cat := range Categories {
		if len(c[cat]) == 0 {
			return nil, fmt.Errorf("task catalog: no %s tasks", cat)
		}
	}
	return c, nil
}
