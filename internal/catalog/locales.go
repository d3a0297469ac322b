package catalog

import (
	"fmt"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/roach88/emmsync/internal/schema"
)

// Locales parses BCP 47 tags into the locale list offered by localized
// strings, named in English and sorted by name. Repeated tags are dropped.
func Locales(tags []string) ([]schema.Locale, error) {
	namer := display.English.Tags()
	out := make([]schema.Locale, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, s := range tags {
		tag, err := language.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("locale %q: %w", s, err)
		}
		key := tag.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		name := namer.Name(tag)
		if name == "" {
			name = key
		}
		out = append(out, schema.Locale{Tag: key, Name: name})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
