package msgproj

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	yaml "gopkg.in/yaml.v2"
)

// LegacyCatalogPluginKey identifies the bundled legacy YAML catalog adapter.
// The import reconciler writes alias entries under this key.
const LegacyCatalogPluginKey = "plugin.msgproj.legacyCatalog"

// legacyCatalog is the old per-language YAML catalog file: one {lang}.yaml
// per language, message keys mapping to short/long template pairs.
type legacyCatalog struct {
	Set map[string]legacyEntry `yaml:"set"`
}

type legacyEntry struct {
	Short string `yaml:"short"`
	Long  string `yaml:"long,omitempty"`
}

// NewLegacyCatalogPlugin returns the bundled import/export adapter for
// legacy YAML catalogs stored under dir. Each imported message's id is its
// catalog key; variants come from every {lang}.yaml carrying that key.
func NewLegacyCatalogPlugin(fsys Fs, dir string) (Plugin, ResolvedPluginAPI) {
	plugin := Plugin{
		ID:          LegacyCatalogPluginKey,
		DisplayName: "Legacy YAML catalog",
		Description: "Imports and exports per-language YAML message catalogs",
	}
	api := ResolvedPluginAPI{
		PluginKey: LegacyCatalogPluginKey,
		LoadMessages: func(ctx context.Context, settings *ProjectSettings) ([]*Message, error) {
			return loadLegacyCatalog(fsys, dir)
		},
		SaveMessages: func(ctx context.Context, settings *ProjectSettings, messages []*Message) error {
			return saveLegacyCatalog(fsys, dir, messages)
		},
	}
	return plugin, api
}

func loadLegacyCatalog(fsys Fs, dir string) ([]*Message, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	byKey := map[string]*Message{}
	for _, e := range entries {
		if e.IsDir || !strings.HasSuffix(e.Name, ".yaml") {
			continue
		}
		lang := strings.TrimSuffix(e.Name, ".yaml")
		raw, err := fsys.ReadFile(path.Join(dir, e.Name))
		if err != nil {
			return nil, err
		}
		var catalog legacyCatalog
		if err := yaml.Unmarshal(raw, &catalog); err != nil {
			return nil, fmt.Errorf("failed to unmarshal legacy catalog %s: %w", e.Name, err)
		}
		for key, entry := range catalog.Set {
			m, ok := byKey[key]
			if !ok {
				m = &Message{ID: key}
				byKey[key] = m
			}
			m.SetVariant(Variant{LanguageTag: lang, Pattern: Text(entry.Short)})
		}
	}

	out := make([]*Message, 0, len(byKey))
	for _, m := range byKey {
		m.sortVariants()
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func saveLegacyCatalog(fsys Fs, dir string, messages []*Message) error {
	byLang := map[string]legacyCatalog{}
	for _, m := range messages {
		key := m.ID
		if alias, ok := m.Alias[LegacyCatalogPluginKey]; ok {
			key = alias
		}
		for _, v := range m.Variants {
			catalog, ok := byLang[v.LanguageTag]
			if !ok {
				catalog = legacyCatalog{Set: map[string]legacyEntry{}}
				byLang[v.LanguageTag] = catalog
			}
			catalog.Set[key] = legacyEntry{Short: flattenPattern(v.Pattern)}
		}
	}

	for lang, catalog := range byLang {
		data, err := yaml.Marshal(catalog)
		if err != nil {
			return err
		}
		if err := fsys.WriteFile(path.Join(dir, lang+".yaml"), data); err != nil {
			return err
		}
	}
	return nil
}

// flattenPattern renders a pattern to the legacy template syntax, variables
// as {{name}}.
func flattenPattern(pattern []PatternElement) string {
	var b strings.Builder
	for _, el := range pattern {
		switch el.Type {
		case PatternVariable:
			b.WriteString("{{" + el.Name + "}}")
		default:
			b.WriteString(el.Value)
		}
	}
	return b.String()
}
