package msgproj

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// SettingsSchema is the schema marker written into persisted settings.
const SettingsSchema = "https://msgproj.dev/schema/project-settings@2"

// settingsStore loads, validates, migrates and persists project settings.
// Set commits in memory synchronously and persists asynchronously; the very
// first Set after load is not written back since the loaded value is already
// on disk.
type settingsStore struct {
	fsys Fs
	path string
	log  *slog.Logger

	// submit dispatches a persistence job; onError receives write failures.
	submit  func(task func())
	onError func(error)

	mu        sync.RWMutex
	current   *ProjectSettings
	persisted bool // false until the first Set, which skips the write-back
	subs      map[string]func(*ProjectSettings)
}

func newSettingsStore(fsys Fs, path string, log *slog.Logger, submit func(func()), onError func(error)) *settingsStore {
	return &settingsStore{
		fsys:    fsys,
		path:    path,
		log:     log,
		submit:  submit,
		onError: onError,
		subs:    map[string]func(*ProjectSettings){},
	}
}

// load reads, migrates and validates the settings file and seeds the store.
func (st *settingsStore) load() error {
	raw, err := st.fsys.ReadFile(st.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &SettingsNotFoundError{Path: st.path, Err: err}
		}
		return err
	}

	var shape map[string]interface{}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return &SettingsSyntaxError{Path: st.path, Err: err}
	}

	shape, err = migrateSettings(shape)
	if err != nil {
		return &SettingsInvalidError{Fields: []FieldError{{Field: "$schema", Value: shape["$schema"], Message: err.Error()}}}
	}

	settings, err := decodeSettings(shape)
	if err != nil {
		return err
	}
	if err := validateSettings(settings); err != nil {
		return err
	}

	st.mu.Lock()
	st.current = settings
	st.persisted = false
	st.mu.Unlock()
	return nil
}

// Settings returns a copy of the current value.
func (st *settingsStore) Settings() *ProjectSettings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current.Clone()
}

// Set validates and commits new settings. The write-back is fire-and-forget;
// failures go to onError. The first Set (re-committing the loaded value)
// skips the redundant write.
func (st *settingsStore) Set(settings *ProjectSettings) error {
	if err := validateSettings(settings); err != nil {
		return err
	}

	committed := settings.Clone()
	committed.Schema = SettingsSchema

	st.mu.Lock()
	st.current = committed
	skipWrite := !st.persisted
	st.persisted = true
	subs := make([]func(*ProjectSettings), 0, len(st.subs))
	for _, fn := range st.subs {
		subs = append(subs, fn)
	}
	st.mu.Unlock()

	for _, fn := range subs {
		fn(committed.Clone())
	}

	if skipWrite {
		return nil
	}
	st.submit(func() {
		if err := st.persist(); err != nil {
			st.log.Error("failed to persist settings", "path", st.path, "error", err)
			st.onError(&PersistError{Op: "settings", Path: st.path, Err: err})
		}
	})
	return nil
}

func (st *settingsStore) persist() error {
	data, err := json.MarshalIndent(st.Settings(), "", "  ")
	if err != nil {
		return err
	}
	return st.fsys.WriteFile(st.path, append(data, '\n'))
}

func (st *settingsStore) subscribe(fn func(*ProjectSettings)) string {
	token := newToken()
	st.mu.Lock()
	st.subs[token] = fn
	st.mu.Unlock()
	return token
}

func (st *settingsStore) unsubscribe(token string) {
	st.mu.Lock()
	delete(st.subs, token)
	st.mu.Unlock()
}

func decodeSettings(shape map[string]interface{}) (*ProjectSettings, error) {
	data, err := json.Marshal(shape)
	if err != nil {
		return nil, err
	}
	var settings ProjectSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, &SettingsInvalidError{Fields: []FieldError{{Field: "", Value: nil, Message: err.Error()}}}
	}
	return &settings, nil
}

// validateSettings checks schema conformance and the semantic invariant that
// the source language tag is a member of the language tags.
func validateSettings(s *ProjectSettings) error {
	var fields []FieldError

	if len(s.LanguageTags) == 0 {
		fields = append(fields, FieldError{
			Field:   "languageTags",
			Value:   s.LanguageTags,
			Message: "at least one language tag is required",
		})
	}
	seen := map[string]bool{}
	for i, tag := range s.LanguageTags {
		field := fmt.Sprintf("languageTags[%d]", i)
		if _, err := language.Parse(tag); err != nil {
			fields = append(fields, FieldError{Field: field, Value: tag, Message: "not a valid BCP-47 language tag"})
		}
		if seen[tag] {
			fields = append(fields, FieldError{Field: field, Value: tag, Message: "duplicate language tag"})
		}
		seen[tag] = true
	}

	if s.SourceLanguageTag == "" {
		fields = append(fields, FieldError{
			Field:   "sourceLanguageTag",
			Value:   s.SourceLanguageTag,
			Message: "source language tag is required",
		})
	} else if !s.hasLanguageTag(s.SourceLanguageTag) {
		fields = append(fields, FieldError{
			Field:   "sourceLanguageTag",
			Value:   s.SourceLanguageTag,
			Message: "must be included in languageTags",
		})
	}

	for rule, level := range s.MessageLintRuleLevels {
		if !level.valid() {
			fields = append(fields, FieldError{
				Field:   "messageLintRuleLevels." + rule,
				Value:   string(level),
				Message: `level must be "error", "warning" or "off"`,
			})
		}
	}

	if len(fields) > 0 {
		return &SettingsInvalidError{Fields: fields}
	}
	return nil
}

// settingsVersion reads the schema marker. Files without a recognized marker
// are treated as the oldest shape and migrated forward.
func settingsVersion(shape map[string]interface{}) int {
	schema, _ := shape["$schema"].(string)
	if strings.HasSuffix(schema, "@2") {
		return 2
	}
	return 1
}

type settingsMigration struct {
	from, to    int
	description string
	apply       func(map[string]interface{}) (map[string]interface{}, error)
}

var settingsMigrations = []settingsMigration{
	{
		from:        1,
		to:          2,
		description: `rename "languages" to "languageTags", flatten "lint.rules" into "messageLintRuleLevels", map numeric severities`,
		apply:       migrateSettingsV1,
	},
}

// migrateSettings rewrites deprecated settings shapes into the current
// schema before validation.
func migrateSettings(shape map[string]interface{}) (map[string]interface{}, error) {
	version := settingsVersion(shape)
	for _, m := range settingsMigrations {
		if m.from < version {
			continue
		}
		migrated, err := m.apply(shape)
		if err != nil {
			return shape, fmt.Errorf("migrating settings from schema version %d to %d: %w", m.from, m.to, err)
		}
		shape = migrated
		version = m.to
	}
	shape["$schema"] = SettingsSchema
	return shape, nil
}

func migrateSettingsV1(shape map[string]interface{}) (map[string]interface{}, error) {
	if legacy, ok := shape["languages"]; ok {
		if _, present := shape["languageTags"]; !present {
			shape["languageTags"] = legacy
		}
		delete(shape, "languages")
	}

	lint, ok := shape["lint"].(map[string]interface{})
	if !ok {
		return shape, nil
	}
	rules, ok := lint["rules"].(map[string]interface{})
	if ok {
		levels := map[string]interface{}{}
		if existing, present := shape["messageLintRuleLevels"].(map[string]interface{}); present {
			levels = existing
		}
		for rule, raw := range rules {
			levels[rule] = legacyLintLevel(raw)
		}
		shape["messageLintRuleLevels"] = levels
	}
	delete(shape, "lint")
	return shape, nil
}

// legacyLintLevel maps the old numeric severities (2 error, 1 warning,
// 0 off) onto the current string levels. Strings pass through untouched.
func legacyLintLevel(raw interface{}) interface{} {
	switch v := raw.(type) {
	case float64:
		switch int(v) {
		case 2:
			return string(LintLevelError)
		case 0:
			return string(LintLevelOff)
		default:
			return string(LintLevelWarning)
		}
	default:
		return raw
	}
}
