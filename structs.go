package msgproj

import "sort"

// LintLevel is the severity a message lint rule reports at.
type LintLevel string

const (
	LintLevelError   LintLevel = "error"
	LintLevelWarning LintLevel = "warning"
	LintLevelOff     LintLevel = "off"
)

func (l LintLevel) valid() bool {
	switch l {
	case LintLevelError, LintLevelWarning, LintLevelOff:
		return true
	}
	return false
}

// PatternElement is one piece of a variant's pattern: literal text or a
// placeholder reference.
type PatternElement struct {
	Type  string `json:"type" yaml:"type"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
}

const (
	PatternText     = "Text"
	PatternVariable = "VariableReference"
)

// Text returns a single-element pattern holding literal text.
func Text(value string) []PatternElement {
	return []PatternElement{{Type: PatternText, Value: value}}
}

// Variant is the pattern for one language tag. A message holds at most one
// variant per language tag.
type Variant struct {
	LanguageTag string           `json:"languageTag" yaml:"languageTag"`
	Pattern     []PatternElement `json:"pattern" yaml:"pattern"`
}

// Message is one localizable unit of text. ID is stable for the lifetime of a
// project, except when the import reconciler rebinds a legacy import to an
// existing message. Alias maps an external source name to that source's own
// identifier for this message.
type Message struct {
	ID       string            `json:"id"`
	Alias    map[string]string `json:"alias,omitempty"`
	Variants []Variant         `json:"variants"`
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := &Message{ID: m.ID}
	if m.Alias != nil {
		out.Alias = make(map[string]string, len(m.Alias))
		for k, v := range m.Alias {
			out.Alias[k] = v
		}
	}
	if m.Variants != nil {
		out.Variants = make([]Variant, len(m.Variants))
		for i, v := range m.Variants {
			cp := v
			cp.Pattern = append([]PatternElement(nil), v.Pattern...)
			out.Variants[i] = cp
		}
	}
	return out
}

// Variant returns the variant for the given language tag.
func (m *Message) Variant(languageTag string) (Variant, bool) {
	for _, v := range m.Variants {
		if v.LanguageTag == languageTag {
			return v, true
		}
	}
	return Variant{}, false
}

// SetVariant adds or replaces the variant for its language tag, keeping
// language tags unique.
func (m *Message) SetVariant(v Variant) {
	for i := range m.Variants {
		if m.Variants[i].LanguageTag == v.LanguageTag {
			m.Variants[i] = v
			return
		}
	}
	m.Variants = append(m.Variants, v)
}

func (m *Message) sortVariants() {
	sort.Slice(m.Variants, func(i, j int) bool {
		return m.Variants[i].LanguageTag < m.Variants[j].LanguageTag
	})
}

// ProjectSettings is the validated project configuration. Any value accepted
// by the settings store satisfies SourceLanguageTag being a member of
// LanguageTags.
type ProjectSettings struct {
	Schema                string               `json:"$schema,omitempty"`
	SourceLanguageTag     string               `json:"sourceLanguageTag"`
	LanguageTags          []string             `json:"languageTags"`
	Modules               []string             `json:"modules,omitempty"`
	MessageLintRuleLevels map[string]LintLevel `json:"messageLintRuleLevels,omitempty"`
}

// Clone returns a deep copy.
func (s *ProjectSettings) Clone() *ProjectSettings {
	if s == nil {
		return nil
	}
	out := &ProjectSettings{
		Schema:            s.Schema,
		SourceLanguageTag: s.SourceLanguageTag,
		LanguageTags:      append([]string(nil), s.LanguageTags...),
		Modules:           append([]string(nil), s.Modules...),
	}
	if s.MessageLintRuleLevels != nil {
		out.MessageLintRuleLevels = make(map[string]LintLevel, len(s.MessageLintRuleLevels))
		for k, v := range s.MessageLintRuleLevels {
			out.MessageLintRuleLevels[k] = v
		}
	}
	return out
}

func (s *ProjectSettings) hasLanguageTag(tag string) bool {
	for _, t := range s.LanguageTags {
		if t == tag {
			return true
		}
	}
	return false
}
