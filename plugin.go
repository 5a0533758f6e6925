package msgproj

import "context"

// Plugin describes one resolved import/export adapter.
type Plugin struct {
	ID          string
	DisplayName string
	Description string
}

// MessageLintRule is one resolved lint rule. Run reports findings through
// the report callback; the effective level is applied by the caller.
type MessageLintRule struct {
	ID          string
	DisplayName string
	Description string
	// DefaultLevel applies when settings carry no override for this rule.
	// Empty means warning.
	DefaultLevel LintLevel
	Run          func(m *Message, settings *ProjectSettings, report func(LintReport))
}

// LintReport is one advisory finding over a message.
type LintReport struct {
	RuleID      string
	MessageID   string
	LanguageTag string
	Level       LintLevel
	Body        string
}

// ResolvedPluginAPI is the capability surface contributed by resolved
// plugins. LoadMessages and SaveMessages are optional legacy bulk adapters;
// when LoadMessages is present the import reconciler runs once at startup.
type ResolvedPluginAPI struct {
	// PluginKey identifies the plugin owning LoadMessages/SaveMessages. It
	// keys alias entries written by the import reconciler.
	PluginKey    string
	LoadMessages func(ctx context.Context, settings *ProjectSettings) ([]*Message, error)
	SaveMessages func(ctx context.Context, settings *ProjectSettings, messages []*Message) error
	CustomAPI    map[string]interface{}
}

// ModuleMeta is resolver-provided metadata about one configured module.
type ModuleMeta struct {
	ID          string
	Description string
}

// ResolvedModules is the output contract of the module resolver. Errors
// lists per-module resolution failures; they are aggregated on the project
// error list and do not abort construction.
type ResolvedModules struct {
	Plugins          []Plugin
	MessageLintRules []MessageLintRule
	PluginAPI        ResolvedPluginAPI
	Meta             []ModuleMeta
	Errors           []error
}

// ModuleResolver produces the active adapters and lint rules for the given
// settings. It is an external collaborator; the engine only consumes its
// output.
type ModuleResolver func(ctx context.Context, settings *ProjectSettings, fsys Fs) (*ResolvedModules, error)

// InstalledPlugin is a resolved plugin as exposed on the project handle.
type InstalledPlugin struct {
	Plugin
}

// InstalledLintRule is a resolved lint rule plus its effective level after
// applying the settings override. Unset rules default to warning.
type InstalledLintRule struct {
	MessageLintRule
	Level LintLevel
}

func effectiveLintLevel(rule MessageLintRule, settings *ProjectSettings) LintLevel {
	if settings != nil {
		if level, ok := settings.MessageLintRuleLevels[rule.ID]; ok && level.valid() {
			return level
		}
	}
	if rule.DefaultLevel.valid() {
		return rule.DefaultLevel
	}
	return LintLevelWarning
}

// lintMessage runs every rule whose effective level is not off against one
// message. Reports are stamped with the rule id and the effective level.
func lintMessage(m *Message, rules []MessageLintRule, settings *ProjectSettings) []LintReport {
	var out []LintReport
	for _, rule := range rules {
		level := effectiveLintLevel(rule, settings)
		if level == LintLevelOff {
			continue
		}
		if rule.Run == nil {
			continue
		}
		rule.Run(m, settings, func(r LintReport) {
			r.RuleID = rule.ID
			r.Level = level
			if r.MessageID == "" {
				r.MessageID = m.ID
			}
			out = append(out, r)
		})
	}
	return out
}
