package msgproj

import (
	"fmt"
	"strings"
)

// ArgumentError reports an invalid argument to a constructor, such as a
// project path that is not absolute or lacks the project folder suffix.
type ArgumentError struct {
	Argument string
	Value    string
	Reason   string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s=%q: %s", e.Argument, e.Value, e.Reason)
}

// SettingsNotFoundError reports a missing settings file.
type SettingsNotFoundError struct {
	Path string
	Err  error
}

func (e *SettingsNotFoundError) Error() string {
	return fmt.Sprintf("settings file not found at %s", e.Path)
}

func (e *SettingsNotFoundError) Unwrap() error { return e.Err }

// SettingsSyntaxError reports a settings file that is not valid JSON.
type SettingsSyntaxError struct {
	Path string
	Err  error
}

func (e *SettingsSyntaxError) Error() string {
	return fmt.Sprintf("settings file at %s is not valid JSON: %v", e.Path, e.Err)
}

func (e *SettingsSyntaxError) Unwrap() error { return e.Err }

// FieldError is one structured validation failure inside settings.
type FieldError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// SettingsInvalidError reports settings that parsed but failed schema or
// semantic validation. Fields carries every failure found.
type SettingsInvalidError struct {
	Fields []FieldError
}

func (e *SettingsInvalidError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "invalid settings: " + strings.Join(parts, "; ")
}

// MessageParseError reports a message file whose content could not be
// decoded. During initial load these are recorded per file and never abort
// the batch.
type MessageParseError struct {
	Path string
	Err  error
}

func (e *MessageParseError) Error() string {
	return fmt.Sprintf("failed to parse message file %s: %v", e.Path, e.Err)
}

func (e *MessageParseError) Unwrap() error { return e.Err }

// MessageExistsError reports a Create for an id already present in the store.
type MessageExistsError struct {
	ID string
}

func (e *MessageExistsError) Error() string {
	return fmt.Sprintf("message %q already exists", e.ID)
}

// DuplicateAliasError reports two store messages carrying the same alias for
// one plugin, discovered during import reconciliation. This is a
// data-integrity violation and aborts the import batch before any mutation.
type DuplicateAliasError struct {
	PluginKey  string
	Alias      string
	MessageIDs []string
}

func (e *DuplicateAliasError) Error() string {
	return fmt.Sprintf("duplicate alias %q for plugin %s held by messages %s",
		e.Alias, e.PluginKey, strings.Join(e.MessageIDs, ", "))
}

// IDExhaustedError reports that fresh-id probing ran out of offsets without
// finding a free file path.
type IDExhaustedError struct {
	Seed     string
	Attempts int
}

func (e *IDExhaustedError) Error() string {
	return fmt.Sprintf("no free id found for seed %q after %d attempts", e.Seed, e.Attempts)
}

// PersistError reports a failed fire-and-forget filesystem write. These are
// never retried; they surface on the project error list.
type PersistError struct {
	Op   string // "write", "remove" or "settings"
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
