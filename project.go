package msgproj

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
)

const (
	// ProjectSuffix is the required project folder suffix.
	ProjectSuffix = ".inlang"
	// SettingsFile is the settings file name under the project root.
	SettingsFile = "settings.json"
	// MessagesDir is the message subdirectory under the project root.
	MessagesDir = "messages"
)

const defaultWritePoolSize = 4

// ProjectOptions configures LoadProject. Zero values select the OS
// filesystem, the JSON codec, the default logger and no module resolver.
type ProjectOptions struct {
	Fs            Fs
	Codec         MessageCodec
	Resolver      ModuleResolver
	Logger        *slog.Logger
	WritePoolSize int
}

// Project is one loaded localization workspace: validated settings, the
// in-memory message store kept in sync with the on-disk message tree, the
// resolved modules, and an aggregated error list.
type Project struct {
	path  string
	fsys  Fs
	codec MessageCodec
	log   *slog.Logger

	pool     *ants.Pool
	settings *settingsStore
	store    *MessageStore
	syncer   *synchronizer
	resolver ModuleResolver

	ctx       context.Context
	cancelCtx context.CancelFunc

	modMu   sync.RWMutex
	modules *ResolvedModules

	errMu   sync.Mutex
	errs    []error
	errSubs map[string]func(error)

	closeOnce sync.Once
}

// LoadProject opens the project rooted at projectPath. The path must be
// absolute and end in the project folder suffix. Construction either yields
// a fully usable handle or fails with one specific error kind; it never
// returns a partial handle.
func LoadProject(ctx context.Context, projectPath string, opts ProjectOptions) (*Project, error) {
	if !filepath.IsAbs(projectPath) {
		return nil, &ArgumentError{Argument: "projectPath", Value: projectPath, Reason: "must be an absolute path"}
	}
	if !strings.HasSuffix(projectPath, ProjectSuffix) {
		return nil, &ArgumentError{Argument: "projectPath", Value: projectPath, Reason: fmt.Sprintf("must end in %q", ProjectSuffix)}
	}

	if opts.Fs == nil {
		opts.Fs = NewOsFs()
	}
	if opts.Codec == nil {
		opts.Codec = NewJSONCodec()
	}
	if opts.Logger == nil {
		opts.Logger = newDefaultLogger()
	}
	if opts.WritePoolSize <= 0 {
		opts.WritePoolSize = defaultWritePoolSize
	}

	pool, err := ants.NewPool(opts.WritePoolSize)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	p := &Project{
		path:      projectPath,
		fsys:      opts.Fs,
		codec:     opts.Codec,
		log:       opts.Logger.With("project", projectPath),
		pool:      pool,
		resolver:  opts.Resolver,
		ctx:       runCtx,
		cancelCtx: cancel,
		modules:   &ResolvedModules{},
		errSubs:   map[string]func(error){},
	}

	p.settings = newSettingsStore(opts.Fs, path.Join(projectPath, SettingsFile), p.log, p.submit, p.reportError)
	if err := p.settings.load(); err != nil {
		p.release()
		return nil, err
	}
	// Re-commit the loaded value; the settings store skips the redundant
	// write-back for this very first Set.
	if err := p.settings.Set(p.settings.Settings()); err != nil {
		p.release()
		return nil, err
	}

	p.resolveModules(ctx, p.settings.Settings())
	p.settings.subscribe(func(s *ProjectSettings) {
		p.resolveModules(p.ctx, s)
	})

	p.store = newMessageStore()
	p.syncer = newSynchronizer(opts.Fs, opts.Codec, p.store, path.Join(projectPath, MessagesDir), p.log, p.submit, p.reportError, p.reportError)
	if err := p.syncer.initialLoad(); err != nil {
		p.release()
		return nil, err
	}
	p.syncer.attach()

	// The watcher starts only after the one-time import, so the import's
	// store snapshot cannot race inbound events.
	if api := p.pluginAPI(); api.LoadMessages != nil {
		if err := reconcileImport(ctx, p.store, opts.Fs, opts.Codec, path.Join(projectPath, MessagesDir), p.settings.Settings(), api); err != nil {
			p.Close()
			return nil, err
		}
	}
	if err := p.syncer.watch(runCtx); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// Settings returns a copy of the current settings.
func (p *Project) Settings() *ProjectSettings {
	return p.settings.Settings()
}

// SetSettings validates and commits new settings, persists them
// asynchronously and re-resolves modules against the new value.
func (p *Project) SetSettings(s *ProjectSettings) error {
	return p.settings.Set(s)
}

// SubscribeSettings registers an observer for committed settings changes.
func (p *Project) SubscribeSettings(fn func(*ProjectSettings)) string {
	return p.settings.subscribe(fn)
}

// UnsubscribeSettings removes a settings observer.
func (p *Project) UnsubscribeSettings(token string) {
	p.settings.unsubscribe(token)
}

// Messages is the project's message query surface.
func (p *Project) Messages() *MessageStore {
	return p.store
}

// InstalledPlugins lists the resolved plugins.
func (p *Project) InstalledPlugins() []InstalledPlugin {
	p.modMu.RLock()
	defer p.modMu.RUnlock()
	out := make([]InstalledPlugin, len(p.modules.Plugins))
	for i, pl := range p.modules.Plugins {
		out[i] = InstalledPlugin{Plugin: pl}
	}
	return out
}

// InstalledMessageLintRules lists the resolved lint rules with their
// effective levels under the current settings.
func (p *Project) InstalledMessageLintRules() []InstalledLintRule {
	settings := p.settings.Settings()
	p.modMu.RLock()
	defer p.modMu.RUnlock()
	out := make([]InstalledLintRule, len(p.modules.MessageLintRules))
	for i, rule := range p.modules.MessageLintRules {
		out[i] = InstalledLintRule{MessageLintRule: rule, Level: effectiveLintLevel(rule, settings)}
	}
	return out
}

// MessageLintReports runs the resolved lint rules over the message with the
// given id.
func (p *Project) MessageLintReports(id string) []LintReport {
	m, ok := p.store.Get(id)
	if !ok {
		return nil
	}
	settings := p.settings.Settings()
	p.modMu.RLock()
	rules := p.modules.MessageLintRules
	p.modMu.RUnlock()
	return lintMessage(m, rules, settings)
}

// AllMessageLintReports runs the resolved lint rules over every message,
// ordered by message id.
func (p *Project) AllMessageLintReports() []LintReport {
	settings := p.settings.Settings()
	p.modMu.RLock()
	rules := p.modules.MessageLintRules
	p.modMu.RUnlock()
	var out []LintReport
	for _, m := range p.store.GetAll() {
		out = append(out, lintMessage(m, rules, settings)...)
	}
	return out
}

// CustomAPI exposes resolver-provided plugin APIs.
func (p *Project) CustomAPI() map[string]interface{} {
	p.modMu.RLock()
	defer p.modMu.RUnlock()
	return p.modules.PluginAPI.CustomAPI
}

// ExportMessages pushes the current store snapshot through the resolved
// save-messages adapter, when one is installed.
func (p *Project) ExportMessages(ctx context.Context) error {
	api := p.pluginAPI()
	if api.SaveMessages == nil {
		return fmt.Errorf("no save-messages adapter installed")
	}
	return api.SaveMessages(ctx, p.settings.Settings(), p.store.GetAll())
}

// Errors returns the aggregated error list: initialization and persistence
// failures recorded so far plus the module resolution errors, combined at
// the point of read.
func (p *Project) Errors() []error {
	p.errMu.Lock()
	out := append([]error(nil), p.errs...)
	p.errMu.Unlock()
	p.modMu.RLock()
	out = append(out, p.modules.Errors...)
	p.modMu.RUnlock()
	return out
}

// SubscribeErrors registers an observer invoked for every newly recorded
// error.
func (p *Project) SubscribeErrors(fn func(error)) string {
	token := newToken()
	p.errMu.Lock()
	p.errSubs[token] = fn
	p.errMu.Unlock()
	return token
}

// UnsubscribeErrors removes an error observer.
func (p *Project) UnsubscribeErrors(token string) {
	p.errMu.Lock()
	delete(p.errSubs, token)
	p.errMu.Unlock()
}

// Close tears down the watcher and all subscriptions. In-flight writes
// already dispatched are drained before the pool is released.
func (p *Project) Close() error {
	p.closeOnce.Do(func() {
		p.cancelCtx()
		if p.syncer != nil {
			p.syncer.close()
		}
		p.release()
	})
	return nil
}

func (p *Project) release() {
	p.cancelCtx()
	p.pool.Release()
}

// submit dispatches a fire-and-forget task on the write pool. Once the pool
// is released the task runs inline so a racing teardown cannot drop a write
// silently.
func (p *Project) submit(task func()) {
	if err := p.pool.Submit(task); err != nil {
		task()
	}
}

func (p *Project) reportError(err error) {
	p.errMu.Lock()
	p.errs = append(p.errs, err)
	subs := make([]func(error), 0, len(p.errSubs))
	for _, fn := range p.errSubs {
		subs = append(subs, fn)
	}
	p.errMu.Unlock()
	for _, fn := range subs {
		fn(err)
	}
}

func (p *Project) pluginAPI() ResolvedPluginAPI {
	p.modMu.RLock()
	defer p.modMu.RUnlock()
	return p.modules.PluginAPI
}

func (p *Project) resolveModules(ctx context.Context, settings *ProjectSettings) {
	if p.resolver == nil {
		return
	}
	resolved, err := p.resolver(ctx, settings, p.fsys)
	if err != nil {
		p.reportError(err)
		return
	}
	if resolved == nil {
		resolved = &ResolvedModules{}
	}
	p.modMu.Lock()
	p.modules = resolved
	p.modMu.Unlock()
}
