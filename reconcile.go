package msgproj

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"path"
	"sort"

	"github.com/loopcontext/msgproj/internal/stableid"
)

// paraglideAliasKey is the fixed downstream consumer recorded as a second
// alias on every newly imported message.
const paraglideAliasKey = "library.inlang.paraglideJs"

// maxIDProbes bounds fresh-id probing. Exhaustion is a distinguished error
// instead of looping forever on a pathological tree.
const maxIDProbes = 256

// reconcileImport merges the output of a legacy bulk "load messages" adapter
// into the store. It runs exactly once, after the initial filesystem load.
//
// Matching is alias-based: an imported message belongs to the store message
// whose alias entry for the importing plugin equals the imported message's
// own id. New messages receive a deterministic fresh id probed against the
// on-disk tree so assigned ids never collide with an existing message file,
// independent of what is loaded in memory.
func reconcileImport(ctx context.Context, store *MessageStore, fsys Fs, codec MessageCodec, dir string, settings *ProjectSettings, api ResolvedPluginAPI) error {
	imported, err := api.LoadMessages(ctx, settings)
	if err != nil {
		return err
	}
	sort.Slice(imported, func(i, j int) bool { return imported[i].ID < imported[j].ID })

	existing := store.GetAll()

	// Index store messages by their alias for this plugin. A duplicate alias
	// is a data-integrity bug and aborts before any mutation of this batch.
	byAlias := map[string][]*Message{}
	for _, m := range existing {
		if alias, ok := m.Alias[api.PluginKey]; ok {
			byAlias[alias] = append(byAlias[alias], m)
		}
	}
	for _, im := range imported {
		if matches := byAlias[im.ID]; len(matches) > 1 {
			ids := make([]string, len(matches))
			for i, m := range matches {
				ids[i] = m.ID
			}
			sort.Strings(ids)
			return &DuplicateAliasError{PluginKey: api.PluginKey, Alias: im.ID, MessageIDs: ids}
		}
	}

	for _, im := range imported {
		matches := byAlias[im.ID]
		if len(matches) == 0 {
			fresh, err := assignFreshID(fsys, codec, dir, im.ID)
			if err != nil {
				return err
			}
			created := im.Clone()
			created.ID = fresh
			created.Alias = map[string]string{
				api.PluginKey:     im.ID,
				paraglideAliasKey: im.ID,
			}
			store.Upsert(fresh, created)
			continue
		}

		// Exactly one match: rebind the import onto the established message.
		current := matches[0]
		updated := im.Clone()
		updated.ID = current.ID
		updated.Alias = current.Clone().Alias

		encUpdated, err := codec.EncodeMessage(updated)
		if err != nil {
			return err
		}
		encCurrent, err := codec.EncodeMessage(current)
		if err != nil {
			return err
		}
		if bytes.Equal(encUpdated, encCurrent) {
			continue
		}
		store.Upsert(current.ID, updated)
	}
	return nil
}

// assignFreshID derives a candidate id from a hash of the seed plus an
// integer offset and accepts the first offset whose file path is free.
func assignFreshID(fsys Fs, codec MessageCodec, dir string, seed string) (string, error) {
	for offset := 0; offset < maxIDProbes; offset++ {
		candidate := stableid.Derive(seed, offset)
		target := path.Join(dir, codec.PathFromMessageID(candidate))
		if _, err := fsys.Stat(target); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return candidate, nil
			}
			return "", err
		}
	}
	return "", &IDExhaustedError{Seed: seed, Attempts: maxIDProbes}
}
