// Package registry remembers one background definition per virtual desktop
// and persists the mapping to a plain-text file.
package registry

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/platform"
)

const fileHeader = `# This file is managed by pbgnomebackgrounder. Do not edit it by hand.
#
# One section per virtual desktop, one "key = value" line per background
# setting of the desktop's settings scheme.
`

// Definition maps a setting key to its serialized value.
type Definition map[string]string

// Entry is the result of looking up a desktop in the registry.
type Entry struct {
	// Known reports whether the desktop has a stored definition.
	Known bool

	// Definition is the stored definition when Known.
	Definition Definition
}

// Registry is the in-memory per-desktop background store.
type Registry struct {
	path     string
	keys     []string
	settings platform.SettingsService
	entries  map[string]Definition
}

// New creates an empty registry persisted at path. keys is the fixed set of
// scheme keys queried at process start; definitions never track keys outside
// this set.
func New(path string, keys []string, settings platform.SettingsService) *Registry {
	return &Registry{
		path:     path,
		keys:     keys,
		settings: settings,
		entries:  make(map[string]Definition),
	}
}

// Load reads the persisted file into the registry. A missing or malformed
// file yields an empty registry; this is diagnosed but never fatal.
func (r *Registry) Load() {
	r.entries = make(map[string]Definition)

	f, err := os.Open(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warn("Cannot read background registry, starting empty")
		}
		return
	}
	defer f.Close()

	var section string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
			section = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := r.entries[section]; !ok && section != "" {
				r.entries[section] = make(Definition)
			}
		default:
			key, value, ok := strings.Cut(line, "=")
			if !ok || section == "" {
				log.WithField("line", line).Debug("Skipping malformed registry line")
				continue
			}
			key = strings.TrimSpace(key)
			// Keys that left the scheme since the file was written are dropped.
			if !r.schemeKey(key) {
				continue
			}
			r.entries[section][key] = strings.TrimSpace(value)
		}
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Warn("Error reading background registry, starting empty")
		r.entries = make(map[string]Definition)
	}
}

// Save writes the registry back to disk, sections and keys sorted, through a
// temporary file renamed into place so a failed write leaves the previous
// content intact.
func (r *Registry) Save() error {
	var b strings.Builder
	b.WriteString(fileHeader)

	desktops := make([]string, 0, len(r.entries))
	for desktop := range r.entries {
		desktops = append(desktops, desktop)
	}
	sort.Strings(desktops)

	for _, desktop := range desktops {
		b.WriteString("\n[" + desktop + "]\n")
		def := r.entries[desktop]

		keys := make([]string, 0, len(def))
		for key := range def {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			b.WriteString(key + " = " + def[key] + "\n")
		}
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

// QueryCurrent fetches the currently displayed background definition from
// the settings scheme. Keys whose fetch fails stay undefined in the result.
func (r *Registry) QueryCurrent() Definition {
	def := make(Definition, len(r.keys))
	for _, key := range r.keys {
		value, err := r.settings.Get(key)
		if err != nil {
			continue
		}
		def[key] = value
	}
	return def
}

// Lookup returns the stored entry for a desktop.
func (r *Registry) Lookup(desktop string) Entry {
	def, ok := r.entries[desktop]
	return Entry{Known: ok, Definition: def}
}

// Apply makes the stored background of a desktop active. A desktop seen for
// the first time is never repainted: its entry is adopted from whatever is
// currently displayed, then persisted.
func (r *Registry) Apply(desktop string) error {
	entry := r.Lookup(desktop)
	if !entry.Known {
		log.WithField("desktop", desktop).Info("New desktop, adopting current background")
		r.entries[desktop] = r.QueryCurrent()
		return r.persist()
	}

	keys := make([]string, 0, len(entry.Definition))
	for key := range entry.Definition {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := r.settings.Set(key, entry.Definition[key]); err != nil {
			log.WithError(err).WithField("key", key).Debug("Cannot push background setting")
		}
	}
	return nil
}

// DetectChange captures user-initiated background edits on the active
// desktop. When the displayed definition diverges from the stored one, the
// entry is replaced and persisted. Returns true when a rewrite happened.
func (r *Registry) DetectChange(desktop string) (bool, error) {
	current := r.QueryCurrent()
	entry := r.Lookup(desktop)

	if entry.Known && !diverged(current, entry.Definition) {
		return false, nil
	}

	log.WithField("desktop", desktop).Info("Background changed, updating registry")
	r.entries[desktop] = current
	if err := r.persist(); err != nil {
		return true, err
	}
	return true, nil
}

// diverged reports whether any key of current is absent from or differs
// from stored. Keys present only in stored do not count.
func diverged(current, stored Definition) bool {
	for key, value := range current {
		if storedValue, ok := stored[key]; !ok || storedValue != value {
			return true
		}
	}
	return false
}

func (r *Registry) schemeKey(key string) bool {
	for _, k := range r.keys {
		if k == key {
			return true
		}
	}
	return false
}

func (r *Registry) persist() error {
	if err := r.Save(); err != nil {
		log.WithError(err).Warn("Cannot persist background registry")
		return err
	}
	return nil
}

// Desktops returns the sorted desktop identifiers present in the registry.
func (r *Registry) Desktops() []string {
	desktops := make([]string, 0, len(r.entries))
	for desktop := range r.entries {
		desktops = append(desktops, desktop)
	}
	sort.Strings(desktops)
	return desktops
}

// Path returns the persisted file location.
func (r *Registry) Path() string {
	return r.path
}
