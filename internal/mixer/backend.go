// Package mixer programs named mixer paths, loaded from a TOML paths file,
// into a control card.
package mixer

import (
	"fmt"
	"io"
	"sync"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/hal"
	"github.com/decred/slog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Config configures a Backend.
type Config struct {
	// PathsFile is the TOML file with the mixer paths.
	PathsFile string

	// Card receives the control values. A memory only StateCard is used
	// when nil.
	Card Card

	// LiveReload makes Run reload the paths file when it changes.
	LiveReload bool

	// OnReload is called after every reload attempt of the paths file.
	OnReload func(err error)

	Log slog.Logger
}

// Backend applies mixer paths to a card. It implements hal.RouteBackend.
type Backend struct {
	cfg  Config
	log  slog.Logger
	card Card

	mtx          sync.Mutex
	paths        *Paths
	appliedPaths map[string]struct{}
	appliedMods  map[string]struct{}
	closed       bool
}

var _ hal.RouteBackend = (*Backend)(nil)

// New loads the paths file and sets every control of the card to its
// initial value.
func New(cfg Config) (*Backend, error) {
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	paths, undecoded, err := LoadPaths(cfg.PathsFile)
	if err != nil {
		return nil, err
	}
	for _, k := range undecoded {
		log.Warnf("Unknown key %q in %s", k, cfg.PathsFile)
	}

	card := cfg.Card
	if card == nil {
		card, err = NewStateCard(paths.Card, "", log)
		if err != nil {
			return nil, err
		}
	}

	b := &Backend{
		cfg:          cfg,
		log:          log,
		card:         card,
		paths:        paths,
		appliedPaths: make(map[string]struct{}),
		appliedMods:  make(map[string]struct{}),
	}
	if err := b.initControls(paths); err != nil {
		return nil, err
	}
	log.Infof("Loaded %d mixer paths, %d gains and %d modifiers from %s",
		len(paths.Paths), len(paths.Gains), len(paths.Modifiers), cfg.PathsFile)
	return b, nil
}

func (b *Backend) initControls(paths *Paths) error {
	for _, name := range sortedControls(paths.Controls) {
		if err := b.card.SetControl(name, paths.Controls[name]); err != nil {
			return fmt.Errorf("unable to init control %q: %w", name, err)
		}
	}
	return nil
}

// apply sets the controls of table. Must be called with the lock held.
func (b *Backend) apply(table map[string]int) error {
	for _, ctl := range sortedControls(table) {
		if err := b.card.SetControl(ctl, table[ctl]); err != nil {
			return fmt.Errorf("unable to set %q: %w", ctl, err)
		}
	}
	return nil
}

// reset restores the initial value of the controls of table. Must be called
// with the lock held.
func (b *Backend) reset(table map[string]int) error {
	for _, ctl := range sortedControls(table) {
		if err := b.card.SetControl(ctl, b.paths.Controls[ctl]); err != nil {
			return fmt.Errorf("unable to reset %q: %w", ctl, err)
		}
	}
	return nil
}

// ApplyPath is part of the hal.RouteBackend interface.
func (b *Backend) ApplyPath(u audiodef.Usage, d audiodef.LogicalDevice) error {
	name := PathName(u, d)
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return errClosed
	}
	table, ok := b.paths.Paths[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownPath, name)
	}
	if err := b.apply(table); err != nil {
		return err
	}
	if gain, ok := b.paths.Gains[name]; ok {
		if err := b.apply(gain); err != nil {
			return err
		}
	}
	b.appliedPaths[name] = struct{}{}
	b.log.Debugf("Applied path %s", name)
	return nil
}

// ResetPath is part of the hal.RouteBackend interface.
func (b *Backend) ResetPath(u audiodef.Usage, d audiodef.LogicalDevice) error {
	name := PathName(u, d)
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return errClosed
	}
	table, ok := b.paths.Paths[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownPath, name)
	}
	if gain, ok := b.paths.Gains[name]; ok {
		if err := b.reset(gain); err != nil {
			return err
		}
	}
	if err := b.reset(table); err != nil {
		return err
	}
	delete(b.appliedPaths, name)
	b.log.Debugf("Reset path %s", name)
	return nil
}

// ApplyModifier is part of the hal.RouteBackend interface.
func (b *Backend) ApplyModifier(m audiodef.Modifier) error {
	name := m.String()
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return errClosed
	}
	table, ok := b.paths.Modifiers[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownPath, name)
	}
	if err := b.apply(table); err != nil {
		return err
	}
	b.appliedMods[name] = struct{}{}
	b.log.Debugf("Applied modifier %s", name)
	return nil
}

// ResetModifier is part of the hal.RouteBackend interface.
func (b *Backend) ResetModifier(m audiodef.Modifier) error {
	name := m.String()
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return errClosed
	}
	table, ok := b.paths.Modifiers[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownPath, name)
	}
	if err := b.reset(table); err != nil {
		return err
	}
	delete(b.appliedMods, name)
	b.log.Debugf("Reset modifier %s", name)
	return nil
}

// SetControl is part of the hal.RouteBackend interface.
func (b *Backend) SetControl(name string, value int) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return errClosed
	}
	return b.card.SetControl(name, value)
}

// Control is part of the hal.RouteBackend interface.
func (b *Backend) Control(name string) (int, error) {
	return b.card.Control(name)
}

// Applied returns the names of the applied paths and modifiers.
func (b *Backend) Applied() (paths, modifiers []string) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return sortedKeys(b.appliedPaths), sortedKeys(b.appliedMods)
}

// Reload loads the paths file again. The applied paths and modifiers are
// reset with their previous definition and applied with the new one. The
// current paths are kept when the file is invalid.
func (b *Backend) Reload() error {
	paths, undecoded, err := LoadPaths(b.cfg.PathsFile)
	if err == nil {
		for _, k := range undecoded {
			b.log.Warnf("Unknown key %q in %s", k, b.cfg.PathsFile)
		}
		err = b.swapPaths(paths)
	}
	if b.cfg.OnReload != nil {
		b.cfg.OnReload(err)
	}
	return err
}

func (b *Backend) swapPaths(paths *Paths) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return errClosed
	}

	for _, name := range sortedKeys(b.appliedMods) {
		if err := b.reset(b.paths.Modifiers[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(b.appliedPaths) {
		if err := b.reset(b.paths.Gains[name]); err != nil {
			return err
		}
		if err := b.reset(b.paths.Paths[name]); err != nil {
			return err
		}
	}

	b.paths = paths
	if err := b.initControls(paths); err != nil {
		return err
	}

	for _, name := range sortedKeys(b.appliedPaths) {
		table, ok := paths.Paths[name]
		if !ok {
			b.log.Warnf("Applied path %s was removed", name)
			delete(b.appliedPaths, name)
			continue
		}
		if err := b.apply(table); err != nil {
			return err
		}
		if err := b.apply(paths.Gains[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(b.appliedMods) {
		table, ok := paths.Modifiers[name]
		if !ok {
			b.log.Warnf("Applied modifier %s was removed", name)
			delete(b.appliedMods, name)
			continue
		}
		if err := b.apply(table); err != nil {
			return err
		}
	}
	b.log.Infof("Reloaded mixer paths (%d paths, %d modifiers applied)",
		len(b.appliedPaths), len(b.appliedMods))
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

// Dump writes the applied paths and modifiers to w.
func (b *Backend) Dump(w io.Writer) {
	paths, mods := b.Applied()
	fmt.Fprintf(w, "mixer %s\n", b.cfg.PathsFile)
	fmt.Fprintf(w, "  paths: %v\n", paths)
	fmt.Fprintf(w, "  modifiers: %v\n", mods)
}

// Close closes the card.
func (b *Backend) Close() error {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.card.Close()
}
