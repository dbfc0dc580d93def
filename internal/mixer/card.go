package mixer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/decred/slog"
	"github.com/pelletier/go-toml"
)

// Card is a set of named integer controls.
type Card interface {
	SetControl(name string, value int) error
	Control(name string) (int, error)
	Close() error
}

// cardState is the format of the state file of a StateCard.
type cardState struct {
	Card     string         `toml:"card"`
	Controls map[string]int `toml:"controls"`
}

// StateCard is a Card that keeps the control values in memory. When it has
// a state file, the values are loaded from it on creation and stored on
// close, the way alsactl restores a card across restarts.
type StateCard struct {
	name      string
	stateFile string
	log       slog.Logger

	mtx      sync.Mutex
	controls map[string]int
	closed   bool
}

// NewStateCard creates a card. An empty stateFile keeps the controls in
// memory only.
func NewStateCard(name, stateFile string, log slog.Logger) (*StateCard, error) {
	if log == nil {
		log = slog.Disabled
	}
	c := &StateCard{
		name:      name,
		stateFile: stateFile,
		log:       log,
		controls:  make(map[string]int),
	}
	if stateFile == "" {
		return c, nil
	}

	f, err := os.Open(stateFile)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var st cardState
	if err := toml.NewDecoder(f).Decode(&st); err != nil {
		return nil, fmt.Errorf("unable to decode card state %s: %w", stateFile, err)
	}
	if st.Card != "" && st.Card != name {
		log.Warnf("Ignoring state of card %q in %s", st.Card, stateFile)
		return c, nil
	}
	for k, v := range st.Controls {
		c.controls[k] = v
	}
	log.Debugf("Restored %d controls of card %q", len(c.controls), name)
	return c, nil
}

// Name of the card.
func (c *StateCard) Name() string {
	return c.name
}

func (c *StateCard) SetControl(name string, value int) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.closed {
		return errClosed
	}
	if old, ok := c.controls[name]; !ok || old != value {
		c.log.Tracef("%s: %q = %d", c.name, name, value)
	}
	c.controls[name] = value
	return nil
}

func (c *StateCard) Control(name string) (int, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	v, ok := c.controls[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownControl, name)
	}
	return v, nil
}

// Snapshot returns a copy of every control value.
func (c *StateCard) Snapshot() map[string]int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	res := make(map[string]int, len(c.controls))
	for k, v := range c.controls {
		res[k] = v
	}
	return res
}

// Close stores the state file.
func (c *StateCard) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.stateFile == "" {
		return nil
	}

	st := cardState{Card: c.name, Controls: c.controls}
	b, err := toml.Marshal(st)
	if err != nil {
		return fmt.Errorf("unable to encode card state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.stateFile), 0o700); err != nil {
		return err
	}
	tmp := c.stateFile + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, c.stateFile)
}
