package mixer

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/companyzero/audiohal/audiodef"
	"golang.org/x/exp/slices"
)

// Paths is the content of a mixer paths file:
//
//	[controls]
//	"SPK Switch" = 0
//
//	[paths.media-speaker]
//	"SPK Switch" = 1
//
//	[gains.media-speaker]
//	"SPK Volume" = 80
//
//	[modifiers.bt-sco-rx-wb]
//	"SPK EQ" = 2
//
// The controls table holds the initial value of every control, restored
// when a path that changed it is reset.
type Paths struct {
	Card      string                    `toml:"card"`
	Controls  map[string]int            `toml:"controls"`
	Paths     map[string]map[string]int `toml:"paths"`
	Gains     map[string]map[string]int `toml:"gains"`
	Modifiers map[string]map[string]int `toml:"modifiers"`
}

// PathName returns the name of the path of the (usage, device) pair.
func PathName(u audiodef.Usage, d audiodef.LogicalDevice) string {
	return u.String() + "-" + d.String()
}

// LoadPaths decodes a mixer paths file. Unknown keys are returned so the
// caller can warn about them.
func LoadPaths(fname string) (*Paths, []string, error) {
	var p Paths
	md, err := toml.DecodeFile(fname, &p)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to decode %s: %w", fname, err)
	}
	var undecoded []string
	for _, k := range md.Undecoded() {
		undecoded = append(undecoded, k.String())
	}
	if err := p.validate(); err != nil {
		return nil, undecoded, fmt.Errorf("invalid paths file %s: %w", fname, err)
	}
	return &p, undecoded, nil
}

// validate checks every control changed by a path has an initial value.
func (p *Paths) validate() error {
	if p.Controls == nil {
		p.Controls = make(map[string]int)
	}
	var missing []string
	check := func(kind string, tables map[string]map[string]int) {
		for name, ctls := range tables {
			for ctl := range ctls {
				if _, ok := p.Controls[ctl]; !ok {
					missing = append(missing, fmt.Sprintf("%s %s: %q", kind, name, ctl))
				}
			}
		}
	}
	check("path", p.Paths)
	check("gain", p.Gains)
	check("modifier", p.Modifiers)
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%w: %s", ErrNoInitialValue, strings.Join(missing, ", "))
	}
	return nil
}

// sortedControls returns the controls of a table in a stable order.
func sortedControls(ctls map[string]int) []string {
	return sortedKeys(ctls)
}
