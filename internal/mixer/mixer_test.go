package mixer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/companyzero/audiohal/audiodef"
	"github.com/companyzero/audiohal/internal/assert"
	"github.com/companyzero/audiohal/internal/testutils"
)

const testPaths = `
card = "test-card"

[controls]
"SPK Switch" = 0
"SPK Volume" = 10
"RCV Switch" = 0
"SPK EQ" = 0

[paths.media-speaker]
"SPK Switch" = 1

[gains.media-speaker]
"SPK Volume" = 80

[paths.media-handset]
"RCV Switch" = 1

[modifiers.bt-sco-rx-wb]
"SPK EQ" = 2
`

func writePaths(t testing.TB, fname, content string) {
	t.Helper()
	testutils.WriteTestFile(t, filepath.Dir(fname), filepath.Base(fname), content)
}

func newTestBackend(t testing.TB, cfg Config) (*Backend, *StateCard) {
	t.Helper()
	if cfg.PathsFile == "" {
		cfg.PathsFile = filepath.Join(t.TempDir(), "paths.toml")
		writePaths(t, cfg.PathsFile, testPaths)
	}
	card, err := NewStateCard("test-card", "", nil)
	assert.NilErr(t, err)
	cfg.Card = card
	cfg.Log = testutils.TestLoggerSys(t, "MIXR")
	b, err := New(cfg)
	assert.NilErr(t, err)
	t.Cleanup(func() { b.Close() })
	return b, card
}

func TestApplyResetPath(t *testing.T) {
	b, card := newTestBackend(t, Config{})

	// Initial values are set on creation.
	assert.DeepEqual(t, card.Snapshot(), map[string]int{
		"SPK Switch": 0, "SPK Volume": 10, "RCV Switch": 0, "SPK EQ": 0,
	})

	assert.NilErr(t, b.ApplyPath(audiodef.UsageMedia, audiodef.DeviceSpeaker))
	assert.DeepEqual(t, card.Snapshot(), map[string]int{
		"SPK Switch": 1, "SPK Volume": 80, "RCV Switch": 0, "SPK EQ": 0,
	})
	paths, mods := b.Applied()
	assert.DeepEqual(t, paths, []string{"media-speaker"})
	assert.DeepEqual(t, len(mods), 0)

	assert.NilErr(t, b.ApplyModifier(audiodef.ModifierBTSCORxWB))
	v, err := b.Control("SPK EQ")
	assert.NilErr(t, err)
	assert.DeepEqual(t, v, 2)

	assert.NilErr(t, b.ResetModifier(audiodef.ModifierBTSCORxWB))
	assert.NilErr(t, b.ResetPath(audiodef.UsageMedia, audiodef.DeviceSpeaker))
	assert.DeepEqual(t, card.Snapshot(), map[string]int{
		"SPK Switch": 0, "SPK Volume": 10, "RCV Switch": 0, "SPK EQ": 0,
	})
	paths, _ = b.Applied()
	assert.DeepEqual(t, len(paths), 0)
}

func TestUnknownPath(t *testing.T) {
	b, _ := newTestBackend(t, Config{})
	err := b.ApplyPath(audiodef.UsageRecording, audiodef.DeviceMainMic)
	assert.ErrorIs(t, err, ErrUnknownPath)
	err = b.ApplyModifier(audiodef.ModifierBTSCOTxNB)
	assert.ErrorIs(t, err, ErrUnknownPath)

	_, err = b.Control("missing")
	assert.ErrorIs(t, err, ErrUnknownControl)
}

func TestRawControls(t *testing.T) {
	b, _ := newTestBackend(t, Config{})
	assert.NilErr(t, b.SetControl("audio-mode", 2))
	v, err := b.Control("audio-mode")
	assert.NilErr(t, err)
	assert.DeepEqual(t, v, 2)

	assert.NilErr(t, b.Close())
	assert.ErrorIs(t, b.SetControl("audio-mode", 0), errClosed)
}

func TestMissingInitialValue(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "paths.toml")
	writePaths(t, fname, "[controls]\n\"A\" = 0\n\n[paths.media-speaker]\n\"B\" = 1\n")
	_, err := New(Config{PathsFile: fname})
	assert.ErrorIs(t, err, ErrNoInitialValue)
}

func TestReloadReappliesPaths(t *testing.T) {
	b, card := newTestBackend(t, Config{})
	assert.NilErr(t, b.ApplyPath(audiodef.UsageMedia, audiodef.DeviceSpeaker))

	// The new definition drops the gain and changes the switch value.
	writePaths(t, b.cfg.PathsFile, `
[controls]
"SPK Switch" = 0
"SPK Volume" = 10

[paths.media-speaker]
"SPK Switch" = 3
`)
	assert.NilErr(t, b.Reload())
	snap := card.Snapshot()
	assert.DeepEqual(t, snap["SPK Switch"], 3)
	assert.DeepEqual(t, snap["SPK Volume"], 10)

	// An invalid file keeps the current paths.
	writePaths(t, b.cfg.PathsFile, "[paths.media-speaker]\n\"X\" = 1\n")
	assert.ErrorIs(t, b.Reload(), ErrNoInitialValue)
	paths, _ := b.Applied()
	assert.DeepEqual(t, paths, []string{"media-speaker"})
}

func TestLiveReload(t *testing.T) {
	reloaded := make(chan error, 5)
	b, card := newTestBackend(t, Config{
		LiveReload: true,
		OnReload:   func(err error) { reloaded <- err },
	})
	assert.NilErr(t, b.ApplyPath(audiodef.UsageMedia, audiodef.DeviceSpeaker))

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(ctx) }()

	// Give the watcher time to be installed.
	time.Sleep(100 * time.Millisecond)
	writePaths(t, b.cfg.PathsFile, `
[controls]
"SPK Switch" = 0
"SPK Volume" = 10

[paths.media-speaker]
"SPK Switch" = 1

[gains.media-speaker]
"SPK Volume" = 55
`)
	assert.NilErrFromChan(t, reloaded)
	assert.DeepEqual(t, card.Snapshot()["SPK Volume"], 55)

	cancel()
	assert.ErrorIs(t, assert.ChanWritten(t, runErr), context.Canceled)
}

func TestStateCardRestore(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "state", "card.toml")
	card, err := NewStateCard("test-card", stateFile, nil)
	assert.NilErr(t, err)
	assert.NilErr(t, card.SetControl("SPK Volume", 42))
	assert.NilErr(t, card.SetControl("Mic Boost", 3))
	assert.NilErr(t, card.Close())

	card, err = NewStateCard("test-card", stateFile, nil)
	assert.NilErr(t, err)
	assert.DeepEqual(t, card.Snapshot(), map[string]int{"SPK Volume": 42, "Mic Boost": 3})

	// The state of another card is not restored.
	other, err := NewStateCard("other-card", stateFile, nil)
	assert.NilErr(t, err)
	assert.DeepEqual(t, len(other.Snapshot()), 0)
}
