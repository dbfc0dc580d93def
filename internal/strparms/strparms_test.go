package strparms

import (
	"testing"

	"github.com/companyzero/audiohal/internal/assert"
)

func TestParse(t *testing.T) {
	p := Parse("routing=2; screen_state=on;;bt_wbs=off;routing=0x4;flag")

	assert.DeepEqual(t, p.Keys(), []string{"routing", "screen_state", "bt_wbs", "flag"})

	v, ok := p.GetInt("routing")
	assert.BoolIs(t, ok, true)
	assert.DeepEqual(t, v, 4)

	s, ok := p.Get("screen_state")
	assert.BoolIs(t, ok, true)
	assert.DeepEqual(t, s, "on")

	assert.BoolIs(t, p.Has("flag"), true)
	assert.BoolIs(t, p.Has("missing"), false)

	_, ok = p.GetInt("screen_state")
	assert.BoolIs(t, ok, false)
}

func TestDelAndString(t *testing.T) {
	p := Parse("a=1;b=2;c")
	p.Del("b")
	p.SetBool("d", true)
	p.SetInt("e", 48000)
	assert.DeepEqual(t, p.String(), "a=1;c;d=true;e=48000")
	assert.DeepEqual(t, p.Len(), 4)
}

func TestGetFloat(t *testing.T) {
	p := Parse("volume=0.25;bad=x")
	f, ok := p.GetFloat("volume")
	assert.BoolIs(t, ok, true)
	assert.DeepEqual(t, f, 0.25)
	_, ok = p.GetFloat("bad")
	assert.BoolIs(t, ok, false)
}

func TestMerge(t *testing.T) {
	p := Parse("a=1")
	p.Merge(Parse("b=2;a=3"))
	assert.DeepEqual(t, p.String(), "a=3;b=2")
	p.Merge(nil)
	assert.DeepEqual(t, p.Len(), 2)
}
