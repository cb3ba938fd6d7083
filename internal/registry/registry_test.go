package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nfrund/roomchat/internal/config"
)

type greeter interface{ Greet() string }

type english struct{}

func (english) Greet() string { return "hello" }

func TestRegistry(t *testing.T) {
	cfg := &config.Config{DefaultRoom: "1"}
	reg := New(cfg)
	assert.Same(t, cfg, reg.Config())

	const key Key[greeter] = "test.greeter"

	_, ok := Get(reg, key)
	assert.False(t, ok)
	assert.Panics(t, func() { MustGet(reg, key) })

	Set[greeter](reg, key, english{})
	g, ok := Get(reg, key)
	assert.True(t, ok)
	assert.Equal(t, "hello", g.Greet())
	assert.Equal(t, "hello", MustGet(reg, key).Greet())

	// A key with the same name but another type does not match.
	_, ok = Get(reg, Key[string]("test.greeter"))
	assert.False(t, ok)
}
