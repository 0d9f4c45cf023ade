package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaultsWhenUnset(t *testing.T) {
	c := New(viper.New())

	assert.Equal(t, 50, c.Int("keeper.update_rate", 50))
	assert.Equal(t, true, c.Bool("keeper.keep_warm", true))
	assert.Equal(t, 0.0, c.Float("keeper.delay_compensation", 0))
	assert.Equal(t, "string", c.String("osc.phrase_output_format", "string"))
}

func TestSetValuesOverrideDefaults(t *testing.T) {
	v := viper.New()
	v.Set("keeper.update_rate", 30)
	v.Set("osc.enabled", true)
	c := New(v)

	assert.Equal(t, 30, c.Int("keeper.update_rate", 50))
	assert.True(t, c.Bool("osc.enabled", false))
}

func TestSubNamespacing(t *testing.T) {
	v := viper.New()
	v.Set("osc.msg.beat", true)
	v.Set("osc.destination", "10.0.0.2:9000")

	osc := New(v).Sub("osc")
	assert.True(t, osc.Bool("msg.beat", false))
	assert.Equal(t, "10.0.0.2:9000", osc.String("destination", "127.0.0.1:9999"))
	assert.False(t, osc.Bool("msg.time", false))

	// Nested reduction composes the prefix.
	msg := osc.Sub("msg")
	assert.True(t, msg.Bool("beat", false))
}
