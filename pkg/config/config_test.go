package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string `mapstructure:"name"`
	Engine struct {
		MailboxSize int `mapstructure:"mailbox_size"`
	} `mapstructure:"engine"`
	Tickers []string `mapstructure:"tickers"`
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	file := filepath.Join(t.TempDir(), "svc.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: from-file\nengine:\n  mailbox_size: 64\n"), 0o644))

	var c sample
	_, err := Load("svc", &c, Options{File: file, Defaults: map[string]any{
		"name":                "default",
		"engine.mailbox_size": 8,
		"tickers":             []string{"AAPL"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "from-file", c.Name)
	assert.Equal(t, 64, c.Engine.MailboxSize)
	assert.Equal(t, []string{"AAPL"}, c.Tickers)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SVCENV_ENGINE_MAILBOX_SIZE", "128")
	t.Chdir(t.TempDir())

	var c sample
	_, err := Load("svcenv", &c, Options{Defaults: map[string]any{"engine.mailbox_size": 8}})
	require.NoError(t, err)
	assert.Equal(t, 128, c.Engine.MailboxSize)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	var c sample
	_, err := Load("svc", &c, Options{File: filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}
