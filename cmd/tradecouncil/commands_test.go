package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("TRADECOUNCIL_CONFIG", "")
	assert.Equal(t, defaultConfigPath, resolveConfigPath(""))

	t.Setenv("TRADECOUNCIL_CONFIG", "/etc/tc.yaml")
	assert.Equal(t, "/etc/tc.yaml", resolveConfigPath(" "))
	assert.Equal(t, "local.yaml", resolveConfigPath("local.yaml"))
}

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "once", "check"} {
		cmd, _, err := root.Find([]string{name})
		assert.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}
