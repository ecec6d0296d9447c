package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["deliver"])

	require.NotNil(t, root.PersistentFlags().Lookup("config"))
	envFiles, err := root.PersistentFlags().GetStringSlice("env-file")
	require.NoError(t, err)
	assert.Equal(t, []string{".env"}, envFiles)
}

func TestLoadConfigFailsWithoutToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	_, err := loadConfig(&rootFlags{envFiles: []string{t.TempDir() + "/none.env"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.token")
}
