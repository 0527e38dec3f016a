package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "seed-robots", "create-admin"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestSeedRobots_RejectsPositiveStart(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"seed-robots", "--start", "5"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--start must be negative")
}

func TestCreateAdmin_RequiresFlags(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"create-admin", "--username", "boss"})

	assert.Error(t, root.Execute())
}

func TestMaintenanceCommands_RequireMySQL(t *testing.T) {
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("STORE_DRIVER", "memory")

	_, err := loadMySQLConfig()
	assert.Error(t, err)
}
