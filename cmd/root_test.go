package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandRegistration(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"pregen", "indicators", "metadata", "batches"} {
		assert.True(t, names[want], "command %q not registered", want)
	}
}

func TestPregenSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range pregenCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"import", "sync", "parts"} {
		assert.True(t, names[want], "subcommand %q not registered", want)
	}
}
