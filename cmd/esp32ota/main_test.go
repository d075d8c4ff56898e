package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitErrHandler_NilError(t *testing.T) {
	// Must not exit on a nil error
	exitErrHandler(nil, nil)
}

func TestNewApp(t *testing.T) {
	app := newApp()

	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"upload", "info", "simulate", "dump", "version"}, names)
	assert.Contains(t, app.Version, "commit: unknown")
}
