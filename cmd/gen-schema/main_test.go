// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_WritesThenChecks(t *testing.T) {
	out := filepath.Join(t.TempDir(), "schemas", "config.schema.json")
	var stdout, stderr bytes.Buffer

	require.Equal(t, 1, run([]string{"--check", "-o", out}, &stdout, &stderr), "missing file fails the check")
	assert.Contains(t, stderr.String(), "out of date")

	require.Equal(t, 0, run([]string{"-o", out}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Generated "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "Contactbook configuration", doc["title"])

	stdout.Reset()
	require.Equal(t, 0, run([]string{"--check", "-o", out}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "up to date")

	require.NoError(t, os.WriteFile(out, []byte("{}\n"), 0o600))
	assert.Equal(t, 1, run([]string{"--check", "-o", out}, &stdout, &stderr))
}

func TestRun_BadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run([]string{"--nope"}, &stdout, &stderr))
}
