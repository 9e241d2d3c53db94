package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"Conductor_Class = Class 2", "csa=16"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"conductor_class": "Class 2", "csa": "16"}, got)

	_, err = parseAssignments([]string{"colour=red"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{"csa"})
	assert.Error(t, err)
}

func TestParseDesignSetsConvertsNumbers(t *testing.T) {
	patch, err := parseDesignSets([]string{"csa=2,5", "voltage=0.6/1 kV"})
	require.NoError(t, err)
	assert.Equal(t, 2.5, patch["csa"])
	assert.Equal(t, "0.6/1 kV", patch["voltage"])

	_, err = parseDesignSets([]string{"insulation_thickness=thick"})
	assert.Error(t, err)
}

func TestPromptAsker(t *testing.T) {
	var out bytes.Buffer
	a := newPromptAsker(strings.NewReader("Class 2\n\nskip\n"), &out)
	ctx := context.Background()

	ans, ok := a.Ask(ctx, "conductor_class", "e.g. Class 2")
	assert.True(t, ok)
	assert.Equal(t, "Class 2", ans)
	_, ok = a.Ask(ctx, "csa", "")
	assert.False(t, ok)
	_, ok = a.Ask(ctx, "csa", "")
	assert.False(t, ok)
	_, ok = a.Ask(ctx, "csa", "")
	assert.False(t, ok, "eof declines")
	assert.Contains(t, out.String(), "conductor class (e.g. Class 2): ")
}

func TestHumanTimeFallsBack(t *testing.T) {
	assert.Equal(t, "not-a-time", humanTime("not-a-time"))
}
