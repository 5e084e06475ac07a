package bootstrap

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformconfig "docuvoice-client-go/internal/platform/config"
)

// chdir keeps config/log/data files from each step inside a temp dir.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestInitGraphOrder(t *testing.T) {
	steps := InitGraph()
	want := []string{
		"config:load-runtime",
		"logging:init-provider",
		"storage:open-store",
		"backend:init-client",
		"services:assemble",
	}
	require.Len(t, steps, len(want))
	for i, step := range steps {
		assert.Equal(t, want[i], step.ID)
	}
}

func TestExecuteInitGraph(t *testing.T) {
	chdir(t)
	state := &appState{}
	require.NoError(t, executeInitSteps(context.Background(), InitGraph(), state))

	require.NotNil(t, state.config)
	require.NotNil(t, state.logger)
	require.NotNil(t, state.store)
	require.NotNil(t, state.client)
	require.NotNil(t, state.app)
	state.logger.Close()
}

func TestExecuteInitStepsRejectsUnmetDependency(t *testing.T) {
	steps := []initStep{{
		ID:        "b",
		DependsOn: []string{"a"},
		Execute:   func(context.Context, *appState) error { return nil },
	}}
	err := executeInitSteps(context.Background(), steps, &appState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency a not satisfied")
}

func TestExecuteInitStepsRejectsMissingExecute(t *testing.T) {
	err := executeInitSteps(context.Background(), []initStep{{ID: "x"}}, &appState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing execute function")
}

func TestLogBootstrapGraphOutput(t *testing.T) {
	chdir(t)
	state := &appState{}
	require.NoError(t, executeInitSteps(context.Background(), InitGraph(), state))
	logBootstrapGraph(state.logger, InitGraph())
	state.logger.Close()

	data, err := os.ReadFile(filepath.Join(state.config.Log.Dir, state.config.Log.File))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "init dependency overview")
	for _, id := range []string{
		"config:load-runtime",
		"logging:init-provider",
		"storage:open-store",
		"backend:init-client",
		"services:assemble",
	} {
		assert.Contains(t, content, id)
	}
}

func TestDoctorReport(t *testing.T) {
	out := &bytes.Buffer{}
	Doctor(out, platformconfig.Default())
	report := out.String()
	assert.True(t, strings.HasPrefix(report, "docuvoice doctor"))
	assert.Contains(t, report, "backend: http://127.0.0.1:8900")
	assert.Contains(t, report, "ffmpeg")
	assert.Contains(t, report, "ffplay")
}
