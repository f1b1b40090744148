package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/san-kum/trajopt/internal/config"
)

func problemCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addProblemFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestResolveConfigDefaults(t *testing.T) {
	cfg, err := resolveConfig(problemCmd(t))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestResolveConfigFlagsOverridePreset(t *testing.T) {
	cfg, err := resolveConfig(problemCmd(t, "--preset", "aligned", "--steps", "20", "--target-x", "1.5", "--timeout", "2s"))
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Steps)
	assert.Equal(t, 1.5, cfg.Target.X)
	assert.Equal(t, 0.25, cfg.Target.Y)
	require.NotNil(t, cfg.TerminalHeadingDeg)
	assert.Equal(t, 0.0, *cfg.TerminalHeadingDeg)
	assert.Equal(t, "2s", cfg.Solver.Timeout)
}

func TestResolveConfigHeadingOnlyWhenSet(t *testing.T) {
	cfg, err := resolveConfig(problemCmd(t))
	require.NoError(t, err)
	assert.Nil(t, cfg.TerminalHeadingDeg)

	cfg, err = resolveConfig(problemCmd(t, "--heading", "90"))
	require.NoError(t, err)
	require.NotNil(t, cfg.TerminalHeadingDeg)
	assert.Equal(t, 90.0, *cfg.TerminalHeadingDeg)
}

func TestResolveConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "problem.yaml")
	file := config.DefaultConfig()
	file.Steps = 7
	require.NoError(t, config.Save(path, file))

	cfg, err := resolveConfig(problemCmd(t, "--config", path, "--integrator", "euler"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Steps)
	assert.Equal(t, "euler", cfg.Integrator)
}

func TestResolveConfigErrors(t *testing.T) {
	_, err := resolveConfig(problemCmd(t, "--preset", "nope"))
	assert.ErrorContains(t, err, "unknown preset")

	_, err = resolveConfig(problemCmd(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestSlogExporter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(slogExporter{logger: logger}))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "solver.Solve")
	span.SetAttributes(attribute.String("nlp.status", "converged"))
	span.End()

	out := buf.String()
	assert.Contains(t, out, "otel.span=solver.Solve")
	assert.Contains(t, out, "otel.nlp.status=converged")
}
