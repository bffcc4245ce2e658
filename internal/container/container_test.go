package container

import (
	"context"
	"io"
	"testing"

	"goequity/adapters/memory"
	"goequity/internal"
	"goequity/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InMemory(t *testing.T) {
	cfg := &config.Config{Simulation: config.SimulationConfig{NGroups: 5, CodeVersion: "test"}}
	c, err := New(cfg, internal.NewLoggerTo(io.Discard, internal.LogLevelError))
	require.NoError(t, err)

	assert.IsType(t, &memory.AnalysisRepository{}, c.AnalysisRepo)
	assert.NotNil(t, c.Service)
	assert.Nil(t, c.DB)

	for _, format := range []string{"xlsx", "md", "html"} {
		_, err = c.Service.Writer(format)
		assert.NoError(t, err, format)
	}

	assert.NotNil(t, c.Handler())
	assert.NotNil(t, c.ProgressHub)
	assert.NoError(t, c.Shutdown(context.Background()))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	c, err := New(&config.Config{}, nil)
	require.NoError(t, err)
	assert.Error(t, c.InitWithDatabase(context.Background(), nil))
}
