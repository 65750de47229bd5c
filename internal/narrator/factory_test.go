package narrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryDefaultsToDeepSeek(t *testing.T) {
	n, err := New(context.Background(), Options{APIKey: "k"}, nil)
	require.NoError(t, err)
	_, ok := n.(*DeepSeekClient)
	assert.True(t, ok)
}

func TestFactoryDeepSeekOptions(t *testing.T) {
	n, err := New(context.Background(), Options{
		Provider: "deepseek",
		APIKey:   "k",
		Model:    "deepseek-reasoner",
		BaseURL:  "http://localhost:9999",
		Timeout:  3 * time.Second,
	}, nil)
	require.NoError(t, err)
	c, ok := n.(*DeepSeekClient)
	require.True(t, ok)
	assert.Equal(t, "deepseek-reasoner", c.cfg.Model)
	assert.Equal(t, "http://localhost:9999", c.cfg.BaseURL)
}

func TestFactoryGeminiRequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), Options{Provider: "gemini"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestFactoryRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Options{Provider: "ouija"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ouija")
}
