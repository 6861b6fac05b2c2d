package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henrikfb/mailsift/internal/model"
)

func resetRunFlags(t *testing.T) {
	t.Helper()
	runAgentFile = ""
	runCriteria = ""
	runFields = ""
	runMaxLinks = 0
	runStrategy = ""
	t.Cleanup(func() {
		runAgentFile = ""
		runCriteria = ""
		runFields = ""
		runMaxLinks = 0
		runStrategy = ""
	})
}

func TestLoadAgentConfigFromYAML(t *testing.T) {
	resetRunFlags(t)

	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
match_criteria: order confirmations
extraction_fields: orderId, total
follow_links: true
max_links_to_scrape: 3
content_retrieval_strategy: fetch-and-search
`), 0o644))

	runAgentFile = path
	agentCfg, err := loadAgentConfig(runCmd)

	require.NoError(t, err)
	assert.Equal(t, "order confirmations", agentCfg.MatchCriteria)
	assert.Equal(t, "orderId, total", agentCfg.ExtractionFields)
	assert.True(t, agentCfg.FollowLinks)
	assert.Equal(t, 3, agentCfg.MaxLinksToScrape)
	assert.Equal(t, model.StrategyFetchAndSearch, agentCfg.Strategy)
}

func TestLoadAgentConfigFlagOverrides(t *testing.T) {
	resetRunFlags(t)

	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
match_criteria: original
extraction_fields: a
`), 0o644))

	runAgentFile = path
	runCriteria = "overridden"
	runMaxLinks = 7
	agentCfg, err := loadAgentConfig(runCmd)

	require.NoError(t, err)
	assert.Equal(t, "overridden", agentCfg.MatchCriteria)
	assert.Equal(t, "a", agentCfg.ExtractionFields)
	assert.Equal(t, 7, agentCfg.MaxLinksToScrape)
}

func TestLoadAgentConfigMissingFile(t *testing.T) {
	resetRunFlags(t)

	runAgentFile = filepath.Join(t.TempDir(), "absent.yaml")
	_, err := loadAgentConfig(runCmd)

	assert.Error(t, err)
}
