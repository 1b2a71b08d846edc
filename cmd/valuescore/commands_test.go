package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"crm-value-server/pkg/collector"
	"crm-value-server/pkg/config"
	"crm-value-server/pkg/multimodal"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useConfig loads configuration from the given environment and installs it
// as the command configuration for the duration of the test.
func useConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	t.Setenv("AMQP_ENABLED", "false")
	t.Setenv("METRICS_ENABLED", "false")

	cfg, err := config.Load(logrus.New())
	require.NoError(t, err)

	prev := appConfig
	appConfig = cfg
	t.Cleanup(func() { appConfig = prev })
	return cfg
}

func TestRunAnalyzeWritesResult(t *testing.T) {
	useConfig(t, map[string]string{"COLLECTOR_SOURCE": "memory"})

	analyzeCustomer, analyzeType = "acme", multimodal.AnalysisEngagement
	analyzeModalities, analyzeDays, analyzeAudioDir = "", 0, ""
	t.Cleanup(func() { analyzeCustomer, analyzeType = "", multimodal.AnalysisHighValue })

	var out bytes.Buffer
	analyzeCmd.SetOut(&out)
	t.Cleanup(func() { analyzeCmd.SetOut(nil) })

	require.NoError(t, runAnalyze(analyzeCmd, nil))

	var result multimodal.AnalysisResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, "acme", result.CustomerID)
	assert.Equal(t, multimodal.AnalysisEngagement, result.AnalysisType)
	assert.NotEmpty(t, result.RequestID)
	assert.Contains(t, result.Results, "engagement_score")
	require.NotNil(t, result.Fusion)
	assert.NotEmpty(t, result.Fusion.InputModalities)
}

func TestRunAnalyzeRejectsUnknownModality(t *testing.T) {
	useConfig(t, map[string]string{"COLLECTOR_SOURCE": "memory"})

	analyzeCustomer, analyzeModalities = "acme", "smell"
	t.Cleanup(func() { analyzeCustomer, analyzeModalities = "", "" })

	assert.Error(t, runAnalyze(analyzeCmd, nil))
}

func TestRunSeedLoadsFixtureIntoRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	useConfig(t, map[string]string{
		"COLLECTOR_SOURCE": "memory",
		"REDIS_ADDRESS":    mr.Addr(),
		"REDIS_KEY_PREFIX": "seedtest",
	})

	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"customers": [{"id": "acme", "industry": "retail"}],
		"records": {
			"acme": {"text": [{"content": "pricing?", "sentiment": "positive"}]},
			"beta": {"behavior": [{"session_id": "s1"}]}
		}
	}`), 0o644))

	var out bytes.Buffer
	seedCmd.SetOut(&out)
	t.Cleanup(func() { seedCmd.SetOut(nil) })

	require.NoError(t, runSeed(seedCmd, []string{path}))

	var summary seedSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, 2, summary.Customers)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	src := collector.NewRedisSourceWithClient(client, "seedtest", logrus.New())

	c, err := src.LookupCustomer(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "retail", c.Industry)

	text, err := src.CollectText(context.Background(), "acme", multimodal.TimeRange{})
	require.NoError(t, err)
	require.Len(t, text, 1)
	assert.Equal(t, "pricing?", text[0].Content)
}
