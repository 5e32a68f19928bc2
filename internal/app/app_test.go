package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcelsud/priorauth-notify/config"
	"github.com/marcelsud/priorauth-notify/internal/app"
	"github.com/marcelsud/priorauth-notify/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Port:                "8080",
		StoreDriver:         "memory",
		PublicBaseURL:       "http://localhost:8080/fhir",
		TopicURL:            "http://hl7.org/fhir/us/davinci-pas/SubscriptionTopic/PASSubscriptionTopic",
		DispatchConcurrency: 4,
		BreakerThreshold:    5,
		BreakerOpenTimeout:  30 * time.Second,
		LogLevel:            "info",
	}
}

func TestNew_MemoryWiring(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer endpoint.Close()

	a, err := app.New(ctx, memoryConfig())
	require.NoError(t, err)
	require.NoError(t, a.Migrate(ctx))

	raw := []byte(`{
		"resourceType": "Subscription",
		"criteria": "http://hl7.org/fhir/us/davinci-pas/SubscriptionTopic/PASSubscriptionTopic",
		"_criteria": {"extension": [{
			"url": "http://hl7.org/fhir/uv/subscriptions-backport/StructureDefinition/backport-filter-criteria",
			"valueString": "org-identifier=1234567890"
		}]},
		"channel": {"type": "rest-hook", "endpoint": "` + endpoint.URL + `", "payload": "application/fhir+json"}
	}`)
	sub, err := a.Hooks.OnSubscriptionRequest(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, subscription.Active, sub.Status)

	results := a.Hooks.OnDecisionUpdatedSync(ctx, "CR-1", "1234567890",
		json.RawMessage(`{"resourceType":"ClaimResponse","id":"CR-1"}`))
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, int32(2), calls.Load())

	counts, err := a.Subscriptions.GetStatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["active"])

	require.NoError(t, a.Close(ctx))
}

func TestNew_PoliciesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policies:\n  - name: event-notification\n    max_retries: 1\n"), 0o600))

	cfg := memoryConfig()
	cfg.PoliciesFile = path
	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Equal(t, 1, a.Policies.EventNotification().MaxRetries)
}

func TestNew_Errors(t *testing.T) {
	t.Run("missing policies file", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.PoliciesFile = filepath.Join(t.TempDir(), "missing.yaml")
		_, err := app.New(context.Background(), cfg)
		assert.Error(t, err)
	})

	t.Run("unknown store driver", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.StoreDriver = "cassandra"
		_, err := app.New(context.Background(), cfg)
		assert.Error(t, err)
	})
}
