package lambda

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInit_MissingTableName(t *testing.T) {
	t.Setenv("TABLE_NAME", "")
	t.Setenv("AWS_REGION", "us-east-1")

	_, err := Init(t.Context())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "TABLE_NAME")
}

func TestInit_MissingRegion(t *testing.T) {
	t.Setenv("TABLE_NAME", "fleetgate-test")
	t.Setenv("AWS_REGION", "")

	_, err := Init(t.Context())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "AWS_REGION")
}

func TestInit_BadConcurrency(t *testing.T) {
	t.Setenv("TABLE_NAME", "fleetgate-test")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("CONCURRENCY", "many")

	_, err := Init(t.Context())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "CONCURRENCY")
}

func TestInit_MissingToken(t *testing.T) {
	t.Setenv("TABLE_NAME", "fleetgate-test")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("CONCURRENCY", "")
	t.Setenv("THRESHOLDS_FILE", "")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")
	t.Setenv("TOKEN_SECRET_ARN", "")

	_, err := Init(t.Context())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "resolving provider token")
}

func TestInit_WiresOptionalSinks(t *testing.T) {
	t.Setenv("TABLE_NAME", "fleetgate-test")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("CONCURRENCY", "2")
	t.Setenv("THRESHOLDS_FILE", "")
	t.Setenv("GITHUB_TOKEN", "test-token")
	t.Setenv("REPORT_BUCKET", "reports")
	t.Setenv("REPORT_PREFIX", "fleet")
	t.Setenv("EVENT_BUS_NAME", "")
	t.Setenv("SNS_TOPIC_ARN", "")
	t.Setenv("ALERT_QUEUE_URL", "")

	d, err := Init(t.Context())
	assert.NoError(t, err)
	assert.Equal(t, 2, d.Config.Concurrency)
	assert.Equal(t, "fleetgate-test", d.Config.DispatchTable.TableName)
	assert.NotNil(t, d.Store)
	assert.Equal(t, "fleet/hub-1/report.json", d.Store.Key("hub-1"))
	assert.Nil(t, d.Publisher)
	assert.NotNil(t, d.AlertFn)
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_KEY", "custom")
	assert.Equal(t, "custom", envOrDefault("TEST_KEY", "fallback"))

	t.Setenv("TEST_KEY", "")
	assert.Equal(t, "fallback", envOrDefault("TEST_KEY", "fallback"))
}
