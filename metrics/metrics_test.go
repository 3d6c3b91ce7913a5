package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistration(t *testing.T) {
	assert.NotNil(t, SettingsSaved)
	assert.NotNil(t, SettingsSideEffectFailures)
	assert.NotNil(t, SessionDisconnects)
	assert.NotNil(t, AdminsDeleted)
	assert.NotNil(t, TestMails)
	assert.NotNil(t, TokensIssued)
	assert.NotNil(t, HTTPRequestDuration)
}

func TestCounterVecLabels(t *testing.T) {
	before := testutil.ToFloat64(SessionDisconnects.WithLabelValues("failed"))
	SessionDisconnects.WithLabelValues("failed").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SessionDisconnects.WithLabelValues("failed")))
}
