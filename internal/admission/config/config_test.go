package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditgate/internal/admission/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	t.Run("preset table", func(t *testing.T) {
		assert.Equal(t, Preset{Limit: 100, Window: time.Minute}, cfg.Preset("default"))
		assert.Equal(t, Preset{Limit: 20, Window: time.Minute}, cfg.Preset("strict"))
		assert.Equal(t, Preset{Limit: 500, Window: time.Minute}, cfg.Preset("relaxed"))
		assert.Equal(t, Preset{Limit: 1000, Window: time.Minute}, cfg.Preset("api"))
		assert.Equal(t, Preset{Limit: 30, Window: time.Minute}, cfg.Preset("screenshot"))
	})

	t.Run("unknown preset falls back to default", func(t *testing.T) {
		assert.Equal(t, cfg.Preset("default"), cfg.Preset("no-such-preset"))
	})

	t.Run("tier caps", func(t *testing.T) {
		assert.Equal(t, 1000, cfg.TokenLimit(models.TierFree))
		assert.Equal(t, 8000, cfg.TokenLimit(models.TierUser))
		assert.Equal(t, 25000, cfg.TokenLimit(models.TierTeam))
		assert.Equal(t, models.UnlimitedTokens, cfg.TokenLimit(models.TierEnterprise))
	})

	t.Run("unknown tier defaults to free cap", func(t *testing.T) {
		assert.Equal(t, 1000, cfg.TokenLimit(models.Tier("platinum")))
	})

	t.Run("operation costs", func(t *testing.T) {
		want := map[string]int{
			models.OpScreenshot:         10,
			models.OpLighthouseAudit:    50,
			models.OpConsoleLog:         1,
			models.OpNetworkLog:         1,
			models.OpTriageReport:       100,
			models.OpAccessibilityAudit: 30,
			models.OpPerformanceAudit:   30,
			models.OpSEOAudit:           30,
			models.OpBestPracticesAudit: 30,
			models.OpElementInspection:  5,
			models.OpJSExecution:        20,
		}
		for op, wantCost := range want {
			cost, ok := cfg.Cost(op)
			assert.True(t, ok, op)
			assert.Equal(t, wantCost, cost, op)
		}

		_, ok := cfg.Cost("videoCapture")
		assert.False(t, ok)
	})
}

func TestValidate(t *testing.T) {
	t.Run("zero cost rejected", func(t *testing.T) {
		cfg := Default()
		cfg.OperationCosts["screenshot"] = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative tier limit other than -1 rejected", func(t *testing.T) {
		cfg := Default()
		cfg.TierLimits[models.TierTeam] = -5
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing default preset rejected", func(t *testing.T) {
		cfg := Default()
		delete(cfg.Presets, "default")
		assert.Error(t, cfg.Validate())
	})

	t.Run("empty cost table rejected", func(t *testing.T) {
		cfg := Default()
		cfg.OperationCosts = nil
		assert.Error(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	t.Run("overlays file values on defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "admission.yaml")
		content := `
presets:
  api:
    limit: 2000
    window: 30s
tier_limits:
  team: 50000
operation_costs:
  screenshot: 15
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, Preset{Limit: 2000, Window: 30 * time.Second}, cfg.Preset("api"))
		assert.Equal(t, 50000, cfg.TokenLimit(models.TierTeam))
		cost, _ := cfg.Cost(models.OpScreenshot)
		assert.Equal(t, 15, cost)

		// Untouched defaults survive
		assert.Equal(t, Preset{Limit: 20, Window: time.Minute}, cfg.Preset("strict"))
		assert.Equal(t, 1000, cfg.TokenLimit(models.TierFree))
	})

	t.Run("invalid window rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "admission.yaml")
		require.NoError(t, os.WriteFile(path, []byte("presets:\n  api:\n    limit: 10\n    window: soon\n"), 0o600))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("file overriding cost to zero rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "admission.yaml")
		require.NoError(t, os.WriteFile(path, []byte("operation_costs:\n  screenshot: 0\n"), 0o600))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
