package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhishekshelar208/oceanquery/internal/common/oceanerrors"
)

func validConfig() IngesterConfiguration {
	return IngesterConfiguration{
		InputDirectory: "/data",
		BatchSize:      2000,
		MaxWorkers:     4,
		MaxAttempts:    10,
		MaxBackoff:     60,
		Validation: ValidationConfiguration{
			AcceptFlags:      []string{"1", "2", "3"},
			TemperatureRange: RangeConfiguration{Min: -5, Max: 40},
			SalinityRange:    RangeConfiguration{Min: 0, Max: 45},
			PressureRange:    RangeConfiguration{Min: -10, Max: 12000},
			OxygenRange:      RangeConfiguration{Min: 0, Max: 1000},
			MinDate:          "1990-01-01",
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := map[string]func(*IngesterConfiguration){
		"zero batch size":     func(c *IngesterConfiguration) { c.BatchSize = 0 },
		"negative workers":    func(c *IngesterConfiguration) { c.MaxWorkers = -1 },
		"zero attempts":       func(c *IngesterConfiguration) { c.MaxAttempts = 0 },
		"zero backoff":        func(c *IngesterConfiguration) { c.MaxBackoff = 0 },
		"multi-char flag":     func(c *IngesterConfiguration) { c.Validation.AcceptFlags = []string{"12"} },
		"non-digit flag":      func(c *IngesterConfiguration) { c.Validation.AcceptFlags = []string{"x"} },
		"inverted range":      func(c *IngesterConfiguration) { c.Validation.TemperatureRange = RangeConfiguration{Min: 40, Max: -5} },
		"unparseable minDate": func(c *IngesterConfiguration) { c.Validation.MinDate = "Jan 1 1990" },
		"inverted geo box": func(c *IngesterConfiguration) {
			c.Validation.Geo = &GeoConfiguration{MinLatitude: 10, MaxLatitude: -10}
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			config := validConfig()
			mutate(&config)
			err := config.Validate()
			require.Error(t, err)
			var invalid *oceanerrors.ErrInvalidArgument
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestPolicyDefaults(t *testing.T) {
	policy := IngesterConfiguration{}.Policy()
	assert.True(t, policy.AcceptFlags["1"])
	assert.True(t, policy.AcceptFlags["3"])
	assert.False(t, policy.AcceptFlags["4"])
	assert.Empty(t, policy.DataModes)
	assert.Equal(t, 40.0, policy.Temperature.Max)
	assert.Equal(t, time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), policy.MinDate)
	assert.Nil(t, policy.Geo)
}

func TestPolicyOverrides(t *testing.T) {
	config := validConfig()
	config.Validation.AcceptFlags = []string{"1"}
	config.Validation.DataModes = []string{"D"}
	config.Validation.TemperatureRange = RangeConfiguration{Min: 0, Max: 30}
	config.Validation.MinDate = "2000-06-01"
	config.Validation.Geo = &GeoConfiguration{MinLatitude: -10, MaxLatitude: 10, MinLongitude: 100, MaxLongitude: 160}

	policy := config.Policy()
	assert.False(t, policy.AcceptFlags["2"])
	assert.True(t, policy.DataModes["D"])
	assert.Equal(t, 30.0, policy.Temperature.Max)
	assert.Equal(t, time.Date(2000, 6, 1, 0, 0, 0, 0, time.UTC), policy.MinDate)
	require.NotNil(t, policy.Geo)
	assert.Equal(t, 160.0, policy.Geo.MaxLongitude)
}
