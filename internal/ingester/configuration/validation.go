package configuration

import (
	"time"

	"github.com/pkg/errors"

	"github.com/Abhishekshelar208/oceanquery/internal/common/oceanerrors"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/qc"
)

const minDateLayout = "2006-01-02"

// Validate checks the parts of the configuration that would otherwise fail
// in confusing ways mid-run. Configuration problems are fatal.
func (c IngesterConfiguration) Validate() error {
	if c.BatchSize <= 0 {
		return errors.WithStack(&oceanerrors.ErrInvalidArgument{
			Name:    "batchSize",
			Value:   c.BatchSize,
			Message: "must be positive",
		})
	}
	if c.MaxWorkers < 0 {
		return errors.WithStack(&oceanerrors.ErrInvalidArgument{
			Name:    "maxWorkers",
			Value:   c.MaxWorkers,
			Message: "must not be negative",
		})
	}
	if c.MaxAttempts <= 0 {
		return errors.WithStack(&oceanerrors.ErrInvalidArgument{
			Name:    "maxAttempts",
			Value:   c.MaxAttempts,
			Message: "must be positive",
		})
	}
	if c.MaxBackoff <= 0 {
		return errors.WithStack(&oceanerrors.ErrInvalidArgument{
			Name:    "maxBackoff",
			Value:   c.MaxBackoff,
			Message: "must be positive",
		})
	}
	for _, flag := range c.Validation.AcceptFlags {
		if len(flag) != 1 || flag[0] < '0' || flag[0] > '9' {
			return errors.WithStack(&oceanerrors.ErrInvalidArgument{
				Name:    "validation.acceptFlags",
				Value:   flag,
				Message: "QC flags are single digits",
			})
		}
	}
	ranges := map[string]RangeConfiguration{
		"validation.temperatureRange": c.Validation.TemperatureRange,
		"validation.salinityRange":    c.Validation.SalinityRange,
		"validation.pressureRange":    c.Validation.PressureRange,
		"validation.oxygenRange":      c.Validation.OxygenRange,
	}
	for name, r := range ranges {
		if r.Min > r.Max {
			return errors.WithStack(&oceanerrors.ErrInvalidArgument{
				Name:    name,
				Value:   r,
				Message: "min exceeds max",
			})
		}
	}
	if c.Validation.MinDate != "" {
		if _, err := time.Parse(minDateLayout, c.Validation.MinDate); err != nil {
			return errors.WithStack(&oceanerrors.ErrInvalidArgument{
				Name:    "validation.minDate",
				Value:   c.Validation.MinDate,
				Message: "not a date in 2006-01-02 form",
			})
		}
	}
	if g := c.Validation.Geo; g != nil {
		if g.MinLatitude > g.MaxLatitude || g.MinLongitude > g.MaxLongitude {
			return errors.WithStack(&oceanerrors.ErrInvalidArgument{
				Name:    "validation.geo",
				Value:   *g,
				Message: "min exceeds max",
			})
		}
	}
	return nil
}

// Policy builds the QC policy the validator applies, starting from the
// defaults and overriding whatever the configuration sets.
func (c IngesterConfiguration) Policy() qc.Policy {
	policy := qc.DefaultPolicy()
	v := c.Validation
	if len(v.AcceptFlags) > 0 {
		policy.AcceptFlags = qc.FlagSet(v.AcceptFlags...)
	}
	if len(v.DataModes) > 0 {
		policy.DataModes = qc.FlagSet(v.DataModes...)
	}
	if v.TemperatureRange != (RangeConfiguration{}) {
		policy.Temperature = qc.Range(v.TemperatureRange)
	}
	if v.SalinityRange != (RangeConfiguration{}) {
		policy.Salinity = qc.Range(v.SalinityRange)
	}
	if v.PressureRange != (RangeConfiguration{}) {
		policy.Pressure = qc.Range(v.PressureRange)
	}
	if v.OxygenRange != (RangeConfiguration{}) {
		policy.Oxygen = qc.Range(v.OxygenRange)
	}
	if v.MinDate != "" {
		if minDate, err := time.Parse(minDateLayout, v.MinDate); err == nil {
			policy.MinDate = minDate
		}
	}
	if v.Geo != nil {
		policy.Geo = &qc.Bounds{
			MinLatitude:  v.Geo.MinLatitude,
			MaxLatitude:  v.Geo.MaxLatitude,
			MinLongitude: v.Geo.MinLongitude,
			MaxLongitude: v.Geo.MaxLongitude,
		}
	}
	return policy
}
