package reports

import (
	"errors"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// Built-in metric keys, the indicator set the analyzer engine reads.
const (
	MetricRevenue           = "revenue"
	MetricTotalEmployees    = "total_employees"
	MetricEnergyKWh         = "energy_kwh"
	MetricRenewableKWh      = "renewable_kwh"
	MetricWaterLiters       = "water_liters"
	MetricWasteKg           = "waste_kg"
	MetricRecycledKg        = "recycled_kg"
	MetricFemaleEmployees   = "female_employees"
	MetricDisabledEmployees = "disabled_employees"
	MetricAccidents         = "accidents"
	MetricTrainedCount      = "trained_count"
	MetricComplaints        = "complaints"
	MetricCommittee         = "committee"
	MetricFines             = "fines"
	MetricPolicies          = "policies"
)

const maxPolicies = 64

func builtinMetricSchemas() map[string]*openapi3.Schema {
	amount := func() *openapi3.Schema { return openapi3.NewFloat64Schema().WithMin(0) }
	count := func() *openapi3.Schema { return openapi3.NewIntegerSchema().WithMin(0) }

	return map[string]*openapi3.Schema{
		MetricRevenue:           amount(),
		MetricTotalEmployees:    count(),
		MetricEnergyKWh:         amount(),
		MetricRenewableKWh:      amount(),
		MetricWaterLiters:       amount(),
		MetricWasteKg:           amount(),
		MetricRecycledKg:        amount(),
		MetricFemaleEmployees:   count(),
		MetricDisabledEmployees: count(),
		MetricAccidents:         count(),
		MetricTrainedCount:      count(),
		MetricComplaints:        count(),
		MetricCommittee:         openapi3.NewStringSchema().WithEnum("Yes", "No"),
		MetricFines:             amount(),
		MetricPolicies: openapi3.NewArraySchema().
			WithItems(openapi3.NewStringSchema().WithMinLength(1)).
			WithMaxItems(maxPolicies),
	}
}

// MetricPolicy is the validated key set wrapped around the metrics bag.
// Extra keys are accepted without a type constraint beyond "not null".
type MetricPolicy struct {
	RejectUnknown bool
	RequireAll    bool

	schemas map[string]*openapi3.Schema
	extra   map[string]bool
}

// NewMetricPolicy builds a policy over the built-in key set plus extraKeys.
func NewMetricPolicy(rejectUnknown, requireAll bool, extraKeys []string) *MetricPolicy {
	p := &MetricPolicy{
		RejectUnknown: rejectUnknown,
		RequireAll:    requireAll,
		schemas:       builtinMetricSchemas(),
		extra:         make(map[string]bool, len(extraKeys)),
	}
	for _, k := range extraKeys {
		if _, builtin := p.schemas[k]; builtin || k == "" {
			continue
		}
		p.extra[k] = true
	}
	return p
}

// DefaultMetricPolicy rejects unknown keys and tolerates missing ones; the
// engine treats an absent indicator as zero.
func DefaultMetricPolicy() *MetricPolicy {
	return NewMetricPolicy(true, false, nil)
}

// Keys returns every accepted key, sorted.
func (p *MetricPolicy) Keys() []string {
	keys := make([]string, 0, len(p.schemas)+len(p.extra))
	for k := range p.schemas {
		keys = append(keys, k)
	}
	for k := range p.extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *MetricPolicy) known(key string) bool {
	_, ok := p.schemas[key]
	return ok || p.extra[key]
}

// Check returns one problem string per offending key, sorted by key.
func (p *MetricPolicy) Check(values map[string]any) []string {
	var problems []string

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := values[k]
		if !p.known(k) {
			if p.RejectUnknown {
				problems = append(problems, fmt.Sprintf("metric %q is not recognised", k))
			}
			continue
		}
		if v == nil {
			problems = append(problems, fmt.Sprintf("metric %q must not be null", k))
			continue
		}
		schema, typed := p.schemas[k]
		if !typed {
			continue
		}
		if err := schema.VisitJSON(v); err != nil {
			problems = append(problems, fmt.Sprintf("metric %q: %s", k, schemaReason(err)))
		}
	}

	if p.RequireAll {
		for _, k := range p.Keys() {
			if _, ok := values[k]; !ok {
				problems = append(problems, fmt.Sprintf("metric %q is required", k))
			}
		}
	}
	return problems
}

func schemaReason(err error) string {
	var se *openapi3.SchemaError
	if errors.As(err, &se) && se.Reason != "" {
		return se.Reason
	}
	return err.Error()
}
