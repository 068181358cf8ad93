package reports

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxNameLength = 255

// Keys the engine input document reserves for request identity.
const (
	fieldCompanyName = "companyName"
	fieldIndustry    = "industry"
)

// AnalysisRequest is one inbound submission. Fields are unexported so a
// request cannot change after it is received; Metrics hands out copies.
type AnalysisRequest struct {
	companyName string
	industry    string
	metrics     json.RawMessage
}

// NewAnalysisRequest snapshots the submission. Well-formed metrics are
// stored compacted; anything else is kept verbatim for Validate to reject.
func NewAnalysisRequest(companyName, industry string, metrics []byte) AnalysisRequest {
	req := AnalysisRequest{
		companyName: strings.TrimSpace(companyName),
		industry:    strings.TrimSpace(industry),
	}
	trimmed := bytes.TrimSpace(metrics)
	if len(trimmed) == 0 {
		return req
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err == nil {
		req.metrics = buf.Bytes()
	} else {
		req.metrics = append(json.RawMessage(nil), trimmed...)
	}
	return req
}

func (r AnalysisRequest) CompanyName() string { return r.companyName }
func (r AnalysisRequest) Industry() string    { return r.industry }

// Metrics returns a copy of the metrics snapshot.
func (r AnalysisRequest) Metrics() json.RawMessage {
	if r.metrics == nil {
		return nil
	}
	return append(json.RawMessage(nil), r.metrics...)
}

// Validate checks the request shape and the metrics bag against policy.
func (r AnalysisRequest) Validate(policy *MetricPolicy) error {
	if policy == nil {
		policy = DefaultMetricPolicy()
	}
	var problems []string

	problems = append(problems, checkName("companyName", r.companyName)...)
	problems = append(problems, checkName("industry", r.industry)...)

	values, err := r.metricValues()
	switch {
	case err != nil:
		problems = append(problems, err.Error())
	default:
		for _, k := range []string{fieldCompanyName, fieldIndustry} {
			if _, ok := values[k]; ok {
				problems = append(problems, fmt.Sprintf("metric key %q is reserved", k))
			}
		}
		problems = append(problems, policy.Check(values)...)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (r AnalysisRequest) metricValues() (map[string]any, error) {
	if len(r.metrics) == 0 || string(r.metrics) == "null" {
		return nil, fmt.Errorf("metrics is required")
	}
	var values map[string]any
	if err := json.Unmarshal(r.metrics, &values); err != nil {
		var typeErr *json.UnmarshalTypeError
		var syntaxErr *json.SyntaxError
		switch {
		case errors.As(err, &typeErr) && strings.HasPrefix(typeErr.Value, "number"):
			return nil, fmt.Errorf("metrics contains a %s that does not fit a float64", typeErr.Value)
		case errors.As(err, &syntaxErr):
			return nil, fmt.Errorf("metrics is not valid JSON: %v", err)
		}
		return nil, fmt.Errorf("metrics must be a JSON object")
	}
	return values, nil
}

func checkName(field, v string) []string {
	switch {
	case v == "":
		return []string{field + " is required"}
	case utf8.RuneCountInString(v) > maxNameLength:
		return []string{fmt.Sprintf("%s must be at most %d characters", field, maxNameLength)}
	case strings.ContainsRune(v, 0):
		return []string{field + " contains invalid characters"}
	}
	return nil
}
