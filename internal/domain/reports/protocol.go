package reports

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Output fields of the engine contract.
const (
	fieldTotalScore      = "totalEsgScore"
	fieldAIAnalysis      = "aiAnalysis"
	fieldRecommendations = "recommendations"
	fieldEngineError     = "error"
)

// EncodeRequest renders the engine input: a single JSON object holding
// companyName, industry and every metric at the top level. Keys are sorted so
// the same request always encodes to the same bytes.
func EncodeRequest(req AnalysisRequest) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(req.metrics) > 0 {
		if err := json.Unmarshal(req.metrics, &fields); err != nil {
			return nil, &ValidationError{Problems: []string{"metrics must be a JSON object"}}
		}
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}

	name, err := json.Marshal(req.companyName)
	if err != nil {
		return nil, err
	}
	industry, err := json.Marshal(req.industry)
	if err != nil {
		return nil, err
	}
	fields[fieldCompanyName] = name
	fields[fieldIndustry] = industry

	return json.Marshal(fields)
}

// DecodeResult parses exactly one JSON object from raw engine output. The
// object must carry a numeric totalEsgScore and a non-null recommendations
// payload (aiAnalysis, or recommendations). Other fields are kept in Extra.
func DecodeResult(raw []byte) (AnalysisResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return AnalysisResult{}, &DecodeError{Reason: "engine produced no output"}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var doc map[string]json.RawMessage
	if err := dec.Decode(&doc); err != nil {
		return AnalysisResult{}, &DecodeError{Reason: "output is not a JSON object", Err: err}
	}
	if doc == nil {
		return AnalysisResult{}, &DecodeError{Reason: "output is not a JSON object"}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return AnalysisResult{}, &DecodeError{Reason: "output holds more than one JSON document"}
	}

	scoreRaw, hasScore := doc[fieldTotalScore]
	if !hasScore {
		if msg := engineErrorMessage(doc); msg != "" {
			return AnalysisResult{}, &DecodeError{Reason: "engine reported error: " + msg}
		}
		return AnalysisResult{}, &DecodeError{Reason: "missing " + fieldTotalScore}
	}
	if isNull(scoreRaw) {
		return AnalysisResult{}, &DecodeError{Reason: fieldTotalScore + " is null"}
	}
	var score float64
	if err := json.Unmarshal(scoreRaw, &score); err != nil {
		return AnalysisResult{}, &DecodeError{Reason: fieldTotalScore + " is not a number", Err: err}
	}

	recKey := fieldAIAnalysis
	recRaw, hasRec := doc[recKey]
	if !hasRec {
		recKey = fieldRecommendations
		recRaw, hasRec = doc[recKey]
	}
	if !hasRec {
		return AnalysisResult{}, &DecodeError{Reason: "missing " + fieldAIAnalysis}
	}
	if isNull(recRaw) {
		return AnalysisResult{}, &DecodeError{Reason: recKey + " is null"}
	}

	var rec bytes.Buffer
	if err := json.Compact(&rec, recRaw); err != nil {
		return AnalysisResult{}, &DecodeError{Reason: recKey + " is malformed", Err: err}
	}

	delete(doc, fieldTotalScore)
	delete(doc, recKey)
	var extra map[string]json.RawMessage
	if len(doc) > 0 {
		extra = doc
	}

	return AnalysisResult{
		TotalEsgScore:   score,
		Recommendations: rec.Bytes(),
		Extra:           extra,
	}, nil
}

func engineErrorMessage(doc map[string]json.RawMessage) string {
	raw, ok := doc[fieldEngineError]
	if !ok {
		return ""
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return strings.TrimSpace(msg)
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
