package reference

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/bryanwahyu/esg-analyzer/internal/domain/reports"
)

func TestScorePerfectCompany(t *testing.T) {
	out := Score(Input{
		Industry:        "Retail",
		Revenue:         1_000_000,
		TotalEmployees:  100,
		EnergyKWh:       1000,
		RenewableKWh:    1000,
		WasteKg:         10,
		RecycledKg:      10,
		FemaleEmployees: 50,
		TrainedCount:    100,
		Committee:       "Yes",
		Policies:        []string{"ethics", "safety", "privacy", "climate"},
	})
	if out.Scores != (Pillars{Environmental: 100, Social: 100, Governance: 100}) {
		t.Fatalf("pillars = %+v", out.Scores)
	}
	if out.TotalEsgScore != 100 {
		t.Fatalf("total = %v", out.TotalEsgScore)
	}
}

func TestScoreFlagsRisks(t *testing.T) {
	out := Score(Input{
		Industry:       "Cement/Steel",
		Revenue:        1000,
		TotalEmployees: 10,
		EnergyKWh:      100,
		Accidents:      2,
		Fines:          500,
	})
	joined := strings.Join(out.AIAnalysis, "\n")
	for _, want := range []string{"High Energy Usage", "Safety accidents", "Regulatory fines"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing recommendation %q in %v", want, out.AIAnalysis)
		}
	}
	if out.Scores.Governance != 0 {
		t.Errorf("governance = %v", out.Scores.Governance)
	}
}

func TestIndustryWeights(t *testing.T) {
	if w := weightsFor("IT/Services"); w != (weights{0.2, 0.5, 0.3}) {
		t.Fatalf("IT weights = %+v", w)
	}
	if w := weightsFor("Unknown"); w != (weights{0.4, 0.3, 0.3}) {
		t.Fatalf("default weights = %+v", w)
	}
}

// The reference engine must produce what the service decoder accepts.
func TestRunSpeaksEngineContract(t *testing.T) {
	req := reports.NewAnalysisRequest("Acme", "Manufacturing", []byte(`{"revenue":200000,"energy_kwh":900,"policies":["ethics"]}`))
	input, err := reports.EncodeRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw, err := Run(input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	res, err := reports.DecodeResult(raw)
	if err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	var recs []string
	if err := json.Unmarshal(res.Recommendations, &recs); err != nil || len(recs) == 0 {
		t.Fatalf("recommendations = %s", res.Recommendations)
	}
	if _, ok := res.Extra["scores"]; !ok {
		t.Fatalf("pillar scores should travel as extra fields: %v", res.Extra)
	}
}

func TestRunRejectsGarbage(t *testing.T) {
	if _, err := Run([]byte("nope")); err == nil {
		t.Fatalf("expected error")
	}
}
