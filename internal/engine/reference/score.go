// Package reference is a heuristic ESG scorer that speaks the engine
// process contract. It exists for local runs and tests; production
// deployments point the engine command at the trained model instead.
package reference

import (
	"encoding/json"
	"fmt"
	"math"
)

// Input is the flat document the service writes to the engine's stdin.
type Input struct {
	CompanyName       string   `json:"companyName"`
	Industry          string   `json:"industry"`
	Revenue           float64  `json:"revenue"`
	TotalEmployees    float64  `json:"total_employees"`
	EnergyKWh         float64  `json:"energy_kwh"`
	RenewableKWh      float64  `json:"renewable_kwh"`
	WaterLiters       float64  `json:"water_liters"`
	WasteKg           float64  `json:"waste_kg"`
	RecycledKg        float64  `json:"recycled_kg"`
	FemaleEmployees   float64  `json:"female_employees"`
	DisabledEmployees float64  `json:"disabled_employees"`
	Accidents         float64  `json:"accidents"`
	TrainedCount      float64  `json:"trained_count"`
	Complaints        float64  `json:"complaints"`
	Committee         string   `json:"committee"`
	Fines             float64  `json:"fines"`
	Policies          []string `json:"policies"`
}

// Pillars are the per-pillar scores, each on a 0..100 scale.
type Pillars struct {
	Environmental float64 `json:"environmental"`
	Social        float64 `json:"social"`
	Governance    float64 `json:"governance"`
}

// Output is printed on stdout.
type Output struct {
	TotalEsgScore float64  `json:"totalEsgScore"`
	AIAnalysis    []string `json:"aiAnalysis"`
	Scores        Pillars  `json:"scores"`
}

type weights struct{ e, s, g float64 }

func weightsFor(industry string) weights {
	switch industry {
	case "Cement/Steel", "Pharma":
		return weights{0.6, 0.2, 0.2}
	case "IT/Services":
		return weights{0.2, 0.5, 0.3}
	default:
		return weights{0.4, 0.3, 0.3}
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// energyBenchmark is the expected consumption for a company of this size.
func energyBenchmark(revenue float64) float64 {
	return math.Max(1, revenue*0.005)
}

// Score computes the weighted total and recommendations.
func Score(in Input) Output {
	var recs []string
	var p Pillars

	// environmental
	{
		predicted := energyBenchmark(in.Revenue)
		actual := math.Max(1, in.EnergyKWh)
		score := 0.0
		if actual <= predicted {
			score += 50
		} else {
			excess := (actual - predicted) / predicted
			score += math.Max(0, 50*(1-excess))
			if excess > 0.2 {
				recs = append(recs, fmt.Sprintf("High Energy Usage: %d%% above industry standard.", int(excess*100)))
			}
		}
		renewablePct := in.RenewableKWh / actual * 100
		score += math.Min(30, renewablePct/30*30)
		score += in.RecycledKg / math.Max(1, in.WasteKg) * 20
		p.Environmental = round2(score)
	}

	// social
	{
		employees := math.Max(1, in.TotalEmployees)
		score := math.Min(40, in.FemaleEmployees/employees*100)
		if in.Accidents == 0 {
			score += 30
		} else {
			recs = append(recs, "CRITICAL: Safety accidents reported. Immediate audit required.")
		}
		trainedPct := in.TrainedCount / employees * 100
		score += math.Min(30, trainedPct/50*30)
		p.Social = round2(score)
	}

	// governance
	{
		score := math.Min(50, float64(len(in.Policies))*15)
		if in.Fines == 0 {
			score += 30
		} else {
			recs = append(recs, "Compliance Alert: Regulatory fines detected.")
		}
		if in.Committee == "Yes" {
			score += 20
		}
		p.Governance = round2(score)
	}

	w := weightsFor(in.Industry)
	total := (p.Environmental*w.e + p.Social*w.s + p.Governance*w.g) / (w.e + w.s + w.g)

	if len(recs) == 0 {
		recs = append(recs, "Excellent compliance record.")
	}
	recs = append(recs, "Focus on increasing renewable energy ratio for better results.")

	return Output{TotalEsgScore: round2(total), AIAnalysis: recs, Scores: p}
}

// Run decodes one input document and encodes the result.
func Run(input []byte) ([]byte, error) {
	var in Input
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	return json.Marshal(Score(in))
}
