package inequality

import (
	"encoding/json"

	"goequity/domain/core"
)

// Results legitimately contain NaN and ±Inf (relative change against a zero
// comparator), which encoding/json rejects. The types below marshal through
// core.Float.

type metricsJSON struct {
	AD core.Float `json:"ad"`
	IG core.Float `json:"ig"`
}

func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(metricsJSON{AD: core.Float(m.AD), IG: core.Float(m.IG)})
}

func (m *Metrics) UnmarshalJSON(data []byte) error {
	var raw metricsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Metrics{AD: float64(raw.AD), IG: float64(raw.IG)}
	return nil
}

type impactJSON struct {
	AbsoluteAD core.Float `json:"ad_absolute_change"`
	RelativeAD core.Float `json:"ad_relative_change"`
	AbsoluteIG core.Float `json:"ig_absolute_change"`
	RelativeIG core.Float `json:"ig_relative_change"`
}

func (i Impact) MarshalJSON() ([]byte, error) {
	return json.Marshal(impactJSON{
		AbsoluteAD: core.Float(i.AbsoluteAD),
		RelativeAD: core.Float(i.RelativeAD),
		AbsoluteIG: core.Float(i.AbsoluteIG),
		RelativeIG: core.Float(i.RelativeIG),
	})
}

func (i *Impact) UnmarshalJSON(data []byte) error {
	var raw impactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = Impact{
		AbsoluteAD: float64(raw.AbsoluteAD),
		RelativeAD: float64(raw.RelativeAD),
		AbsoluteIG: float64(raw.AbsoluteIG),
		RelativeIG: float64(raw.RelativeIG),
	}
	return nil
}

type summaryJSON struct {
	Mean   core.Float `json:"mean"`
	Lower  core.Float `json:"lower"`
	Upper  core.Float `json:"upper"`
	StdDev core.Float `json:"std_dev"`
	N      int        `json:"n"`
}

func (s SummaryStatistic) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryJSON{
		Mean:   core.Float(s.Mean),
		Lower:  core.Float(s.Lower),
		Upper:  core.Float(s.Upper),
		StdDev: core.Float(s.StdDev),
		N:      s.N,
	})
}

func (s *SummaryStatistic) UnmarshalJSON(data []byte) error {
	var raw summaryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SummaryStatistic{
		Mean:   float64(raw.Mean),
		Lower:  float64(raw.Lower),
		Upper:  float64(raw.Upper),
		StdDev: float64(raw.StdDev),
		N:      raw.N,
	}
	return nil
}

func (h HealthDistribution) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("null"), nil
	}
	out := make([]core.Float, len(h))
	for i, v := range h {
		out[i] = core.Float(v)
	}
	return json.Marshal(out)
}

func (h *HealthDistribution) UnmarshalJSON(data []byte) error {
	var raw []core.Float
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*h = nil
		return nil
	}
	out := make(HealthDistribution, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	*h = out
	return nil
}
