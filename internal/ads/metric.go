package ads

import "time"

// CampaignMetric holds one day of raw performance numbers for a
// campaign. The five raw fields are the source of truth; CTR, CPC, CPM
// and ROAS are always derived, never stored. Upsert key:
// (CampaignID, Date).
type CampaignMetric struct {
	CampaignID  int64
	Date        time.Time
	Impressions int64
	Clicks      int64
	Cost        float64
	Conversions int64
	Revenue     float64
}

// CTR is clicks over impressions, 0 when there were no impressions.
func (m *CampaignMetric) CTR() float64 {
	if m.Impressions == 0 {
		return 0
	}

	return float64(m.Clicks) / float64(m.Impressions)
}

// CPC is cost per click, 0 when there were no clicks.
func (m *CampaignMetric) CPC() float64 {
	if m.Clicks == 0 {
		return 0
	}

	return m.Cost / float64(m.Clicks)
}

// CPM is cost per thousand impressions, 0 when there were no impressions.
func (m *CampaignMetric) CPM() float64 {
	if m.Impressions == 0 {
		return 0
	}

	return m.Cost / float64(m.Impressions) * 1000
}

// ROAS is revenue over cost, 0 when cost is zero.
func (m *CampaignMetric) ROAS() float64 {
	if m.Cost == 0 {
		return 0
	}

	return m.Revenue / m.Cost
}
