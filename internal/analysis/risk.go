package analysis

import "strings"

// Checked in order; the first tier with a matching keyword wins.
var riskTiers = []struct {
	level    RiskLevel
	keywords []string
}{
	{RiskHigh, []string{"melanoma", "malignant", "cancer", "basal", "squamous"}},
	{RiskMedium, []string{"keratosis", "nevus", "suspicious", "atypical"}},
}

// ClassifyRisk maps a classifier label to a risk level by case-insensitive
// substring match. Labels matching no tier are low risk.
func ClassifyRisk(label string) RiskLevel {
	lower := strings.ToLower(label)
	for _, tier := range riskTiers {
		for _, keyword := range tier.keywords {
			if strings.Contains(lower, keyword) {
				return tier.level
			}
		}
	}
	return RiskLow
}
