package economy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// filePrizeItem and fileCaseConfig mirror PrizeItem/CaseConfig for YAML
// decoding, keeping the wire shape independent of the Go field names.
type filePrizeItem struct {
	ID             string `yaml:"id"`
	Type           string `yaml:"type"`
	StarCost       *int64 `yaml:"starCost,omitempty"`
	ProbabilityPpm int64  `yaml:"probabilityPpm"`
}

type fileCaseConfig struct {
	ID         string          `yaml:"id"`
	Title      string          `yaml:"title"`
	PriceStars int64           `yaml:"priceStars"`
	Items      []filePrizeItem `yaml:"items"`
}

// LoadCasesFile reads a static case list from a YAML file, for deployments
// small enough to avoid standing up the real economy/case catalog service.
func LoadCasesFile(path string) ([]CaseConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("economy: reading cases file: %w", err)
	}

	var raw []fileCaseConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("economy: parsing cases file: %w", err)
	}

	cases := make([]CaseConfig, 0, len(raw))
	for _, rc := range raw {
		items := make([]PrizeItem, 0, len(rc.Items))
		for _, ri := range rc.Items {
			items = append(items, PrizeItem{
				ID:             ri.ID,
				Type:           PrizeType(ri.Type),
				StarCost:       ri.StarCost,
				ProbabilityPpm: ri.ProbabilityPpm,
			})
		}
		cases = append(cases, CaseConfig{
			ID:         rc.ID,
			Title:      rc.Title,
			PriceStars: rc.PriceStars,
			Items:      items,
		})
	}
	return cases, nil
}
