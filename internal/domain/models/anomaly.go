package models

import "github.com/turtacn/aegis/pkg/constants"

// Anomaly is a deviation from the identity's historical behaviour.
type Anomaly struct {
	Type     constants.AnomalyType  `json:"type"`
	Severity constants.Severity     `json:"severity"`
	Detail   map[string]interface{} `json:"detail,omitempty"`
}

// AnomalyTypes lists the types of anomalies, in detection order.
func AnomalyTypes(anomalies []Anomaly) []string {
	out := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		out = append(out, string(a.Type))
	}
	return out
}
