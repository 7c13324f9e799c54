package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Handler serves the collector in the Prometheus text format.
func Handler(c *Collector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		typed := map[string]bool{}
		for _, m := range c.GetMetrics() {
			if !typed[m.Name] {
				fmt.Fprintf(w, "# TYPE %s %s\n", m.Name, promType(m.Type))
				typed[m.Name] = true
			}
			labels := formatLabels(m.Labels)
			switch m.Type {
			case Histogram, Timer:
				fmt.Fprintf(w, "%s_sum%s %g\n", m.Name, labels, m.Value)
				fmt.Fprintf(w, "%s_count%s %d\n", m.Name, labels, m.Count)
			default:
				fmt.Fprintf(w, "%s%s %g\n", m.Name, labels, m.Value)
			}
		}
	})
}

func promType(t MetricType) string {
	switch t {
	case Histogram, Timer:
		return "summary"
	default:
		return string(t)
	}
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, v))
	}
	sort.Strings(pairs)
	return "{" + strings.Join(pairs, ",") + "}"
}
