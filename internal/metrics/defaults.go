package metrics

import "github.com/san-kum/pidctl/internal/dynamo"

// Defaults returns the metric set recorded for every run. band is the
// settling tolerance in process units.
func Defaults(band float64) []dynamo.Metric {
	return []dynamo.Metric{
		NewIAE(),
		NewISE(),
		NewOvershoot(),
		NewSettlingTime(band),
		NewControlEffort(),
	}
}
