package obs

import "github.com/prometheus/client_golang/prometheus"

// Build metadata, stamped by the linker at release time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata exposed as constant labels.",
	},
	[]string{"version", "commit", "date"},
)

// InitBuildInfo registers and sets the build_info gauge.
func InitBuildInfo() {
	prometheus.MustRegister(buildInfo)
	buildInfo.WithLabelValues(Version, Commit, Date).Set(1)
}
