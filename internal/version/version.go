// Package version holds build metadata, set at link time:
//
//	go build -ldflags "-X github.com/rickgao/orderstats/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/orderstats/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/orderstats/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	         ./cmd/reconciler
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build metadata as reported by the status server.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
}

// String returns a one-line description, e.g. "1.0.0 (abc1234) built 2024-12-05T03:00:00Z".
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
