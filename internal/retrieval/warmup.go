package retrieval

import (
	"context"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// warmupFile is the YAML shape of WarmupQueriesPath (§C.3): a small list of
// typical queries to run against the Service before real traffic arrives.
type warmupFile struct {
	Queries []string `yaml:"queries"`
}

// Warmup executes the configured "typical queries" against the Service in
// a background goroutine so cold caches are primed before real traffic
// arrives, without ever blocking process startup or the HTTP listener
// (spec.md §4.4's warmup guarantee).
func Warmup(ctx context.Context, svc *Service, queriesPath string) {
	if queriesPath == "" {
		return
	}
	queries, err := readQueries(queriesPath)
	if err != nil || len(queries) == 0 {
		return
	}
	go func() {
		for _, q := range queries {
			if ctx.Err() != nil {
				return
			}
			_, _ = svc.Context(ctx, q, "", nil)
		}
	}()
}

func readQueries(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wf warmupFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(wf.Queries))
	for _, q := range wf.Queries {
		if q != "" {
			out = append(out, q)
		}
	}
	return out, nil
}
