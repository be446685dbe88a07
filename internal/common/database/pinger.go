package database

import (
	"context"
	"fmt"
	"sort"
)

// Pinger is anything whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckAll pings every dependency and returns the failures keyed by name.
// A nil pinger is skipped.
func CheckAll(ctx context.Context, deps map[string]Pinger) map[string]error {
	failed := make(map[string]error)
	for name, p := range deps {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			failed[name] = err
		}
	}
	return failed
}

// Summary renders CheckAll failures as a stable string.
func Summary(failed map[string]error) string {
	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)
	out := ""
	for i, name := range names {
		if i > 0 {
			out += "; "
		}
		out += fmt.Sprintf("%s: %v", name, failed[name])
	}
	return out
}
