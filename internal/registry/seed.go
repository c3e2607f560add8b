package registry

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"triggerBot/internal/ports"
)

// seedFlags picks up the optional "active" field of a seed entry.
type seedFlags struct {
	Active *bool `json:"active"`
}

// ReadSeedFile parses a JSON array of targets. Entries without an "active"
// field take defaultActive.
func ReadSeedFile(path string, defaultActive bool) ([]NewTargetParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	var params []NewTargetParams
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %v: %w", path, err, ports.ErrInvalidRequest)
	}
	var flags []seedFlags
	if err := json.Unmarshal(data, &flags); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %v: %w", path, err, ports.ErrInvalidRequest)
	}

	for i := range params {
		params[i].Active = defaultActive
		if flags[i].Active != nil {
			params[i].Active = *flags[i].Active
		}
	}
	return params, nil
}

// Seed adds the targets of a seed file when the registry is empty, so that a
// restart with persisted targets does not duplicate them. It returns the number added.
func (r *Registry) Seed(ctx context.Context, path string, defaultActive bool) (int, error) {
	if r.Len() > 0 {
		r.logger.Info(ctx, "Registry already populated, seed file ignored", map[string]interface{}{"path": path})
		return 0, nil
	}
	params, err := ReadSeedFile(path, defaultActive)
	if err != nil {
		return 0, err
	}
	for i, p := range params {
		if _, err := r.Add(ctx, p); err != nil {
			return i, fmt.Errorf("seed entry %d: %w", i, err)
		}
	}
	r.logger.Info(ctx, "Targets seeded", map[string]interface{}{"path": path, "count": len(params)})
	return len(params), nil
}
