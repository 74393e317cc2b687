package dashboard

import (
	"encoding/json"
	"fmt"

	"github.com/robfig/cron/v3"
)

// freshnessFallback maps the named freshness tiers spec.md §6.5 enumerates
// to a concrete UTC cron schedule, used when Spec.Freshness isn't already a
// valid cron expression.
var freshnessFallback = map[string]string{
	"15min": "*/15 * * * *",
	"30min": "*/30 * * * *",
	"1h":    "0 * * * *",
	"2h":    "0 */2 * * *",
	"4h":    "0 */4 * * *",
	"6h":    "0 */6 * * *",
	"12h":   "0 */12 * * *",
	"1day":  "0 0 * * *",
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ResolveCron turns a Spec's Freshness field into a validated cron_utc
// string: a direct pass-through if it already parses as a cron expression,
// otherwise a lookup in freshnessFallback.
func ResolveCron(freshness string) (string, error) {
	if _, err := cronParser.Parse(freshness); err == nil {
		return freshness, nil
	}
	cronExpr, ok := freshnessFallback[freshness]
	if !ok {
		return "", fmt.Errorf("dashboard: unrecognized freshness %q", freshness)
	}
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return "", fmt.Errorf("dashboard: invalid fallback cron for %q: %w", freshness, err)
	}
	return cronExpr, nil
}

// Manifest is the top-level descriptor staged alongside each published
// version: manifest.json names the entry file and lists panel files.
type Manifest struct {
	Name      string   `json:"name"`
	SpecHash  string   `json:"spec_hash"`
	CronUTC   string   `json:"cron_utc"`
	Entry     string   `json:"entry"`
	Panels    []string `json:"panels"`
}

// StageLayout computes the stage paths a published version writes under
// @DASH_APPS/<name>/<hash>/ (spec.md §6.5): manifest.json, app.entry, and
// one panels/<id>.json per panel.
func StageLayout(root, name, specHash string, spec Spec) (manifestPath string, files map[string][]byte, err error) {
	cronUTC, err := ResolveCron(spec.Freshness)
	if err != nil {
		return "", nil, err
	}

	base := fmt.Sprintf("%s/%s/%s", root, name, specHash)
	panelNames := make([]string, 0, len(spec.Panels))
	files = make(map[string][]byte)

	for _, p := range spec.Panels {
		panelPath := fmt.Sprintf("panels/%s.json", p.ID)
		b, merr := json.Marshal(p)
		if merr != nil {
			return "", nil, merr
		}
		files[base+"/"+panelPath] = b
		panelNames = append(panelNames, panelPath)
	}

	manifest := Manifest{
		Name:     name,
		SpecHash: specHash,
		CronUTC:  cronUTC,
		Entry:    "app.entry",
		Panels:   panelNames,
	}
	manifestBytes, merr := json.MarshalIndent(manifest, "", "  ")
	if merr != nil {
		return "", nil, merr
	}
	manifestPath = base + "/manifest.json"
	files[manifestPath] = manifestBytes
	files[base+"/app.entry"] = []byte(renderEntry(name, spec))

	return manifestPath, files, nil
}

func renderEntry(name string, spec Spec) string {
	return fmt.Sprintf("# %s\n# %s\n# panel_count=%d\n", name, spec.Description, len(spec.Panels))
}
