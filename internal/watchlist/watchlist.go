// Package watchlist loads and saves the JSON list of monitored pairs.
package watchlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"

	"price-move-alerts/internal/faults"
	"price-move-alerts/internal/market"
)

// ErrCorrupt marks a file that cannot be parsed as a JSON list at all.
var ErrCorrupt = errors.New("watchlist file is corrupt")

// maxLookbackSeconds is the longest lookback a time.Duration can hold.
const maxLookbackSeconds = float64(math.MaxInt64 / int64(time.Second))

// Entry is one monitored pair as stored on disk.
type Entry struct {
	Pair             string  `json:"pair"`
	LookbackSeconds  float64 `json:"lookbackSeconds"`
	UpThresholdPct   float64 `json:"upThresholdPct"`
	DownThresholdPct float64 `json:"downThresholdPct"`
	Enabled          *bool   `json:"enabled,omitempty"`
	AlertOnUp        *bool   `json:"alertOnUp,omitempty"`
	AlertOnDown      *bool   `json:"alertOnDown,omitempty"`
}

// Lookback returns the lookback as a duration.
func (e Entry) Lookback() time.Duration {
	return time.Duration(e.LookbackSeconds * float64(time.Second))
}

// WindowConfig converts the entry into the detector's configuration.
func (e Entry) WindowConfig() market.WindowConfig {
	return market.WindowConfig{
		Pair:        e.Pair,
		Lookback:    e.Lookback(),
		UpPct:       decimal.NewFromFloat(e.UpThresholdPct),
		DownPct:     decimal.NewFromFloat(e.DownThresholdPct),
		Enabled:     boolOr(e.Enabled, true),
		AlertOnUp:   boolOr(e.AlertOnUp, true),
		AlertOnDown: boolOr(e.AlertOnDown, true),
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Result holds accepted entries and the entries rejected individually.
type Result struct {
	Entries  []Entry
	Rejected []*faults.ConfigValidationFault
}

// WindowConfigs converts accepted entries, skipping disabled ones.
func (r Result) WindowConfigs() []market.WindowConfig {
	out := make([]market.WindowConfig, 0, len(r.Entries))
	for _, e := range r.Entries {
		cfg := e.WindowConfig()
		if !cfg.Enabled {
			continue
		}
		out = append(out, cfg)
	}
	return out
}

// Load reads a watchlist file.
func Load(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read watchlist: %w", err)
	}
	res, err := Parse(data)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

// Parse decodes a watchlist document. Only a document that is not a JSON list
// fails as a whole; every malformed entry is rejected on its own.
func Parse(data []byte) (Result, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var res Result
	seen := make(map[string]bool, len(raw))
	for i, item := range raw {
		entry, fault := decodeEntry(i, item)
		if fault == nil && seen[entry.Pair] {
			fault = &faults.ConfigValidationFault{Index: i, Pair: entry.Pair, Field: "pair", Reason: "is duplicated"}
		}
		if fault != nil {
			res.Rejected = append(res.Rejected, fault)
			continue
		}
		seen[entry.Pair] = true
		res.Entries = append(res.Entries, entry)
	}
	return res, nil
}

func decodeEntry(index int, item json.RawMessage) (Entry, *faults.ConfigValidationFault) {
	var fields map[string]any
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return Entry{}, &faults.ConfigValidationFault{Index: index, Reason: "entry is not a JSON object"}
	}

	var entry Entry
	fault := func(field, reason string) *faults.ConfigValidationFault {
		return &faults.ConfigValidationFault{Index: index, Pair: entry.Pair, Field: field, Reason: reason}
	}

	if ok, err := decodeField(fields, "pair", &entry.Pair); err != nil {
		return Entry{}, fault("pair", "must be a string")
	} else if !ok || strings.TrimSpace(entry.Pair) == "" {
		return Entry{}, fault("pair", "is required")
	}
	entry.Pair = strings.ToUpper(strings.TrimSpace(entry.Pair))

	numeric := []struct {
		name string
		dst  *float64
	}{
		{"lookbackSeconds", &entry.LookbackSeconds},
		{"upThresholdPct", &entry.UpThresholdPct},
		{"downThresholdPct", &entry.DownThresholdPct},
	}
	for _, f := range numeric {
		ok, err := decodeField(fields, f.name, f.dst)
		switch {
		case err != nil:
			return Entry{}, fault(f.name, "must be a number")
		case !ok:
			return Entry{}, fault(f.name, "is required")
		case math.IsNaN(*f.dst) || math.IsInf(*f.dst, 0) || *f.dst <= 0:
			return Entry{}, fault(f.name, fmt.Sprintf("must be greater than zero, got %v", *f.dst))
		}
	}
	if entry.LookbackSeconds > maxLookbackSeconds || entry.Lookback() <= 0 {
		return Entry{}, fault("lookbackSeconds", fmt.Sprintf("must be between 1ns and %.0f seconds, got %v", maxLookbackSeconds, entry.LookbackSeconds))
	}

	switches := []struct {
		name string
		dst  **bool
	}{
		{"enabled", &entry.Enabled},
		{"alertOnUp", &entry.AlertOnUp},
		{"alertOnDown", &entry.AlertOnDown},
	}
	for _, f := range switches {
		var v bool
		ok, err := decodeField(fields, f.name, &v)
		if err != nil {
			return Entry{}, fault(f.name, "must be a boolean")
		}
		if ok {
			*f.dst = &v
		}
	}

	return entry, nil
}

// decodeField decodes fields[key] into dst without weak typing.
func decodeField[T any](fields map[string]any, key string, dst *T) (bool, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return false, nil
	}
	if err := mapstructure.Decode(v, dst); err != nil {
		return true, err
	}
	return true, nil
}

// Save writes entries as an indented JSON list, replacing the file atomically.
func Save(path string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	body, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal watchlist: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create watchlist dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(body, '\n'), 0o644); err != nil {
		return fmt.Errorf("write watchlist: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace watchlist: %w", err)
	}
	return nil
}

// Uniform builds entries that share one set of thresholds.
func Uniform(pairs []string, lookback time.Duration, upPct, downPct float64, alertUp, alertDown bool) []Entry {
	entries := make([]Entry, 0, len(pairs))
	for _, pair := range pairs {
		enabled, up, down := true, alertUp, alertDown
		entries = append(entries, Entry{
			Pair:             pair,
			LookbackSeconds:  lookback.Seconds(),
			UpThresholdPct:   upPct,
			DownThresholdPct: downPct,
			Enabled:          &enabled,
			AlertOnUp:        &up,
			AlertOnDown:      &down,
		})
	}
	return entries
}
