package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

const includeKey = "$include"

// Load reads path (YAML, JSON, or JSON5) into a Config, expanding
// environment variables and resolving any $include directives before
// decoding, then overlays environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	raw, err := loadRawRecursive(path, map[string]bool{})
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	merged, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("remarshal config: %w", err)
	}
	if err := yaml.Unmarshal(merged, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadRawRecursive loads a config file into a raw map, following
// $include directives with cycle detection — ported from the
// surrounding example pack's own gateway config loader.
func loadRawRecursive(path string, seen map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[absPath] {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))
	raw, err := parseRawBytes([]byte(expanded), absPath)
	if err != nil {
		return nil, err
	}

	includes := extractIncludes(raw)
	merged := map[string]any{}
	if len(includes) > 0 {
		baseDir := filepath.Dir(absPath)
		for _, inc := range includes {
			if strings.TrimSpace(inc) == "" {
				continue
			}
			incPath := inc
			if !filepath.IsAbs(incPath) {
				incPath = filepath.Join(baseDir, incPath)
			}
			incRaw, err := loadRawRecursive(incPath, seen)
			if err != nil {
				return nil, err
			}
			merged = mergeMaps(merged, incRaw)
		}
	}
	return mergeMaps(merged, raw), nil
}

func parseRawBytes(data []byte, pathHint string) (map[string]any, error) {
	ext := strings.ToLower(filepath.Ext(pathHint))
	raw := map[string]any{}
	var err error
	if ext == ".json" || ext == ".json5" {
		err = json5.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pathHint, err)
	}
	return raw, nil
}

func extractIncludes(raw map[string]any) []string {
	val, ok := raw[includeKey]
	if !ok {
		return nil
	}
	delete(raw, includeKey)
	switch v := val.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func mergeMaps(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		if existing, ok := out[k]; ok {
			if existingMap, ok1 := existing.(map[string]any); ok1 {
				if overlayMap, ok2 := v.(map[string]any); ok2 {
					out[k] = mergeMaps(existingMap, overlayMap)
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

// applyEnvOverrides lets deployment secrets (API keys, DSNs) come from
// the environment without being written to the config file on disk.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SESSIONCORE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SESSIONCORE_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("SESSIONCORE_SEARCH_API_KEY"); v != "" {
		cfg.Search.APIKey = v
		cfg.Search.Enabled = true
	}
}
