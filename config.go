package herisson

import (
	"strconv"
	"strings"
)

// Params is a flat key-value view of one configuration bucket.
type Params map[string]string

// ParseParams parses a comma-separated k=v list into a map. Empty tokens are
// skipped with an info log, tokens that do not split into exactly key and
// value are skipped with an error log.
func ParseParams(s string) Params {
	p := make(Params)
	for _, tok := range strings.Split(s, ",") {
		if tok == "" {
			logger.Info("skipping empty configuration token")
			continue
		}
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" || strings.Contains(v, "=") {
			logger.Error("malformed configuration token", "token", tok)
			continue
		}
		p[k] = v
	}
	return p
}

// Get returns the value for key, or def when absent.
func (p Params) Get(key, def string) string {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int returns the integer value for key, or def when absent or unparsable.
func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Error("configuration value is not an integer", "key", key, "value", v)
		return def
	}
	return n
}

// ModuleConfig is the result of splitting a flat configuration string:
// the module's own parameters plus one bucket per declared pin, in
// declaration order. Buckets keep the original comma-joined form with the
// delimiter token first.
type ModuleConfig struct {
	Module  string
	Inputs  []string
	Outputs []string
}

// Pin-bucket delimiter keys. A token with one of these keys opens a new
// input or output bucket; the token itself belongs to the bucket it opens.
const (
	inputDelimiterKey  = "in_type"
	outputDelimiterKey = "out_type"
)

// SplitConfig tokenises a flat comma-separated configuration string into the
// module bucket and interleaved input/output pin buckets. Tokens before the
// first delimiter belong to the module; each in_type=/out_type= token starts
// a new bucket which collects every following token until the next delimiter.
//
// Empty tokens are skipped with an info log; tokens that are not exactly
// key=value are skipped with an error log. A token arriving while no bucket
// is active fails with ErrConfigNoTarget; as the module bucket is active from
// the start, that path is guarded only for defence.
func SplitConfig(config string) (ModuleConfig, error) {
	var cfg ModuleConfig
	active := &cfg.Module

	for _, tok := range strings.Split(config, ",") {
		if tok == "" {
			logger.Info("skipping empty configuration token")
			continue
		}
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" || strings.Contains(v, "=") {
			logger.Error("skipping malformed configuration token", "token", tok)
			continue
		}

		switch k {
		case inputDelimiterKey:
			cfg.Inputs = append(cfg.Inputs, "")
			active = &cfg.Inputs[len(cfg.Inputs)-1]
		case outputDelimiterKey:
			cfg.Outputs = append(cfg.Outputs, "")
			active = &cfg.Outputs[len(cfg.Outputs)-1]
		}

		if active == nil {
			return ModuleConfig{}, ErrConfigNoTarget
		}
		if *active == "" {
			*active = tok
		} else {
			*active += "," + tok
		}
	}

	return cfg, nil
}
