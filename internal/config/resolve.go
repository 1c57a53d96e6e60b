package config

import "github.com/nntpcore/newsd/internal/wildmat"

// ResolveMaxBytes resolves the max-article-size setting for group:
// explicit group setting, then longest-match pattern, else the global
// default (spec.md §4.F.2).
func (c *Config) ResolveMaxBytes(group string) int64 {
	if v, ok := c.Groups.MaxBytesByGroup[group]; ok {
		return v
	}
	if v, ok := longestPatternMatch(group, c.Groups.MaxBytesByPattern); ok {
		return v
	}
	return c.Groups.DefaultMaxBytes
}

// ResolveRetentionSeconds resolves the retention window for group the
// same way (spec.md §4.K); 0 disables purge_group_before for that group.
func (c *Config) ResolveRetentionSeconds(group string) int64 {
	if v, ok := c.Groups.RetentionByGroup[group]; ok {
		return v
	}
	if v, ok := longestPatternMatch(group, c.Groups.RetentionByPattern); ok {
		return v
	}
	return c.Groups.DefaultRetention
}

func longestPatternMatch(group string, patterns []GroupPattern) (int64, bool) {
	best := -1
	var bestValue int64
	found := false
	for _, p := range patterns {
		if !wildmat.Match(group, p.Pattern) {
			continue
		}
		if len(p.Pattern) > best {
			best = len(p.Pattern)
			bestValue = p.Value
			found = true
		}
	}
	return bestValue, found
}
