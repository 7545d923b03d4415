// Package extract normalises tool-specific report fields into the flat metric
// fields of a RunStatus.
package extract

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// Lookup paths, tried in order. The first present, well-typed value wins.
var (
	coveragePaths = [][]string{{"results", "coverage"}, {"results", "coverage_percent"}, {"coverage"}}
	mutationPaths = [][]string{{"results", "mutation_score"}, {"mutation_score"}}
	buildPaths    = [][]string{{"results", "build"}, {"results", "build_status"}, {"build"}}
)

// Apply copies the metrics found in report onto rs. Fields the report does not
// carry are left untouched, so "not measured" stays nil rather than zero.
func Apply(report map[string]interface{}, rs *types.RunStatus) {
	if report == nil || rs == nil {
		return
	}

	if v, ok := firstFloat(report, coveragePaths); ok {
		rs.Coverage = &v
	}
	if v, ok := firstFloat(report, mutationPaths); ok {
		rs.MutationScore = &v
	}
	if v, ok := vulnCount(report, "critical"); ok {
		rs.CriticalVulns = &v
	}
	if v, ok := vulnCount(report, "high"); ok {
		rs.HighVulns = &v
	}
	if v, ok := toInt(lookup(report, "results", "tests_passed")); ok {
		rs.TestsPassed = &v
	}
	if v, ok := toInt(lookup(report, "results", "tests_failed")); ok {
		rs.TestsFailed = &v
	}
	if v, ok := firstString(report, buildPaths); ok {
		rs.Build = v
	}
	if v := language(report); v != "" {
		rs.Language = v
	}
	if tools := toolsRan(report); len(tools) > 0 {
		rs.ToolsRan = tools
	}
}

// vulnCount prefers the vulnerabilities summary block and otherwise sums every
// tool_metrics counter ending in _<severity>.
func vulnCount(report map[string]interface{}, severity string) (int, bool) {
	if v, ok := toInt(lookup(report, "vulnerabilities", severity)); ok {
		return v, true
	}
	metrics, ok := report["tool_metrics"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	suffix := "_" + severity
	total, found := 0, false
	for key, raw := range metrics {
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		if n, ok := toInt(raw); ok {
			total += n
			found = true
		}
	}
	return total, found
}

func language(report map[string]interface{}) string {
	if s, ok := report["language"].(string); ok && s != "" {
		return strings.ToLower(s)
	}
	if present(report["java_version"]) {
		return "java"
	}
	if present(report["python_version"]) {
		return "python"
	}
	return ""
}

// toolsRan accepts either a {"tool": true} map or a list of tool names.
func toolsRan(report map[string]interface{}) []string {
	var tools []string
	switch v := report["tools_ran"].(type) {
	case map[string]interface{}:
		for name, ran := range v {
			if b, ok := ran.(bool); ok && b {
				tools = append(tools, name)
			}
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				tools = append(tools, s)
			}
		}
	}
	sort.Strings(tools)
	return tools
}

func lookup(m map[string]interface{}, path ...string) interface{} {
	var cur interface{} = m
	for _, key := range path {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}

func firstFloat(report map[string]interface{}, paths [][]string) (float64, bool) {
	for _, p := range paths {
		if v, ok := ToFloat64(lookup(report, p...)); ok {
			return v, true
		}
	}
	return 0, false
}

func firstString(report map[string]interface{}, paths [][]string) (string, bool) {
	for _, p := range paths {
		if s, ok := lookup(report, p...).(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func present(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	default:
		return true
	}
}

// ToFloat64 coerces a decoded JSON or YAML value to float64. Handles float64,
// int, int64, json.Number and numeric strings (a trailing % is ignored).
func ToFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}

func toInt(v interface{}) (int, bool) {
	f, ok := ToFloat64(v)
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}
