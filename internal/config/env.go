package config

import (
	"fmt"
	"strconv"
	"strings"
)

// EnvPrefix is the prefix shared by all recognized environment variables.
const EnvPrefix = "HIVE_"

type envKind int

const (
	envString envKind = iota
	envBool
	envInt
	envFloat
	envList
)

// envVar binds one environment variable to one document path.
type envVar struct {
	name string
	path string
	kind envKind
}

var envVars = []envVar{
	{"HIVE_AGENTS_ORDER", "agents.order", envList},
	{"HIVE_RESUME_ENABLED", "resume.enabled", envBool},
	{"HIVE_WORKTREES_ENABLED", "worktrees.enabled", envBool},
	{"HIVE_WORKTREES_PARENT_DIR", "worktrees.parent_dir", envString},
	{"HIVE_WORKTREES_USE_HOME", "worktrees.use_home", envBool},
	{"HIVE_WORKTREES_RESUME", "worktrees.resume", envBool},
	{"HIVE_WORKTREES_SKIP_PERMISSIONS", "worktrees.skip_permissions", envBool},
	{"HIVE_ZELLIJ_LAYOUT", "zellij.layout", envString},
	{"HIVE_ZELLIJ_SESSION_NAME", "zellij.session_name", envString},
	{"HIVE_GITHUB_FETCH_ISSUES", "github.fetch_issues", envBool},
	{"HIVE_GITHUB_ISSUE_LIMIT", "github.issue_limit", envInt},
	{"HIVE_RESTART_DELAY", "restart.delay", envFloat},
}

// legacyUseHome predates the HIVE_ prefix. It only applies when
// HIVE_WORKTREES_USE_HOME is unset.
const legacyUseHome = "GIT_WORKTREES_HOME"

// fromEnv builds the environment layer.
func fromEnv(lookup func(string) (string, bool)) (Document, error) {
	doc := Document{}
	for _, v := range envVars {
		raw, ok := lookup(v.name)
		if !ok {
			continue
		}
		val, err := convert(v.kind, raw)
		if err != nil {
			return nil, &Error{Source: "environment", Err: fmt.Errorf("%s: %w", v.name, err)}
		}
		set(doc, v.path, val)
	}

	if _, ok := lookup("HIVE_WORKTREES_USE_HOME"); !ok {
		if raw, ok := lookup(legacyUseHome); ok {
			val, err := ParseBool(raw)
			if err != nil {
				return nil, &Error{Source: "environment", Err: fmt.Errorf("%s: %w", legacyUseHome, err)}
			}
			set(doc, "worktrees.use_home", val)
		}
	}
	return doc, nil
}

func convert(kind envKind, raw string) (any, error) {
	switch kind {
	case envBool:
		return ParseBool(raw)
	case envInt:
		return strconv.Atoi(strings.TrimSpace(raw))
	case envFloat:
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case envList:
		var items []any
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		if items == nil {
			items = []any{}
		}
		return items, nil
	default:
		return raw, nil
	}
}

// ParseBool accepts 1/0, true/false, yes/no and on/off in any case.
func ParseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", raw)
}

// set stores val at a dotted path, creating intermediate mappings.
func set(doc Document, path string, val any) {
	keys := strings.Split(path, ".")
	cur := map[string]any(doc)
	for _, key := range keys[:len(keys)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = val
}
