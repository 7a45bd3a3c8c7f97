// Package config resolves hive's layered configuration.
//
// Five sources are merged, lowest precedence first: built-in defaults, the
// global user file, the committed project file, the uncommitted project-local
// file, and HIVE_* environment variables. Mappings merge key by key; scalars
// and lists from a higher layer replace the lower value outright.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed default.yml
var defaultYAML []byte

// ErrInvalid is wrapped by every error caused by a malformed source.
var ErrInvalid = errors.New("invalid configuration")

// Error reports a malformed configuration source.
type Error struct {
	Source string // file path or "environment"
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrInvalid, e.Err}
}

// Document is a merged configuration tree.
type Document map[string]any

// Sources lists the inputs to Resolve.
type Sources struct {
	// Defaults is YAML for the lowest layer. Nil means the embedded defaults.
	Defaults []byte
	// Files are merged in order, later files winning. Missing files are skipped.
	Files []string
	// LookupEnv reads environment variables. Nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Resolve merges all sources into one document. Nothing is written anywhere,
// so a malformed source aborts before any side effect.
func Resolve(src Sources) (Document, error) {
	defaults := src.Defaults
	if defaults == nil {
		defaults = defaultYAML
	}

	doc := Document{}
	base, err := parse("defaults", ".yml", defaults)
	if err != nil {
		return nil, err
	}
	merge(doc, base)

	for _, path := range src.Files {
		layer, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		merge(doc, layer)
	}

	lookup := src.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env, err := fromEnv(lookup)
	if err != nil {
		return nil, err
	}
	merge(doc, env)

	return doc, nil
}

// Lookup returns the value at a dotted path such as "worktrees.parent_dir".
func (d Document) Lookup(path string) (any, bool) {
	var cur any = map[string]any(d)
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// loadFile reads one layer. A missing file is an empty layer.
func loadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Document{}, nil
	}
	if err != nil {
		return nil, &Error{Source: path, Err: err}
	}
	return parse(path, filepath.Ext(path), data)
}

func parse(source, ext string, data []byte) (Document, error) {
	raw := map[string]any{}
	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, &Error{Source: source, Err: err}
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &Error{Source: source, Err: err}
		}
	}
	doc, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, &Error{Source: source, Err: errors.New("top level must be a mapping")}
	}
	return Document(doc), nil
}

// normalize converts the map flavours produced by the decoders into
// map[string]any so merge and Lookup only deal with one shape.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case Document:
		return normalize(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case nil:
		return nil
	default:
		return v
	}
}

// merge folds src into dst. Only mappings recurse; lists are leaves.
// A null value (an empty YAML section) leaves the lower layer untouched.
func merge(dst, src map[string]any) {
	for k, v := range src {
		if v == nil {
			continue
		}
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			merged := make(map[string]any, len(dstMap))
			for dk, dv := range dstMap {
				merged[dk] = dv
			}
			merge(merged, srcMap)
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

// Config is the typed view of a resolved Document.
type Config struct {
	Agents    Agents    `yaml:"agents"`
	Resume    Resume    `yaml:"resume"`
	Worktrees Worktrees `yaml:"worktrees"`
	Zellij    Zellij    `yaml:"zellij"`
	GitHub    GitHub    `yaml:"github"`
	Restart   Restart   `yaml:"restart"`
}

// Agents configures detection order and per-agent arguments.
type Agents struct {
	Order   []string               `yaml:"order"`
	Configs map[string]AgentConfig `yaml:"configs"`
}

// AgentConfig overrides built-in arguments for one agent. A nil ResumeArgs
// means "not configured"; an empty, non-nil slice disables resume.
type AgentConfig struct {
	ResumeArgs          *[]string `yaml:"resume_args"`
	SkipPermissionsArgs *[]string `yaml:"skip_permissions_args"`
}

type Resume struct {
	Enabled bool `yaml:"enabled"`
}

// Worktrees configures the worktree accessor.
type Worktrees struct {
	Enabled         bool               `yaml:"enabled"`
	ParentDir       string             `yaml:"parent_dir"`
	UseHome         bool               `yaml:"use_home"`
	Resume          bool               `yaml:"resume"`
	SkipPermissions bool               `yaml:"skip_permissions"`
	PostCreate      []PostCreateAction `yaml:"post_create"`
	CopyFiles       []string           `yaml:"copy_files"`
	SymlinkFiles    []string           `yaml:"symlink_files"`
	AutoSelect      AutoSelect         `yaml:"auto_select"`
}

// PostCreateAction is a shell command run in a fresh worktree. It may be
// written as a bare string or as a mapping with an if_exists precondition.
type PostCreateAction struct {
	Command  string `yaml:"command"`
	IfExists string `yaml:"if_exists"`
}

// UnmarshalYAML accepts the bare-string form.
func (a *PostCreateAction) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		a.Command = node.Value
		return nil
	}
	type plain PostCreateAction
	return node.Decode((*plain)(a))
}

// AutoSelect picks a branch in the picker after Timeout seconds idle.
type AutoSelect struct {
	Enabled bool    `yaml:"enabled"`
	Branch  string  `yaml:"branch"`
	Timeout float64 `yaml:"timeout"`
}

// Wait returns the auto-select timeout as a duration.
func (a AutoSelect) Wait() time.Duration {
	return seconds(a.Timeout)
}

type Zellij struct {
	Layout      string `yaml:"layout"`
	SessionName string `yaml:"session_name"`
}

type GitHub struct {
	FetchIssues bool `yaml:"fetch_issues"`
	IssueLimit  int  `yaml:"issue_limit"`
}

// Restart configures the restart loop and its crash-loop guard.
// MaxFailures of zero disables the guard.
type Restart struct {
	Delay         float64 `yaml:"delay"`
	MaxFailures   int     `yaml:"max_failures"`
	FailureWindow float64 `yaml:"failure_window"`
}

// DelayDuration returns Delay as a duration.
func (r Restart) DelayDuration() time.Duration {
	return seconds(r.Delay)
}

// WindowDuration returns FailureWindow as a duration.
func (r Restart) WindowDuration() time.Duration {
	return seconds(r.FailureWindow)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Decode converts a resolved document into a Config.
func Decode(doc Document) (*Config, error) {
	data, err := yaml.Marshal(map[string]any(doc))
	if err != nil {
		return nil, &Error{Source: "merged", Err: err}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &Error{Source: "merged", Err: err}
	}
	return &cfg, nil
}

// DefaultSources returns the standard layer locations for a repository.
// mainRepo may be empty outside a git repository, in which case only the
// global file and the environment apply.
func DefaultSources(mainRepo string) Sources {
	var files []string
	if dir := globalDir(); dir != "" {
		files = append(files, firstExisting(dir, "hive.yml", "hive.yaml", "hive.toml"))
	}
	if mainRepo != "" {
		files = append(files,
			firstExisting(mainRepo, ".hive.yml", ".hive.yaml", ".hive.toml"),
			firstExisting(mainRepo, ".hive.local.yml", ".hive.local.yaml", ".hive.local.toml"),
		)
	}
	return Sources{Files: files}
}

// Load resolves the standard sources for mainRepo and decodes them.
func Load(mainRepo string) (*Config, Document, error) {
	doc, err := Resolve(DefaultSources(mainRepo))
	if err != nil {
		return nil, nil, err
	}
	cfg, err := Decode(doc)
	if err != nil {
		return nil, nil, err
	}
	return cfg, doc, nil
}

func globalDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "hive")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "hive")
}

// firstExisting returns the first candidate present in dir, or the first
// candidate if none exist (loadFile treats that as an empty layer).
func firstExisting(dir string, names ...string) string {
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(dir, names[0])
}
