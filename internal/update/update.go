// Package update checks GitHub releases for newer hive builds and replaces
// the running binary in place.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/pengelbrecht/hive/internal/fsutil"
)

const (
	repoOwner     = "pengelbrecht"
	repoName      = "hive"
	brewFormula   = "pengelbrecht/tap/hive"
	checkInterval = 24 * time.Hour
	checkTimeout  = 3 * time.Second
)

var (
	// ErrDevBuild is returned when the running binary has no release version.
	ErrDevBuild = errors.New("cannot update dev builds")
	// ErrUpToDate is returned by Update when no newer release exists.
	ErrUpToDate = errors.New("already at latest version")
)

// InstallMethod is how the running binary was installed.
type InstallMethod int

const (
	InstallUnknown InstallMethod = iota
	InstallHomebrew
	// InstallScript covers the install script and go install.
	InstallScript
)

func (m InstallMethod) String() string {
	switch m {
	case InstallHomebrew:
		return "homebrew"
	case InstallScript:
		return "script"
	default:
		return "unknown"
	}
}

// DetectInstallMethod inspects the resolved executable path.
func DetectInstallMethod() InstallMethod {
	exe, err := os.Executable()
	if err != nil {
		return InstallUnknown
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return InstallUnknown
	}
	return installMethodFor(exe)
}

func installMethodFor(exe string) InstallMethod {
	switch {
	case strings.Contains(exe, "/Cellar/"),
		strings.HasPrefix(exe, "/opt/homebrew/"),
		strings.HasPrefix(exe, "/usr/local/Homebrew/"),
		strings.Contains(exe, "linuxbrew"):
		return InstallHomebrew
	case exe == "":
		return InstallUnknown
	}
	return InstallScript
}

// Release describes the newest published release.
type Release struct {
	Version    string
	ReleaseURL string
}

// isDevBuild reports versions that never match a release tag.
func isDevBuild(version string) bool {
	v := strings.TrimPrefix(version, "v")
	return v == "" || v == "dev"
}

func newUpdater() (*selfupdate.Updater, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("create GitHub source: %w", err)
	}
	updater, err := selfupdate.NewUpdater(selfupdate.Config{Source: source})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}
	return updater, nil
}

func detectLatest(ctx context.Context) (*selfupdate.Updater, *selfupdate.Release, bool, error) {
	updater, err := newUpdater()
	if err != nil {
		return nil, nil, false, err
	}
	latest, found, err := updater.DetectLatest(ctx, selfupdate.NewRepositorySlug(repoOwner, repoName))
	if err != nil {
		return nil, nil, false, fmt.Errorf("detect latest version: %w", err)
	}
	return updater, latest, found, nil
}

// CheckForUpdate returns the latest release and whether it is newer than
// currentVersion. Dev builds never report an update.
func CheckForUpdate(ctx context.Context, currentVersion string) (*Release, bool, error) {
	if isDevBuild(currentVersion) {
		return nil, false, nil
	}
	_, latest, found, err := detectLatest(ctx)
	if err != nil || !found {
		return nil, false, err
	}
	release := &Release{Version: latest.Version(), ReleaseURL: latest.ReleaseNotes}
	return release, latest.GreaterThan(strings.TrimPrefix(currentVersion, "v")), nil
}

// Update replaces the running binary with the latest release. Homebrew
// installs are refused with the brew command to run instead.
func Update(ctx context.Context, currentVersion string) (string, error) {
	if DetectInstallMethod() == InstallHomebrew {
		return "", fmt.Errorf("hive was installed via Homebrew, run: brew upgrade %s", brewFormula)
	}
	if isDevBuild(currentVersion) {
		return "", ErrDevBuild
	}

	updater, latest, found, err := detectLatest(ctx)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errors.New("no releases found")
	}
	if !latest.GreaterThan(strings.TrimPrefix(currentVersion, "v")) {
		return "", fmt.Errorf("%w (%s)", ErrUpToDate, currentVersion)
	}

	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if err := updater.UpdateTo(ctx, latest, exe); err != nil {
		return "", fmt.Errorf("update: %w", err)
	}
	return latest.Version(), nil
}

// cacheEntry is the persisted result of the last check.
type cacheEntry struct {
	LastCheck       time.Time `json:"last_check"`
	LatestVersion   string    `json:"latest_version,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
}

// CachePath is where the daily check result is kept.
func CachePath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "hive", "update-cache.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "hive", "update-cache.json")
}

// Checker rate-limits release checks through a small JSON cache.
type Checker struct {
	Current   string
	CachePath string
	Method    InstallMethod
	Now       func() time.Time
	// Check fetches the latest release. Nil means CheckForUpdate.
	Check func(ctx context.Context, current string) (*Release, bool, error)
}

// NewChecker returns a Checker for the running binary.
func NewChecker(current string) *Checker {
	return &Checker{
		Current:   current,
		CachePath: CachePath(),
		Method:    DetectInstallMethod(),
		Now:       time.Now,
		Check:     CheckForUpdate,
	}
}

// Notice returns an update notice, or "" when none applies. The network
// is consulted at most once per checkInterval and never for dev builds.
func (c *Checker) Notice(ctx context.Context) string {
	if isDevBuild(c.Current) {
		return ""
	}
	current := strings.TrimPrefix(c.Current, "v")

	if cached := c.load(); cached != nil && c.Now().Sub(cached.LastCheck) < checkInterval {
		// The user may have upgraded since the cache was written.
		if cached.UpdateAvailable && isNewerVersion(cached.LatestVersion, current) {
			return formatUpdateNotice(c.Current, cached.LatestVersion, c.Method)
		}
		return ""
	}

	check := c.Check
	if check == nil {
		check = CheckForUpdate
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	release, hasUpdate, err := check(ctx, c.Current)

	entry := cacheEntry{LastCheck: c.Now(), UpdateAvailable: hasUpdate && err == nil}
	if release != nil {
		entry.LatestVersion = release.Version
	}
	c.save(entry)

	if err != nil || !hasUpdate {
		return ""
	}
	return formatUpdateNotice(c.Current, release.Version, c.Method)
}

func (c *Checker) load() *cacheEntry {
	if c.CachePath == "" {
		return nil
	}
	data, err := os.ReadFile(c.CachePath)
	if err != nil {
		return nil
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil
	}
	return &entry
}

func (c *Checker) save(entry cacheEntry) {
	if c.CachePath == "" {
		return
	}
	_ = fsutil.WriteJSONAtomic(c.CachePath, entry)
}

// CheckPeriodically is NewChecker(current).Notice(ctx).
func CheckPeriodically(ctx context.Context, current string) string {
	return NewChecker(current).Notice(ctx)
}

// isNewerVersion compares major.minor.patch numerically.
func isNewerVersion(a, b string) bool {
	parse := func(v string) [3]int {
		var out [3]int
		parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
		for i, p := range parts {
			_, _ = fmt.Sscanf(p, "%d", &out[i])
		}
		return out
	}
	av, bv := parse(a), parse(b)
	for i := range av {
		if av[i] != bv[i] {
			return av[i] > bv[i]
		}
	}
	return false
}

func formatUpdateNotice(current, latest string, method InstallMethod) string {
	cmd := "hive upgrade"
	if method == InstallHomebrew {
		cmd = "brew upgrade " + brewFormula
	}
	return fmt.Sprintf("Update available: %s -> %s (run: %s)", current, latest, cmd)
}
