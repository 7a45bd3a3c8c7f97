package issues

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pengelbrecht/hive/internal/fsutil"
)

// ErrNoRemote is returned when the repository has no GitHub origin.
var ErrNoRemote = errors.New("no GitHub origin remote")

// Repo identifies a GitHub repository.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

var remotePattern = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`)

// ParseRemote extracts the repository from an ssh or https GitHub URL.
func ParseRemote(url string) (Repo, error) {
	m := remotePattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return Repo{}, fmt.Errorf("%w: %q", ErrNoRemote, url)
	}
	return Repo{Owner: m[1], Name: m[2]}, nil
}

// OriginRepo reads the origin remote of the repository at dir.
func OriginRepo(ctx context.Context, dir string) (Repo, error) {
	cmd := exec.CommandContext(ctx, "git", "remote", "get-url", "origin")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return Repo{}, ErrNoRemote
	}
	return ParseRemote(string(out))
}

// CacheDir returns hive's cache directory, honouring XDG_CACHE_HOME.
func CacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "hive")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cache", "hive")
}

// Cache is the on-disk issue list for one repository. It is shared by
// concurrent invocations; writes replace the file atomically.
type Cache struct {
	path string
	now  func() time.Time
}

// NewCache returns the cache for repo under dir.
func NewCache(dir string, repo Repo) *Cache {
	name := fmt.Sprintf("gh-%s--%s-issues.json", repo.Owner, repo.Name)
	return &Cache{path: filepath.Join(dir, name), now: time.Now}
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// Load returns cached entries. A missing or unreadable cache is empty.
func (c *Cache) Load() []Entry {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	return entries
}

// Store replaces the cache with issues, stamped with the current time.
// Issues missing from the new list are dropped.
func (c *Cache) Store(list []Issue) error {
	now := c.now().UTC()
	entries := make([]Entry, 0, len(list))
	for _, is := range list {
		entries = append(entries, Entry{Number: is.Number, Title: is.Title, URL: is.URL, FetchedAt: now})
	}
	return fsutil.WriteJSONAtomic(c.path, entries)
}

// Lister is the part of Client the refresher needs.
type Lister interface {
	ListAssigned(ctx context.Context, limit int) ([]Issue, error)
}

// Refresh fetches assigned issues and rewrites the cache.
func (c *Cache) Refresh(ctx context.Context, src Lister, limit int) error {
	list, err := src.ListAssigned(ctx, limit)
	if err != nil {
		return err
	}
	return c.Store(list)
}

// RefreshTimeout bounds a background refresh.
const RefreshTimeout = 10 * time.Second

// StartRefresh runs Refresh on its own goroutine and returns immediately.
// The returned channel receives the outcome once and is buffered, so the
// caller may ignore it. Nothing in the current invocation waits for it.
func (c *Cache) StartRefresh(ctx context.Context, src Lister, limit int, logger *log.Logger) <-chan error {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, RefreshTimeout)
		defer cancel()
		err := c.Refresh(ctx, src, limit)
		if err != nil {
			logger.Debug("issue refresh failed", "err", err)
		} else {
			logger.Debug("issue cache refreshed", "path", c.path)
		}
		done <- err
	}()
	return done
}
