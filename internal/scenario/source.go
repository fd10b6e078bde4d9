package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/patrickmn/go-cache"
)

// Source loads the catalog of one company.
type Source interface {
	Load(ctx context.Context, company string) (*Catalog, error)
}

// FileSource reads <dir>/<company>.json, falling back to <dir>/catalog.json.
type FileSource struct {
	dir string
}

// NewFileSource creates a FileSource rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

var companyName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Load returns an empty catalog when no file exists.
func (f *FileSource) Load(_ context.Context, company string) (*Catalog, error) {
	var candidates []string
	if company != "" && companyName.MatchString(company) {
		candidates = append(candidates, filepath.Join(f.dir, company+".json"))
	}
	candidates = append(candidates, filepath.Join(f.dir, "catalog.json"))

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		defs, err := ParseCatalog(data)
		if err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		return NewCatalog(defs), nil
	}
	return NewCatalog(nil), nil
}

// ParseCatalog decodes a JSON array of definitions and validates patterns.
func ParseCatalog(data []byte) ([]*Definition, error) {
	var defs []*Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		if d.Key == "" {
			return nil, fmt.Errorf("entry %d: missing scenarioKey", i)
		}
		if seen[d.Key] {
			return nil, fmt.Errorf("duplicate scenarioKey %q", d.Key)
		}
		seen[d.Key] = true
		for _, p := range d.Metadata.Matcher.RegexPatterns {
			if _, err := regexp.Compile(p); err != nil {
				return nil, fmt.Errorf("scenario %s: bad regex %q: %w", d.Key, p, err)
			}
		}
	}
	return defs, nil
}

// StaticSource serves one catalog to every company.
type StaticSource struct {
	Catalog *Catalog
}

func (s StaticSource) Load(context.Context, string) (*Catalog, error) {
	return s.Catalog, nil
}

// CachedSource keeps loaded catalogs per company for ttl.
type CachedSource struct {
	next  Source
	cache *cache.Cache
}

// NewCachedSource wraps next with a per-company cache.
func NewCachedSource(next Source, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedSource{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedSource) Load(ctx context.Context, company string) (*Catalog, error) {
	if x, found := c.cache.Get(company); found {
		return x.(*Catalog), nil
	}
	catalog, err := c.next.Load(ctx, company)
	if err != nil {
		return nil, err
	}
	c.cache.Set(company, catalog, cache.DefaultExpiration)
	return catalog, nil
}

// Invalidate drops the cached catalog of company.
func (c *CachedSource) Invalidate(company string) {
	c.cache.Delete(company)
}
