package offline

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Manifest describes one deployment of the gateway.
type Manifest struct {
	// Version names the cache; a new version replaces every older cache.
	Version string `yaml:"version"`
	// Origin is the scheme and host of the site the gateway fronts.
	Origin      string `yaml:"origin"`
	OfflinePage string `yaml:"offlinePage"`
	// URLs are pre-cached at install. Relative entries resolve against Origin.
	URLs []string `yaml:"urls"`
	// CacheablePatterns are regular expressions matched against the URL
	// path of successful same-origin responses.
	CacheablePatterns []string `yaml:"cacheablePatterns"`
}

// DefaultCacheablePatterns covers build output, icons and static asset
// extensions.
var DefaultCacheablePatterns = []string{
	`^/_build/`,
	`^/icons/`,
	`\.(?:css|js|mjs|png|jpe?g|gif|svg|webp|avif|ico|woff2?)$`,
}

// DefaultManifest is the built-in manifest used when no file is configured.
func DefaultManifest(version, origin string) Manifest {
	return Manifest{
		Version:     version,
		Origin:      origin,
		OfflinePage: "/offline",
		URLs: []string{
			"/",
			"/offline",
			"/about",
			"/programs",
			"/contact",
			"/tour",
			"/manifest.json",
			"/_build/app.css",
			"/_build/app.js",
			"/icons/icon-192.png",
			"/icons/icon-512.png",
			"https://fonts.googleapis.com/css2?family=Nunito:wght@400;600;700&display=swap",
			"https://fonts.googleapis.com/css2?family=Fredoka:wght@400;600&display=swap",
		},
		CacheablePatterns: append([]string(nil), DefaultCacheablePatterns...),
	}
}

// Validate checks the manifest is usable.
func (m Manifest) Validate() error {
	var errs []error
	if strings.TrimSpace(m.Version) == "" {
		errs = append(errs, errors.New("manifest version is required"))
	}
	if _, err := parseOrigin(m.Origin); err != nil {
		errs = append(errs, err)
	}
	if m.OfflinePage == "" {
		errs = append(errs, errors.New("manifest offlinePage is required"))
	}
	for _, pattern := range m.CacheablePatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("bad cacheable pattern %q: %w", pattern, err))
		}
	}
	return errors.Join(errs...)
}

// Resolve turns a manifest entry into an absolute URL string.
func (m Manifest) Resolve(ref string) (string, error) {
	origin, err := parseOrigin(m.Origin)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("bad manifest url %q: %w", ref, err)
	}
	return origin.ResolveReference(u).String(), nil
}

func parseOrigin(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("bad manifest origin %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("manifest origin %q must be an absolute http(s) url", raw)
	}
	return u, nil
}

type matcher []*regexp.Regexp

func compilePatterns(patterns []string) (matcher, error) {
	m := make(matcher, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("bad cacheable pattern %q: %w", p, err)
		}
		m = append(m, re)
	}
	return m, nil
}

func (m matcher) match(path string) bool {
	for _, re := range m {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
