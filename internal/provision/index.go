// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/mod/semver"
)

// maxIndexBytes caps the index page body (4 MB).
const maxIndexBytes = 4 << 20

type (
	// artifact is a downloadable archive discovered on the index page.
	artifact struct {
		Name    string
		URL     string
		Version string
	}
)

// discover fetches the index page and returns the first linked archive that
// matches the provisioner's platform.
func (p *Provisioner) discover(ctx context.Context) (artifact, error) {
	base, err := url.Parse(p.indexURL)
	if err != nil {
		return artifact{}, fmt.Errorf("parsing index URL: %w", err)
	}

	resp, err := p.get(ctx, p.indexURL)
	if err != nil {
		return artifact{}, fmt.Errorf("fetching index: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only HTTP response body

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxIndexBytes))
	if err != nil {
		return artifact{}, fmt.Errorf("parsing index: %w", err)
	}

	var (
		found artifact
		ok    bool
	)
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if !p.platform.MatchesDownloadArtifact(href) {
			return true
		}
		linkURL, parseErr := base.Parse(href)
		if parseErr != nil {
			return true
		}
		name := path.Base(linkURL.Path)
		found = artifact{Name: name, URL: linkURL.String(), Version: versionFromName(name)}
		ok = true
		return false
	})

	if !ok {
		return artifact{}, fmt.Errorf("%w for %s on %s", ErrNoMatchingArtifact, p.platform, p.indexURL)
	}
	p.logger.Debug("discovered artifact", "name", found.Name, "url", found.URL, "version", found.Version)
	return found, nil
}

// get performs a GET and fails on any non-200 status.
func (p *Provisioner) get(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %d", reqURL, resp.StatusCode)
	}
	return resp, nil
}

// versionFromName extracts the semantic version token from an artifact name
// such as node-v22.11.0-linux-x64.tar.gz. It returns "" when none is present.
func versionFromName(name string) string {
	for token := range strings.SplitSeq(name, "-") {
		if strings.HasPrefix(token, "v") && semver.IsValid(token) {
			return semver.Canonical(token)
		}
	}
	return ""
}
