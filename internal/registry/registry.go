// Package registry talks to the Docker registry HTTP API for version
// discovery: listing published tags and computing the next semantic
// version for an artifact.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/cubeops/cubeops/internal/retry"
)

// TagLister lists the tags published for a repository.
type TagLister interface {
	ListTags(ctx context.Context, repository string) ([]string, error)
}

// HTTPTagLister queries the registry's public tag-listing endpoint
// (GET {base}/v2/{repository}/tags/list).
type HTTPTagLister struct {
	BaseURL string
	Client  *http.Client
	Retry   retry.Policy
}

// NewHTTPTagLister returns a lister for the given registry base URL, e.g.
// "https://registry-1.docker.io". Transient HTTP failures are retried with
// capped exponential backoff.
func NewHTTPTagLister(baseURL string) *HTTPTagLister {
	return &HTTPTagLister{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 15 * time.Second},
		Retry:   retry.Exponential(4, time.Second, 10*time.Second),
	}
}

type tagListResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// ListTags fetches the tag list for repository. A 404 means the repository
// has never been pushed and yields an empty list, not an error.
func (l *HTTPTagLister) ListTags(ctx context.Context, repository string) ([]string, error) {
	url := fmt.Sprintf("%s/v2/%s/tags/list", l.BaseURL, repository)

	var tags []string
	err := l.Retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := l.Client.Do(req)
		if err != nil {
			return &transientError{err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			tags = nil
			return nil
		case resp.StatusCode >= 500:
			return &transientError{fmt.Errorf("registry returned %s", resp.Status)}
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("registry returned %s for %s", resp.Status, repository)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &transientError{err}
		}
		var parsed tagListResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("parsing tag list for %s: %w", repository, err)
		}
		tags = parsed.Tags
		return nil
	}, isTransient)
	if err != nil {
		return nil, err
	}
	return tags, nil
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// initialVersion is published when no semantic tags exist yet.
var initialVersion = semver.MustParse("0.0.1")

// NextVersion computes the next semantic version from existing tags: the
// maximum x.y.z tag with its patch incremented, or 0.0.1 when no tag parses
// as a strict semantic version. Non-semver tags (latest, dev) are ignored.
func NextVersion(tags []string) *semver.Version {
	var max *semver.Version
	for _, tag := range tags {
		v, err := semver.StrictNewVersion(tag)
		if err != nil {
			continue
		}
		if max == nil || v.GreaterThan(max) {
			max = v
		}
	}
	if max == nil {
		return initialVersion
	}
	next := max.IncPatch()
	return &next
}

// ConflictError reports a computed version tag that is already published.
type ConflictError struct{ Tag string }

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version tag %s already exists in the registry", e.Tag)
}

// resolveAttempts bounds the collision search in ResolveVersion.
const resolveAttempts = 100

// ResolveVersion computes the next free semantic version tag from the
// existing tag list. A collision with an already-published tag is recovered
// by bumping the patch component and retrying, up to a fixed bound.
func ResolveVersion(tags []string) (string, error) {
	published := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		published[tag] = struct{}{}
	}

	candidate := *NextVersion(tags)
	for i := 0; i < resolveAttempts; i++ {
		if _, taken := published[candidate.String()]; !taken {
			return candidate.String(), nil
		}
		candidate = candidate.IncPatch()
	}
	return "", &ConflictError{Tag: candidate.String()}
}
