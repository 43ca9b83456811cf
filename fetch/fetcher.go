// Copyright 2026 The Open Mortality Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/common/sync/parallel"

	"github.com/openmortality/cdcstats/dataset"
	"github.com/openmortality/cdcstats/version"
)

// DefaultUserAgent identifies the tool on dataset requests.
var DefaultUserAgent = "cdcstats/" + version.Number

// Fetcher downloads dataset CSV exports.
//
// The zero Fetcher is usable: it uses http.DefaultClient, no rate limit and
// DefaultUserAgent.
type Fetcher struct {
	Client    *http.Client  // defaults to http.DefaultClient
	Limiter   *rate.Limiter // optional limit on request starts
	UserAgent string        // defaults to DefaultUserAgent
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

func (f *Fetcher) userAgent() string {
	if f.UserAgent != "" {
		return f.UserAgent
	}
	return DefaultUserAgent
}

// fetchOnce is one GET attempt. HTTP 429 and 5xx are tagged transient, other
// non-200 statuses are permanent.
func (f *Fetcher) fetchOnce(ctx context.Context, src dataset.Source) (body []byte, contentType string, err error) {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return nil, "", err
		}
	}
	req, err := http.NewRequestWithContext(ctx, "GET", src.URL, nil)
	if err != nil {
		return nil, "", errors.Fmt("building request for %s: %w", src.URL, err)
	}
	req.Header.Set("User-Agent", f.userAgent())
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, "", transient.Tag.Apply(errors.Fmt("GET %s: %w", src.URL, err))
	}
	defer resp.Body.Close()
	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", transient.Tag.Apply(errors.Fmt("GET %s: %w", src.URL, err))
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return body, resp.Header.Get("Content-Type"), nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, "", transient.Tag.Apply(errors.Fmt("got HTTP %d fetching %s", resp.StatusCode, src.URL))
	default:
		return nil, "", errors.Fmt("got HTTP %d fetching %s", resp.StatusCode, src.URL)
	}
}

// fetchRaw downloads the export, retrying transient failures, and assembles
// the provenance record. The snapshot's RowCount is filled in by the caller
// once the body is parsed.
func (f *Fetcher) fetchRaw(ctx context.Context, src dataset.Source) ([]byte, *Snapshot, error) {
	if src.URL == "" {
		return nil, nil, errors.Fmt("dataset %s has no URL", src.ID)
	}
	var body []byte
	var contentType string
	err := retry.Retry(ctx, transient.Only(retry.Default), func() (err error) {
		body, contentType, err = f.fetchOnce(ctx, src)
		return
	}, retry.LogCallback(ctx, fmt.Sprintf("fetch %s", src.ID)))
	if err != nil {
		return nil, nil, err
	}
	digest := sha256.Sum256(body)
	logging.Infof(ctx, "Fetched %s (%.1f Kb)", src.ID, float32(len(body))/1024)
	return body, &Snapshot{
		Dataset:     src.ID,
		URL:         src.URL,
		FetchedAt:   clock.Now(ctx).UTC(),
		SHA256:      hex.EncodeToString(digest[:]),
		SizeBytes:   int64(len(body)),
		ContentType: contentType,
	}, nil
}

// Fetch downloads and parses one dataset, returning the typed table and its
// provenance record.
func (f *Fetcher) Fetch(ctx context.Context, src dataset.Source) (*dataset.Table, *Snapshot, error) {
	body, snap, err := f.fetchRaw(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	tb, err := dataset.Parse(src.ID, bytes.NewReader(body))
	if err != nil {
		return nil, nil, errors.Fmt("parsing %s: %w", src.ID, err)
	}
	snap.RowCount = tb.NumRows()
	return tb, snap, nil
}

// FetchThrough serves a dataset from the cache, downloading and caching it
// first if it is absent or force is set.
func (f *Fetcher) FetchThrough(ctx context.Context, c *Cache, src dataset.Source, force bool) (*dataset.Table, *Snapshot, error) {
	if !force {
		switch snap, body, err := c.Open(src.ID); {
		case err == nil:
			logging.Debugf(ctx, "Serving %s from cache (%s)", src.ID, snap.Digest())
			tb, err := dataset.Parse(src.ID, bytes.NewReader(body))
			if err != nil {
				return nil, nil, errors.Fmt("parsing cached %s: %w", src.ID, err)
			}
			return tb, snap, nil
		case !errors.Is(err, ErrNoSnapshot):
			return nil, nil, err
		}
	}

	body, snap, err := f.fetchRaw(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	tb, err := dataset.Parse(src.ID, bytes.NewReader(body))
	if err != nil {
		return nil, nil, errors.Fmt("parsing %s: %w", src.ID, err)
	}
	snap.RowCount = tb.NumRows()
	if err := c.Put(snap, body); err != nil {
		return nil, nil, err
	}
	return tb, snap, nil
}

// FetchAll fetches several datasets through the cache concurrently.
//
// Returned maps are keyed by dataset ID. On error the maps hold whatever
// datasets did succeed.
func (f *Fetcher) FetchAll(ctx context.Context, c *Cache, srcs []dataset.Source, force bool) (map[string]*dataset.Table, map[string]*Snapshot, error) {
	var mu sync.Mutex
	tables := make(map[string]*dataset.Table, len(srcs))
	snaps := make(map[string]*Snapshot, len(srcs))
	err := parallel.FanOutIn(func(work chan<- func() error) {
		for _, src := range srcs {
			work <- func() error {
				tb, snap, err := f.FetchThrough(ctx, c, src, force)
				if err != nil {
					return errors.Fmt("fetching %s: %w", src.ID, err)
				}
				mu.Lock()
				defer mu.Unlock()
				tables[src.ID] = tb
				snaps[src.ID] = snap
				return nil
			}
		}
	})
	return tables, snaps, err
}
