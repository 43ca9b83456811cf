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
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.chromium.org/luci/common/errors"

	"github.com/openmortality/cdcstats/internal/zstdpool"
)

// ErrNoSnapshot is returned when the cache has nothing for a dataset.
var ErrNoSnapshot = errors.New("no cached snapshot")

// Cache is an on-disk snapshot store.
//
// Layout per dataset: <dir>/<dataset-id>/<digest>.csv.zst blobs plus a
// manifest.json listing the dataset's snapshots, newest first. The manifest
// only ever names blobs that exist: blobs are written and synced before the
// manifest that mentions them.
type Cache struct {
	Dir string

	mu sync.Mutex
}

// NewCache returns a cache rooted at dir. The directory is created lazily on
// first Put.
func NewCache(dir string) *Cache {
	return &Cache{Dir: dir}
}

func (c *Cache) datasetDir(id string) string {
	return filepath.Join(c.Dir, id)
}

func (c *Cache) blobPath(id, digest string) string {
	return filepath.Join(c.datasetDir(id), digest+".csv.zst")
}

func (c *Cache) manifestPath(id string) string {
	return filepath.Join(c.datasetDir(id), "manifest.json")
}

// Snapshots returns all snapshots of a dataset, newest first.
//
// A dataset the cache has never seen yields an empty slice.
func (c *Cache) Snapshots(id string) ([]*Snapshot, error) {
	blob, err := os.ReadFile(c.manifestPath(id))
	switch {
	case os.IsNotExist(err):
		return nil, nil
	case err != nil:
		return nil, errors.Fmt("reading manifest for %s: %w", id, err)
	}
	var snaps []*Snapshot
	if err := json.Unmarshal(blob, &snaps); err != nil {
		return nil, errors.Fmt("corrupted manifest for %s: %w", id, err)
	}
	return snaps, nil
}

// Latest returns the newest snapshot of a dataset.
//
// Returns ErrNoSnapshot if the dataset was never cached.
func (c *Cache) Latest(id string) (*Snapshot, error) {
	snaps, err := c.Snapshots(id)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, errors.Fmt("dataset %s: %w", id, ErrNoSnapshot)
	}
	return snaps[0], nil
}

// Has reports whether the cache holds at least one snapshot of the dataset.
func (c *Cache) Has(id string) bool {
	snaps, err := c.Snapshots(id)
	return err == nil && len(snaps) > 0
}

// Open returns the newest snapshot of a dataset and its decompressed body.
func (c *Cache) Open(id string) (*Snapshot, []byte, error) {
	snap, err := c.Latest(id)
	if err != nil {
		return nil, nil, err
	}
	packed, err := os.ReadFile(c.blobPath(id, snap.Digest()))
	if err != nil {
		return nil, nil, errors.Fmt("reading blob %s of %s: %w", snap.Digest(), id, err)
	}
	body, err := zstdpool.Decompress(packed, make([]byte, 0, snap.SizeBytes))
	if err != nil {
		return nil, nil, errors.Fmt("decompressing blob %s of %s: %w", snap.Digest(), id, err)
	}
	return snap, body, nil
}

// Put stores one fetched body under its snapshot's digest and prepends the
// snapshot to the dataset's manifest.
//
// Blob and manifest are written to temp files and renamed into place, so a
// failed Put never leaves a partial blob or a manifest naming a missing one.
func (c *Cache) Put(snap *Snapshot, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.datasetDir(snap.Dataset)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Fmt("creating cache dir: %w", err)
	}

	blob := c.blobPath(snap.Dataset, snap.Digest())
	if _, err := os.Stat(blob); os.IsNotExist(err) {
		packed := zstdpool.Compress(body, nil)
		if err := atomicWrite(blob, packed); err != nil {
			return errors.Fmt("writing blob %s: %w", snap.Digest(), err)
		}
	}

	snaps, err := c.Snapshots(snap.Dataset)
	if err != nil {
		return err
	}
	snaps = append([]*Snapshot{snap}, snaps...)
	manifest, err := json.MarshalIndent(snaps, "", "  ")
	if err != nil {
		return err
	}
	if err := atomicWrite(c.manifestPath(snap.Dataset), manifest); err != nil {
		return errors.Fmt("writing manifest for %s: %w", snap.Dataset, err)
	}
	return nil
}

// atomicWrite writes data to a temp file in path's directory and renames it
// into place.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
