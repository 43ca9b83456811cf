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
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
)

func snapOf(id string, body []byte, at time.Time) *Snapshot {
	digest := sha256.Sum256(body)
	return &Snapshot{
		Dataset:   id,
		URL:       "https://example.com/" + id,
		FetchedAt: at,
		SHA256:    hex.EncodeToString(digest[:]),
		SizeBytes: int64(len(body)),
	}
}

func TestCache(t *testing.T) {
	t.Parallel()

	ftt.Run("Cache", t, func(t *ftt.Test) {
		cache := NewCache(t.TempDir())
		t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

		t.Run("Empty cache", func(t *ftt.Test) {
			assert.Loosely(t, cache.Has("weekly-deaths"), should.BeFalse)

			_, err := cache.Latest("weekly-deaths")
			assert.Loosely(t, errors.Is(err, ErrNoSnapshot), should.BeTrue)

			snaps, err := cache.Snapshots("weekly-deaths")
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, snaps, should.BeEmpty)
		})

		t.Run("Put and Open round trip", func(t *ftt.Test) {
			body := []byte(csvBody)
			snap := snapOf("weekly-deaths", body, t0)
			assert.Loosely(t, cache.Put(snap, body), should.BeNil)

			got, back, err := cache.Open("weekly-deaths")
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, back, should.Match(body))
			assert.Loosely(t, got.SHA256, should.Equal(snap.SHA256))
			assert.Loosely(t, got.FetchedAt, should.Match(t0))
		})

		t.Run("Manifest is newest first and names real blobs", func(t *ftt.Test) {
			first := []byte("A\n1\n")
			second := []byte("A\n2\n")
			assert.Loosely(t, cache.Put(snapOf("d", first, t0), first), should.BeNil)
			assert.Loosely(t, cache.Put(snapOf("d", second, t0.Add(time.Hour)), second), should.BeNil)

			snaps, err := cache.Snapshots("d")
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, snaps, should.HaveLength(2))
			assert.Loosely(t, snaps[0].FetchedAt.After(snaps[1].FetchedAt), should.BeTrue)

			latest, err := cache.Latest("d")
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, latest.SHA256, should.Equal(snaps[0].SHA256))

			for _, s := range snaps {
				_, err := os.Stat(filepath.Join(cache.Dir, "d", s.Digest()+".csv.zst"))
				assert.Loosely(t, err, should.BeNil)
			}

			_, body, err := cache.Open("d")
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, body, should.Match(second))
		})

		t.Run("Refetch of identical bytes shares the blob", func(t *ftt.Test) {
			body := []byte("A\n1\n")
			assert.Loosely(t, cache.Put(snapOf("d", body, t0), body), should.BeNil)
			assert.Loosely(t, cache.Put(snapOf("d", body, t0.Add(time.Hour)), body), should.BeNil)

			snaps, err := cache.Snapshots("d")
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, snaps, should.HaveLength(2))
			assert.Loosely(t, snaps[0].SHA256, should.Equal(snaps[1].SHA256))

			files, err := filepath.Glob(filepath.Join(cache.Dir, "d", "*.csv.zst"))
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, files, should.HaveLength(1))
		})

		t.Run("Corrupted manifest is an error", func(t *ftt.Test) {
			dir := filepath.Join(cache.Dir, "bad")
			assert.Loosely(t, os.MkdirAll(dir, 0755), should.BeNil)
			assert.Loosely(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte("not json"), 0644), should.BeNil)

			_, err := cache.Snapshots("bad")
			assert.Loosely(t, err, should.ErrLike("corrupted manifest"))
		})

		t.Run("Missing blob surfaces on Open", func(t *ftt.Test) {
			body := []byte("A\n1\n")
			snap := snapOf("d", body, t0)
			assert.Loosely(t, cache.Put(snap, body), should.BeNil)
			assert.Loosely(t, os.Remove(filepath.Join(cache.Dir, "d", snap.Digest()+".csv.zst")), should.BeNil)

			_, _, err := cache.Open("d")
			assert.Loosely(t, err, should.ErrLike("reading blob"))
		})
	})
}
