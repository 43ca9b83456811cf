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

// Package fetch downloads CDC dataset exports and keeps digest-addressed
// snapshots of them on disk, so a study can be recomputed later against the
// exact bytes it was computed from.
package fetch

import (
	"time"
)

// Snapshot is the provenance record of one fetched dataset copy.
//
// Snapshots are immutable: the blob a snapshot points at is addressed by the
// digest of its contents.
type Snapshot struct {
	Dataset     string    `json:"dataset"`
	URL         string    `json:"url"`
	FetchedAt   time.Time `json:"fetched_at"`
	SHA256      string    `json:"sha256"`
	SizeBytes   int64     `json:"size_bytes"`
	RowCount    int       `json:"row_count"`
	ContentType string    `json:"content_type,omitempty"`
}

// Digest returns the short digest prefix used in blob names and reports.
func (s *Snapshot) Digest() string {
	if len(s.SHA256) < 16 {
		return s.SHA256
	}
	return s.SHA256[:16]
}
