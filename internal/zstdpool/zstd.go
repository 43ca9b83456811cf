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

// Package zstdpool compresses and decompresses snapshot cache blobs.
package zstdpool

import (
	"github.com/klauspost/compress/zstd"
)

// One encoder and one decoder serve the whole process. Only EncodeAll and
// DecodeAll are called on them; those are the concurrency-safe entry points.
var (
	enc *zstd.Encoder
	dec *zstd.Decoder
)

func init() {
	var err error
	if enc, err = zstd.NewWriter(nil); err != nil {
		panic(err) // default options never fail
	}
	if dec, err = zstd.NewReader(nil); err != nil {
		panic(err) // default options never fail
	}
}

// Compress appends the zstd encoding of src to dst and returns it.
//
// Safe for concurrent use.
func Compress(src, dst []byte) []byte {
	return enc.EncodeAll(src, dst)
}

// Decompress appends the decoded form of a Compress blob to dst.
//
// Safe for concurrent use.
func Decompress(input, dst []byte) ([]byte, error) {
	return dec.DecodeAll(input, dst)
}
