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

package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/logging"
)

// baseCommandRun provides common command run functionality.
// All cdcstats subcommands must embed it directly or indirectly.
type baseCommandRun struct {
	subcommands.CommandRunBase
	logConfig logging.Config // for -log-level, used by ModifyContext
	cacheDir  string
}

func (r *baseCommandRun) init() {
	r.logConfig.Level = logging.Info
	r.logConfig.AddFlags(&r.Flags)
}

func (r *baseCommandRun) registerCacheDirFlag() {
	r.Flags.StringVar(&r.cacheDir, "cache-dir", defaultCacheDir(),
		"Directory where fetched dataset snapshots are kept.")
}

// ModifyContext implements cli.ContextModificator.
func (r *baseCommandRun) ModifyContext(ctx context.Context) context.Context {
	return r.logConfig.Set(ctx)
}

func (r *baseCommandRun) done(ctx context.Context, err error) int {
	if err != nil {
		logging.Errorf(ctx, "%s", err)
		return 1
	}
	return 0
}

// defaultCacheDir returns the snapshot cache location used when -cache-dir
// is not passed.
func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "cdcstats")
	}
	return ".cdcstats-cache"
}
