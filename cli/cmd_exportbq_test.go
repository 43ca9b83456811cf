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
	"testing"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"

	"github.com/openmortality/cdcstats/bqexport"
)

func TestExportBQValidate(t *testing.T) {
	t.Parallel()

	base := func() *exportBQRun {
		r := &exportBQRun{table: "open-mortality.mortality.excess_weekly"}
		r.studyPath = "study.yaml"
		r.batchSize = bqexport.DefaultBatchSize
		return r
	}

	ftt.Run("Validate", t, func(t *ftt.Test) {
		t.Run("Valid flags", func(t *ftt.Test) {
			assert.Loosely(t, base().validate(nil), should.BeNil)
		})

		t.Run("Rejects positional arguments", func(t *ftt.Test) {
			assert.Loosely(t, base().validate([]string{"extra"}),
				should.ErrLike("unexpected positional arguments"))
		})

		t.Run("-study is required", func(t *ftt.Test) {
			r := base()
			r.studyPath = ""
			assert.Loosely(t, r.validate(nil), should.ErrLike("-study is required"))
		})

		t.Run("-table is required", func(t *ftt.Test) {
			r := base()
			r.table = ""
			assert.Loosely(t, r.validate(nil), should.ErrLike("-table is required"))
		})

		t.Run("-table must be fully qualified", func(t *ftt.Test) {
			r := base()
			r.table = "mortality.excess_weekly"
			assert.Loosely(t, r.validate(nil), should.ErrLike("table reference"))
		})

		t.Run("-batch-size must be positive", func(t *ftt.Test) {
			r := base()
			r.batchSize = 0
			assert.Loosely(t, r.validate(nil), should.ErrLike("-batch-size must be positive"))
		})
	})
}
