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

// Command cdcstats reproduces statistical analyses of NCHS mortality data.
package main

import (
	"os"

	"cloud.google.com/go/bigquery"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/auth/scopes"

	"github.com/openmortality/cdcstats/cli"
)

func main() {
	os.Exit(cli.Main(cli.Params{
		Auth: auth.Options{
			Scopes: []string{bigquery.Scope, scopes.Email},
		},
	}, os.Args[1:]))
}
