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

package dataset

// Source identifies one fetchable CDC dataset.
type Source struct {
	ID          string // registry key, used on the command line and in study configs
	SocrataID   string // data.cdc.gov dataset identifier
	Name        string // dataset title as published by NCHS
	Description string
	URL         string // where the CSV export lives
}

// SocrataURL returns the CSV export URL for a data.cdc.gov dataset.
func SocrataURL(socrataID string) string {
	return "https://data.cdc.gov/api/views/" + socrataID + "/rows.csv"
}

// builtin is the dataset registry, ordered by ID.
var builtin = []Source{
	{
		ID:          "covid-age-sex",
		SocrataID:   "9bhg-hcku",
		Name:        "Provisional COVID-19 Deaths by Sex and Age",
		Description: "Deaths involving COVID-19, pneumonia and influenza by sex and age group.",
	},
	{
		ID:          "covid-conditions",
		SocrataID:   "hk9y-quqm",
		Name:        "Conditions Contributing to COVID-19 Deaths, by State and Age",
		Description: "Conditions mentioned on death certificates of deaths involving COVID-19.",
	},
	{
		ID:          "weekly-deaths",
		SocrataID:   "muzy-jte6",
		Name:        "Weekly Counts of Deaths by State and Select Causes, 2020-2023",
		Description: "Provisional weekly death counts by jurisdiction and select causes.",
	},
	{
		ID:          "weekly-deaths-baseline",
		SocrataID:   "3yf8-kanr",
		Name:        "Weekly Counts of Deaths by State and Select Causes, 2014-2019",
		Description: "Final weekly death counts for the pre-pandemic baseline years.",
	},
}

// Sources returns the built-in dataset registry, ordered by ID.
func Sources() []Source {
	out := make([]Source, len(builtin))
	for i, s := range builtin {
		out[i] = s
		out[i].URL = SocrataURL(s.SocrataID)
	}
	return out
}

// SourceByID looks a dataset up by its registry key.
func SourceByID(id string) (Source, bool) {
	for _, s := range builtin {
		if s.ID == id {
			s.URL = SocrataURL(s.SocrataID)
			return s, true
		}
	}
	return Source{}, false
}
