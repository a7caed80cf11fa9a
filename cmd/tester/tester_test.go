// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) {
	dir := t.TempDir()
	viper.Set("storage.root", filepath.Join(dir, "db"))
	viper.Set("storage.table", "t")
	viper.Set("debug.maxOutputRowCount", 0)
	viper.Set("debug.logLevel", "warn")
	viper.Set("storage.partitionMode", "concat")

	day1 := filepath.Join(dir, "day1.csv")
	require.NoError(t, os.WriteFile(day1, []byte("id,val\na,10\na,20\nb,30\nb,40\n"), 0644))
	day2 := filepath.Join(dir, "day2.csv")
	require.NoError(t, os.WriteFile(day2, []byte("id,val\nc,5\na,1\n"), 0644))

	ingestOpts.path, ingestOpts.partition = day1, "2024.01.01"
	require.NoError(t, runIngest())
	ingestOpts.path, ingestOpts.partition = day2, "2024.01.02"
	require.NoError(t, runIngest())
}

func Test_ingestQuery(t *testing.T) {
	setupDB(t)
	queryOpts.by = []string{"id"}
	queryOpts.aggs = []string{"sum:val"}
	queryOpts.sort = []string{"sum_val"}
	queryOpts.desc = true
	queryOpts.head = 2
	t.Cleanup(func() {
		queryOpts.by, queryOpts.aggs, queryOpts.sort = nil, nil, nil
		queryOpts.desc, queryOpts.head = false, 0
	})

	out := &bytes.Buffer{}
	require.NoError(t, runQuery(out))
	assert.Equal(t, "id\tsum_val\nb\t70\na\t31\n", out.String())

	queryOpts.aggs = []string{"median:val"}
	assert.Error(t, runQuery(&bytes.Buffer{}))
}

func Test_inspect(t *testing.T) {
	setupDB(t)

	out := &bytes.Buffer{}
	require.NoError(t, runInspect(out))
	assert.Equal(t, "2024.01.01\t4 rows\n"+
		"2024.01.02\t2 rows\n"+
		"partition\tid\tval\n"+
		"2024.01.01\ta\t10\n"+
		"2024.01.01\ta\t20\n"+
		"2024.01.01\tb\t30\n"+
		"2024.01.01\tb\t40\n"+
		"2024.01.02\tc\t5\n"+
		"2024.01.02\ta\t1\n", out.String())

	viper.Set("storage.partitionMode", "split")
	out.Reset()
	require.NoError(t, runInspect(out))
	assert.Equal(t, "== 2024.01.01\n"+
		"id\tval\n"+
		"a\t10\n"+
		"a\t20\n"+
		"b\t30\n"+
		"b\t40\n"+
		"== 2024.01.02\n"+
		"id\tval\n"+
		"c\t5\n"+
		"a\t1\n", out.String())
}

func Test_requireDB(t *testing.T) {
	viper.Set("storage.root", "")
	viper.Set("storage.table", "")
	assert.Error(t, runInspect(&bytes.Buffer{}))
}
