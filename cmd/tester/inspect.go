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
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/daviszhen/colq/pkg/engine"
	"github.com/daviszhen/colq/pkg/storage"
)

//inspect cmd

var inspectInfo = "print the partitions of a table and their rows"
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: inspectInfo,
	Long:  inspectInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(os.Stdout)
	},
}

func initInspectCmd() {
	RootCmd.AddCommand(inspectCmd)
}

func printStatuses(w io.Writer, statuses []storage.PartitionStatus) {
	for _, st := range statuses {
		if st.OK() {
			fmt.Fprintf(w, "%s\t%d rows\n", st.Key, st.Rows)
		} else {
			fmt.Fprintf(w, "%s\tfailed: %v\n", st.Key, st.Err)
		}
	}
}

func openDB(e *engine.Engine) (*storage.DB, error) {
	if err := requireDB(); err != nil {
		return nil, err
	}
	return e.OpenDB(testerCfg.Storage.Root)
}

func runInspect(w io.Writer) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	db, err := openDB(e)
	if err != nil {
		return err
	}
	defer db.Close()

	maxRows := testerCfg.Debug.MaxOutputRowCount
	switch testerCfg.Storage.PartitionMode {
	case "split":
		results, err := db.LoadPartitions(testerCfg.Storage.Table)
		if err != nil {
			return err
		}
		for _, res := range results {
			fmt.Fprintf(w, "== %s\n", res.Key)
			if !res.OK() {
				fmt.Fprintf(w, "failed: %v\n", res.Err)
				continue
			}
			err = res.Table.Print(w, maxRows)
			res.Table.Release()
			if err != nil {
				return err
			}
		}
		return nil
	case "concat":
		tab, statuses, err := db.PartLoad(testerCfg.Storage.Table)
		if err != nil {
			return err
		}
		defer tab.Release()
		printStatuses(w, statuses)
		return tab.Print(w, maxRows)
	}
	return fmt.Errorf("unknown partition mode %q", testerCfg.Storage.PartitionMode)
}
