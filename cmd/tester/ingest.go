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
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/ingest"
	"github.com/daviszhen/colq/pkg/storage"
	"github.com/daviszhen/colq/pkg/util"
)

var ingestOpts struct {
	path      string
	format    string
	partition string
	columns   []string
	types     []string
	delimiter string
}

//ingest cmd

var ingestInfo = "load a csv or parquet file into one partition of a table"
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: ingestInfo,
	Long:  ingestInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest()
	},
}

func initIngestCmd() {
	RootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestOpts.path, "data_path", "", "input file")
	ingestCmd.Flags().StringVar(&ingestOpts.format, "data_format", "", "csv, parquet. Guessed from the extension when empty")
	ingestCmd.Flags().StringVar(&ingestOpts.partition, "partition", "", "partition key, e.g. 2024.01.02")
	ingestCmd.Flags().StringSliceVar(&ingestOpts.columns, "columns", nil, "parquet columns to read")
	ingestCmd.Flags().StringSliceVar(&ingestOpts.types, "types", nil, "csv column types, name:type")
	ingestCmd.Flags().StringVar(&ingestOpts.delimiter, "delimiter", ",", "csv delimiter")
}

func readInput() (*chunk.Table, error) {
	format := ingestOpts.format
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(ingestOpts.path)), ".")
	}
	switch format {
	case "csv":
		opts := ingest.Options{Types: make(map[string]common.TypeId)}
		if ingestOpts.delimiter != "" {
			opts.Comma = []rune(ingestOpts.delimiter)[0]
		}
		for _, field := range ingestOpts.types {
			name, typ, ok := strings.Cut(field, ":")
			if !ok {
				return nil, fmt.Errorf("type %q is not name:type", field)
			}
			id, err := common.ParseTypeId(typ)
			if err != nil {
				return nil, err
			}
			opts.Types[name] = id
		}
		return ingest.ReadCSV(ingestOpts.path, opts)
	case "parquet":
		return ingest.ReadParquet(ingestOpts.path, ingestOpts.columns)
	}
	return nil, fmt.Errorf("unsupported data format %q", format)
}

func runIngest() error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	if err = requireDB(); err != nil {
		return err
	}
	if ingestOpts.partition == "" {
		return fmt.Errorf("--partition is required")
	}

	//symbols of the db come first, the input interns on top of them
	root := testerCfg.Storage.Root
	var db *storage.DB
	if util.FileIsValid(filepath.Join(root, storage.SymFile)) {
		db, err = e.OpenDB(root)
	} else {
		db, err = storage.CreateDB(root, storage.WithPool(e.Pool()))
	}
	if err != nil {
		return err
	}
	defer db.Close()

	tab, err := readInput()
	if err != nil {
		return err
	}
	defer tab.Release()
	if err = db.SavePartition(ingestOpts.partition, testerCfg.Storage.Table, tab); err != nil {
		return err
	}
	util.Info("ingested",
		zap.String("path", ingestOpts.path),
		zap.String("partition", ingestOpts.partition),
		zap.String("table", testerCfg.Storage.Table),
		zap.Int("rows", tab.RowCount()),
		zap.Strings("columns", tab.Names()))
	return nil
}
