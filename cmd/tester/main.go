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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/daviszhen/colq/pkg/engine"
	"github.com/daviszhen/colq/pkg/util"
)

func init() {
	cobra.OnInitialize(loadConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, default ./tester.toml or etc/tester.toml")
	RootCmd.PersistentFlags().StringVar(&testerCfg.Storage.Root, "db", "", "database root")
	RootCmd.PersistentFlags().StringVar(&testerCfg.Storage.Table, "table", "", "table name")
	RootCmd.PersistentFlags().IntVar(&testerCfg.Engine.Workers, "workers", testerCfg.Engine.Workers, "worker pool size")
	RootCmd.PersistentFlags().BoolVar(&testerCfg.Debug.PrintPlan, "print_plan", false, "log the optimized graph")
	RootCmd.PersistentFlags().IntVar(&testerCfg.Debug.MaxOutputRowCount, "max_rows", testerCfg.Debug.MaxOutputRowCount, "rows to print, 0 prints all")

	viper.BindPFlag("storage.root", RootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("storage.table", RootCmd.PersistentFlags().Lookup("table"))
	viper.BindPFlag("engine.workers", RootCmd.PersistentFlags().Lookup("workers"))
	viper.BindPFlag("debug.printPlan", RootCmd.PersistentFlags().Lookup("print_plan"))
	viper.BindPFlag("debug.maxOutputRowCount", RootCmd.PersistentFlags().Lookup("max_rows"))

	initIngestCmd()
	initInspectCmd()
	initQueryCmd()
	initBenchCmd()
}

var testerCfg = util.DefaultConfig()

var cfgFile string

///root cmd

var info = "tester"
var RootCmd = &cobra.Command{
	Use:          "tester",
	Short:        info,
	Long:         info,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("use tester --help or -h")
	},
}

func initEngineOptions() {
	testerCfg.Engine.Workers = viper.GetInt("engine.workers")
	if viper.IsSet("engine.parallelThreshold") {
		testerCfg.Engine.ParallelThreshold = viper.GetInt("engine.parallelThreshold")
	}
	if viper.IsSet("engine.directArrayMaxSlots") {
		testerCfg.Engine.DirectArrayMaxSlots = viper.GetUint64("engine.directArrayMaxSlots")
	}
	if viper.IsSet("engine.maxGroups") {
		testerCfg.Engine.MaxGroups = viper.GetInt("engine.maxGroups")
	}
}

func initStorageOptions() {
	testerCfg.Storage.Root = viper.GetString("storage.root")
	testerCfg.Storage.Table = viper.GetString("storage.table")
	if viper.IsSet("storage.partitionMode") {
		testerCfg.Storage.PartitionMode = viper.GetString("storage.partitionMode")
	}
}

func initDebugOptions() {
	testerCfg.Debug.PrintPlan = viper.GetBool("debug.printPlan")
	testerCfg.Debug.MaxOutputRowCount = viper.GetInt("debug.maxOutputRowCount")
	if viper.IsSet("debug.printResult") {
		testerCfg.Debug.PrintResult = viper.GetBool("debug.printResult")
	}
	if viper.IsSet("debug.logLevel") {
		testerCfg.Debug.LogLevel = viper.GetString("debug.logLevel")
	}
}

// newEngine applies the merged config and file/flag overrides, then starts
// an engine.
func newEngine() (*engine.Engine, error) {
	initEngineOptions()
	initStorageOptions()
	initDebugOptions()
	return engine.New(testerCfg)
}

func requireDB() error {
	if testerCfg.Storage.Root == "" {
		return fmt.Errorf("--db or storage.root is required")
	}
	if testerCfg.Storage.Table == "" {
		return fmt.Errorf("--table or storage.table is required")
	}
	return nil
}

var defCfgFilePaths = []string{".", "etc"}
var cfgFileName = "tester.toml"

func loadConfig() {
	paths := make([]string, 0, len(defCfgFilePaths)+1)
	if cfgFile != "" {
		paths = append(paths, cfgFile)
	}
	for _, dirPath := range defCfgFilePaths {
		paths = append(paths, filepath.Join(dirPath, cfgFileName))
	}
	for _, fpath := range paths {
		if !util.FileIsValid(fpath) {
			continue
		}
		cfg, err := util.LoadConfig(fpath)
		if err != nil {
			util.Error("load config file failed",
				zap.String("fpath", fpath),
				zap.Error(err))
			continue
		}
		viper.SetConfigFile(fpath)
		if err = viper.ReadInConfig(); err != nil {
			util.Error("viper load config file failed",
				zap.String("fpath", fpath),
				zap.Error(err))
			continue
		}
		//flags bound to viper keep precedence over the file
		*testerCfg = *cfg
		return
	}
	if cfgFile != "" {
		util.Error("config file does not exist", zap.String("fpath", cfgFile))
		os.Exit(1)
	}
	util.Debug("tester.toml does not exist, using defaults")
}

func main() {
	err := RootCmd.Execute()
	_ = util.Logger().Sync()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
