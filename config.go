package main

import (
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// runConfig is the yaml config file: the settings that stay the same run
// after run, so they do not have to be repeated as flags. Flags override
// whatever the file says.
type runConfig struct {
	Budget               string `yaml:"Budget"`
	AssetPrefix          string `yaml:"AssetPrefix"`
	ExpensePrefix        string `yaml:"ExpensePrefix"`
	IncomePrefix         string `yaml:"IncomePrefix"`
	AdjustmentAccount    string `yaml:"AdjustmentAccount"`
	SkipStartingBalances bool   `yaml:"SkipStartingBalances"`
}

func defaultConfig() runConfig {
	return runConfig{
		AssetPrefix:   "Assets",
		ExpensePrefix: "Expenses",
		IncomePrefix:  "Income",
	}
}

// loadConfig reads the yaml config if it exists; a missing file just means
// defaults.
func loadConfig(fileName string) (runConfig, error) {
	cfg := defaultConfig()

	f, err := os.Open(fileName)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "cannot open config file %s", fileName)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "cannot decode config file %s", fileName)
	}
	if cfg.AssetPrefix == "" {
		cfg.AssetPrefix = "Assets"
	}
	if cfg.ExpensePrefix == "" {
		cfg.ExpensePrefix = "Expenses"
	}
	if cfg.IncomePrefix == "" {
		cfg.IncomePrefix = "Income"
	}
	return cfg, nil
}
