package main

import (
	"bytes"
	"flag"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
)

var (
	debug   = flag.Bool("debug", false, "Print per-transaction skip/duplicate decisions to stderr.")
	verbose = flag.Bool("verbose", false, "Mildly verbose progress logging to stderr.")

	journalFile = flag.String("j", "", "Existing ledger journal to read account mappings and seen ids from.")
	output      = flag.String("o", "", "Append output to this file instead of printing to stdout.")
	confFile    = flag.String("conf", "ynab2ledger.yaml", "Config file with prefixes and other stable settings.")

	tokenFlag  = flag.String("token", "", "YNAB API token. Falls back to $"+tokenEnvVar+", then the OS keyring.")
	budgetFlag = flag.String("budget", "", "Name of the budget to use. Only needed with multiple budgets.")
	sinceFlag  = flag.String("since", "", "Format: YYYY-MM-DD. Only consider transactions on or after this date.")

	listIDsFlag  = flag.Bool("list-ids", false, "Instead of importing, list every remote id with its resolved name and mapping.")
	skipStarting = flag.Bool("skip-starting-balances", false, "Ignore YNAB's auto-generated starting balance entries.")
	adjustFlag   = flag.String("adjustment-account", "", "Account for YNAB's automatic reconciliation balance adjustments.")

	parallel  = flag.Bool("parallel", true, "Fetch accounts, categories and transactions concurrently.")
	cacheFile = flag.String("cache", "", "Path of a bolt file to cache fetched snapshots in.")
	cached    = flag.Bool("cached", false, "Serve the snapshot from the cache instead of the network (needs -cache).")

	assetsFlag   = flag.String("assets", "", "Prefix for asset account paths (default from config, else Assets).")
	expensesFlag = flag.String("expenses", "", "Prefix for expense account paths (default from config, else Expenses).")
	incomeFlag   = flag.String("income", "", "Prefix for income account paths (default from config, else Income).")
)

func checkf(err error, format string, args ...interface{}) {
	if err != nil {
		log.Printf(format, args...)
		log.Println()
		log.Fatalf("%+v", errors.WithStack(err))
	}
}

func debugf(format string, args ...interface{}) {
	if *debug {
		log.Printf(format, args...)
	}
}

func verbosef(format string, args ...interface{}) {
	if *verbose || *debug {
		log.Printf(format, args...)
	}
}

func warnf(format string, args ...interface{}) {
	log.Printf(format, args...)
}

func main() {
	flag.Parse()
	log.SetFlags(0)

	cfg, err := loadConfig(*confFile)
	checkf(err, "Unable to load config")
	if *budgetFlag != "" {
		cfg.Budget = *budgetFlag
	}
	if *adjustFlag != "" {
		cfg.AdjustmentAccount = *adjustFlag
	}
	if *skipStarting {
		cfg.SkipStartingBalances = true
	}
	if *assetsFlag != "" {
		cfg.AssetPrefix = *assetsFlag
	}
	if *expensesFlag != "" {
		cfg.ExpensePrefix = *expensesFlag
	}
	if *incomeFlag != "" {
		cfg.IncomePrefix = *incomeFlag
	}

	var since time.Time
	if *sinceFlag != "" {
		since, err = time.Parse(dateStamp, *sinceFlag)
		checkf(err, "Unable to parse -since date %q, want YYYY-MM-DD", *sinceFlag)
		verbosef("Only considering transactions since %s.", *sinceFlag)
	}

	jrnl, err := loadJournal(*journalFile)
	checkf(err, "Unable to parse journal %s", *journalFile)
	debugf("Journal holds %d account mappings and %d seen transactions.", len(jrnl.AccountMapping), len(jrnl.SeenIDs))

	if *cached && *cacheFile == "" {
		checkf(&ConfigurationError{Reason: "-cached requires -cache"}, "Bad flags")
	}

	var f fetcher
	if !*cached {
		token, tokenErr := resolveToken(*tokenFlag)
		checkf(tokenErr, "Unable to resolve API token")
		client := newAPIClient(defaultAPIBase, token)
		if *parallel {
			verbosef("Using parallel fetcher.")
			f = &parallelFetcher{client: client}
		} else {
			verbosef("Using serial fetcher.")
			f = &serialFetcher{client: client}
		}
	}
	if *cacheFile != "" {
		f = &cachingFetcher{path: *cacheFile, inner: f, useCached: *cached}
	}

	snap, err := f.Fetch(cfg.Budget, *sinceFlag)
	checkf(err, "Unable to fetch budget data")
	verbosef("Fetched budget %q with %d accounts, %d categories, %d transactions.",
		snap.Budget.Name, len(snap.Accounts), len(snap.Categories), len(snap.Transactions))

	entities, err := newEntitySet(snap.Accounts, snap.Groups, snap.Categories)
	checkf(err, "Unable to resolve budget entities")

	rc := &resolveContext{
		assetPrefix:       cfg.AssetPrefix,
		expensePrefix:     cfg.ExpensePrefix,
		incomePrefix:      cfg.IncomePrefix,
		adjustmentAccount: cfg.AdjustmentAccount,
		commodity:         snap.Budget.Currency.ISOCode,
		entities:          entities,
		mapping:           jrnl.AccountMapping,
	}

	if *listIDsFlag {
		listIDs(os.Stdout, rc)
		return
	}

	conv := &converter{
		rc:                   rc,
		tracker:              newImportTracker(jrnl.SeenIDs),
		skipStartingBalances: cfg.SkipStartingBalances,
		since:                since,
	}

	// Buffer the whole run so a failure emits nothing rather than a
	// partial ledger fragment.
	var buf bytes.Buffer
	count, err := conv.run(&buf, snap.Transactions)
	checkf(err, "Import failed")

	if *output == "" {
		_, err = os.Stdout.Write(buf.Bytes())
		checkf(err, "Unable to write output")
	} else {
		of, openErr := os.OpenFile(*output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		checkf(openErr, "Unable to open output file %s", *output)
		_, err = of.Write(buf.Bytes())
		checkf(err, "Unable to write output file %s", *output)
		checkf(of.Close(), "Unable to close output file %s", *output)
	}

	verbosef("Imported %d new transactions.", count)
}
