package main

import (
	"fmt"
	"strings"
	"time"
)

// ClearedStatus is YNAB's confidence level for a transaction. Only
// reconciled transactions are treated as immutable and imported.
type ClearedStatus string

const (
	statusUncleared  ClearedStatus = "uncleared"
	statusCleared    ClearedStatus = "cleared"
	statusReconciled ClearedStatus = "reconciled"
)

// Names YNAB uses for its built-in group and category. All inflows land in
// this category unless the user recategorizes them.
const (
	internalMasterGroupName = "Internal Master Category"
	inflowsCategoryName     = "Inflows"
)

type CurrencyFormat struct {
	ISOCode string
}

type Budget struct {
	ID       string
	Name     string
	Currency CurrencyFormat
}

// Account is a budget or tracking account. Name is stored normalized.
type Account struct {
	ID       string
	Name     string
	Type     string
	OnBudget bool
	Closed   bool
}

type CategoryGroup struct {
	ID          string
	Name        string
	CategoryIDs []string
}

type Category struct {
	ID      string
	Name    string
	GroupID string
}

// Transaction amounts are milliunits: 1/1000 of the currency's minor unit.
type Transaction struct {
	ID                    string
	Date                  time.Time
	Payee                 string
	Memo                  string
	Amount                int64
	AccountID             string
	CategoryID            string
	TransferAccountID     string
	TransferTransactionID string
	Cleared               ClearedStatus
	Deleted               bool
	Subs                  []Subtransaction
}

// Subtransaction is one split of a parent transaction. It has no payee and
// inherits the parent's account. Its stored amount is budget-relative and
// must be negated when rendered as a ledger posting.
type Subtransaction struct {
	ID                    string
	Amount                int64
	Memo                  string
	CategoryID            string
	TransferAccountID     string
	TransferTransactionID string
}

// ConfigurationError is a user input problem (bad budget name, ambiguous
// budget selection). Fatal before any fetch or output.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

// ResolutionError means the remote data did not have the shape we require:
// the Internal Master Category group or its Inflows category was missing or
// ambiguous. Fatal before any output.
type ResolutionError struct {
	Reason string
}

func (e *ResolutionError) Error() string {
	return e.Reason
}

// normalizeName turns a display name into a ledger account path segment:
// ASCII punctuation is stripped and spaces become dashes. Applied to every
// account, group and category name at the fetch boundary so comparisons and
// rendering always see the same token.
func normalizeName(name string) string {
	stripped := strings.Map(func(r rune) rune {
		if strings.ContainsRune("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", r) {
			return -1
		}
		return r
	}, name)
	return strings.ReplaceAll(stripped, " ", "-")
}

// entitySet holds every remote record by id plus the two distinguished
// identifiers needed for routing inflows.
type entitySet struct {
	Accounts   map[string]Account
	Groups     map[string]CategoryGroup
	Categories map[string]Category

	InternalMasterID string
	InflowsID        string
}

// newEntitySet builds the lookup tables and locates the Internal Master
// Category group and its Inflows category. Zero or multiple matches for
// either is a hard failure: it means YNAB changed the data shape we rely on.
func newEntitySet(accounts map[string]Account, groups map[string]CategoryGroup, categories map[string]Category) (*entitySet, error) {
	es := &entitySet{
		Accounts:   accounts,
		Groups:     groups,
		Categories: categories,
	}

	wantGroup := normalizeName(internalMasterGroupName)
	var groupMatches []string
	for id, g := range groups {
		if g.Name == wantGroup {
			groupMatches = append(groupMatches, id)
		}
	}
	if len(groupMatches) != 1 {
		return nil, &ResolutionError{
			Reason: fmt.Sprintf("expected exactly one %q group, found %d", internalMasterGroupName, len(groupMatches)),
		}
	}
	es.InternalMasterID = groupMatches[0]

	wantCategory := normalizeName(inflowsCategoryName)
	var categoryMatches []string
	for id, c := range categories {
		if c.Name == wantCategory && c.GroupID == es.InternalMasterID {
			categoryMatches = append(categoryMatches, id)
		}
	}
	if len(categoryMatches) != 1 {
		return nil, &ResolutionError{
			Reason: fmt.Sprintf("expected exactly one %q category under %q, found %d", inflowsCategoryName, internalMasterGroupName, len(categoryMatches)),
		}
	}
	es.InflowsID = categoryMatches[0]

	return es, nil
}
