package main

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	mathex "github.com/pkg/math"
)

const (
	// Column layout of a posting line: account left-justified, amount
	// right-justified, so entries stay visually aligned regardless of
	// account name length.
	accountWidth = 50
	amountWidth  = 10

	dateStamp = "2006-01-02"

	// metadataKey is the ledger metadata key carrying the remote id. It is
	// both written on every emitted entry and scanned from the existing
	// journal, which is how dedup state survives between runs.
	metadataKey = "ynab-id"
)

// Literals YNAB uses for its auto-generated entries. Matched verbatim; they
// are service-specific strings, not structure.
const (
	reconciliationPayee  = "Reconciliation Balance Adjustment"
	reconciliationMemo   = "Entered automatically by YNAB"
	startingBalancePayee = "Starting Balance"
)

// fixmeLeg is emitted in place of a second posting when YNAB gives us
// neither a category nor a transfer target. The entry is deliberately left
// broken and visible instead of silently dropping money.
const fixmeLeg = "; FIXME. Could not generate the second leg from YNAB data."

var warnTag = color.New(color.FgHiYellow).Sprint("WARNING:")

// resolveContext carries everything account resolution needs: the prefix
// configuration, the entity lookup tables and the journal-derived overrides.
// It is immutable for the duration of a run.
type resolveContext struct {
	assetPrefix       string
	expensePrefix     string
	incomePrefix      string
	adjustmentAccount string
	commodity         string

	entities *entitySet
	mapping  map[string]string
}

// categoryPath renders a category as Group:Category using the normalized
// names. The id must name a known category.
func (rc *resolveContext) categoryPath(id string) string {
	c := rc.entities.Categories[id]
	g := rc.entities.Groups[c.GroupID]
	return g.Name + ":" + c.Name
}

// resolveAccount maps a remote id to a ledger account path. An explicit
// mapping from the journal always wins. Otherwise accounts become assets,
// the distinguished inflows category becomes income, any other category
// becomes an expense, and an id we cannot place at all is passed through
// verbatim so the output shows exactly what could not be resolved.
func (rc *resolveContext) resolveAccount(id string) string {
	if mapped, ok := rc.mapping[id]; ok {
		return mapped
	}
	if acc, ok := rc.entities.Accounts[id]; ok {
		return rc.assetPrefix + ":" + acc.Name
	}
	if id == rc.entities.InflowsID {
		return rc.incomePrefix + ":" + rc.categoryPath(id)
	}
	if _, ok := rc.entities.Categories[id]; ok {
		return rc.expensePrefix + ":" + rc.categoryPath(id)
	}
	return id
}

// targetAccount picks the account for the non-source leg of a transaction
// or subtransaction. Returns false when YNAB's data cannot produce a valid
// second leg (tracking accounts only); the caller renders a flagged
// placeholder in that case.
//
// YNAB occasionally injects balance adjustments with no meaningful
// category. When the user configured a dedicated account for those, route
// them there instead of polluting categorized totals. Subtransactions have
// no payee, so the special case can never trigger for them.
func (rc *resolveContext) targetAccount(payee, memo, categoryID, transferAccountID string) (string, bool) {
	if payee == reconciliationPayee && memo == reconciliationMemo && rc.adjustmentAccount != "" {
		return rc.adjustmentAccount, true
	}
	if categoryID != "" {
		return rc.resolveAccount(categoryID), true
	}
	if transferAccountID != "" {
		return rc.resolveAccount(transferAccountID), true
	}
	return fixmeLeg, false
}

// importTracker is the set of transaction ids considered already imported.
// Seeded from the journal, grown while emitting. Marks are permanent; there
// is no way to un-import. Not safe to share across budgets.
type importTracker struct {
	seen map[string]struct{}
}

func newImportTracker(seed map[string]struct{}) *importTracker {
	t := &importTracker{seen: make(map[string]struct{}, len(seed))}
	for id := range seed {
		t.seen[id] = struct{}{}
	}
	return t
}

func (t *importTracker) isDuplicate(id string) bool {
	if id == "" {
		return false
	}
	_, ok := t.seen[id]
	return ok
}

func (t *importTracker) markImported(id string) {
	if id == "" {
		return
	}
	t.seen[id] = struct{}{}
}

// formatMilli renders a milliunit amount as a fixed-point decimal using
// integer arithmetic only. Two decimal places normally, three when the
// amount does not land on a minor unit (12500 -> 12.50, 12505 -> 12.505).
func formatMilli(m int64) string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	units := m / 1000
	frac := m % 1000
	if frac%10 == 0 {
		return fmt.Sprintf("%s%d.%02d", sign, units, frac/10)
	}
	return fmt.Sprintf("%s%d.%03d", sign, units, frac)
}

// postingLine renders one aligned posting: indent, account padded to the
// account column, amount right-justified, commodity, optional comment.
// Widths count runes, not bytes, so multibyte account names stay aligned.
func postingLine(account, amount, commodity, comment string) string {
	pad := strings.Repeat(" ", mathex.Max(accountWidth-utf8.RuneCountInString(account), 0))
	line := fmt.Sprintf("  %s%s%*s %s", account, pad, amountWidth, amount, commodity)
	if comment != "" {
		line += " ; " + comment
	}
	return line
}

// formatEntry writes one complete ledger entry: header, id metadata, the
// source posting, then either one posting per split or a single bare leg
// whose amount the ledger format infers. A blank line terminates the entry.
// The entry is assembled in memory and written out whole.
func formatEntry(w io.Writer, rc *resolveContext, t *Transaction) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s * %q", t.Date.Format(dateStamp), t.Payee)
	if t.Memo != "" {
		fmt.Fprintf(&b, " %q", t.Memo)
	}
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "  %s: %q\n", metadataKey, t.ID)
	fmt.Fprintln(&b, postingLine(rc.resolveAccount(t.AccountID), formatMilli(t.Amount), rc.commodity, ""))

	if len(t.Subs) > 0 {
		for i := range t.Subs {
			sub := &t.Subs[i]
			// The stored amount says "decrease the budget by this much";
			// the ledger posting says "increase this account", so flip.
			target, _ := rc.targetAccount("", sub.Memo, sub.CategoryID, sub.TransferAccountID)
			fmt.Fprintln(&b, postingLine(target, formatMilli(-sub.Amount), rc.commodity, sub.Memo))
		}
	} else {
		target, _ := rc.targetAccount(t.Payee, t.Memo, t.CategoryID, t.TransferAccountID)
		fmt.Fprintf(&b, "  %s\n", target)
	}
	fmt.Fprintln(&b)

	_, err := w.Write(b.Bytes())
	return err
}

// converter runs the import pipeline over a fetched snapshot: filter,
// classify, dedup, format, in a deterministic order.
type converter struct {
	rc      *resolveContext
	tracker *importTracker

	skipStartingBalances bool
	since                time.Time // zero means no lower bound
}

// eligible decides whether a transaction can be considered for import at
// all. Only reconciled, undeleted records are immutable enough to emit;
// everything earlier than the since bound is out of scope for this run.
func (c *converter) eligible(t *Transaction) bool {
	if t.Cleared != statusReconciled || t.Deleted {
		return false
	}
	if !c.since.IsZero() && t.Date.Before(c.since) {
		return false
	}
	return true
}

// isStartingBalance recognizes YNAB's auto-generated opening entries. In a
// budget account they are categorized as inflows; in a tracking account
// they have no category at all.
func (c *converter) isStartingBalance(t *Transaction) bool {
	if t.Payee != startingBalancePayee {
		return false
	}
	return t.CategoryID == c.rc.entities.InflowsID || t.CategoryID == ""
}

// run emits ledger text for every importable transaction and returns how
// many were written. Transactions are sorted by date then id first, so the
// output does not depend on transport ordering.
func (c *converter) run(w io.Writer, transactions []Transaction) (int, error) {
	txns := make([]Transaction, len(transactions))
	copy(txns, transactions)
	sort.SliceStable(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.Before(txns[j].Date)
		}
		return txns[i].ID < txns[j].ID
	})

	count := 0
	for i := range txns {
		t := &txns[i]
		if !c.eligible(t) {
			debugf("skipping %s transaction: %s %q", t.Cleared, t.Date.Format(dateStamp), t.Payee)
			continue
		}
		if c.skipStartingBalances && c.isStartingBalance(t) {
			debugf("skipping starting balance: %s %s", t.Date.Format(dateStamp), c.rc.resolveAccount(t.AccountID))
			continue
		}
		if t.CategoryID == "" && t.TransferAccountID == "" && len(t.Subs) == 0 {
			warnf("%s transaction %s %s %q %s has neither a category nor a transfer account; the emitted entry needs manual repair",
				warnTag, t.Date.Format(dateStamp), c.rc.resolveAccount(t.AccountID), t.Payee, formatMilli(t.Amount))
		}
		if c.tracker.isDuplicate(t.ID) || c.tracker.isDuplicate(t.TransferTransactionID) {
			debugf("skipping duplicate transaction: %s %q", t.Date.Format(dateStamp), t.Payee)
			continue
		}

		// Mark both legs of a transfer before writing, so the counterpart
		// seen later in the same run is suppressed.
		c.tracker.markImported(t.ID)
		c.tracker.markImported(t.TransferTransactionID)
		for j := range t.Subs {
			c.tracker.markImported(t.Subs[j].TransferTransactionID)
		}

		if err := formatEntry(w, c.rc, t); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
