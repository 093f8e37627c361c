package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const defaultAPIBase = "https://api.youneedabudget.com/v1/budgets"

// Wire-format records as the API serves them. Nullable fields are pointers
// here and collapse to zero values in the typed records; nothing outside
// this file touches the wire shapes.

type wireCurrencyFormat struct {
	ISOCode string `json:"iso_code"`
}

type wireBudget struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	CurrencyFormat wireCurrencyFormat `json:"currency_format"`
}

type wireAccount struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	OnBudget bool   `json:"on_budget"`
	Closed   bool   `json:"closed"`
}

type wireCategory struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	GroupID string `json:"category_group_id"`
}

type wireCategoryGroup struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Categories []wireCategory `json:"categories"`
}

type wireSubtransaction struct {
	ID                    string  `json:"id"`
	Amount                int64   `json:"amount"`
	Memo                  *string `json:"memo"`
	CategoryID            *string `json:"category_id"`
	TransferAccountID     *string `json:"transfer_account_id"`
	TransferTransactionID *string `json:"transfer_transaction_id"`
}

type wireTransaction struct {
	ID                    string               `json:"id"`
	Date                  string               `json:"date"`
	Amount                int64                `json:"amount"`
	PayeeName             *string              `json:"payee_name"`
	Memo                  *string              `json:"memo"`
	Cleared               string               `json:"cleared"`
	Deleted               bool                 `json:"deleted"`
	AccountID             string               `json:"account_id"`
	CategoryID            *string              `json:"category_id"`
	TransferAccountID     *string              `json:"transfer_account_id"`
	TransferTransactionID *string              `json:"transfer_transaction_id"`
	Subtransactions       []wireSubtransaction `json:"subtransactions"`
}

type budgetsResponse struct {
	Data struct {
		Budgets []wireBudget `json:"budgets"`
	} `json:"data"`
}

type accountsResponse struct {
	Data struct {
		Accounts []wireAccount `json:"accounts"`
	} `json:"data"`
}

type categoriesResponse struct {
	Data struct {
		CategoryGroups []wireCategoryGroup `json:"category_groups"`
	} `json:"data"`
}

type transactionsResponse struct {
	Data struct {
		Transactions []wireTransaction `json:"transactions"`
	} `json:"data"`
}

// snapshot is one fetch's worth of remote state, fully converted to typed
// records. The core only ever sees snapshots.
type snapshot struct {
	Budget       Budget
	Accounts     map[string]Account
	Groups       map[string]CategoryGroup
	Categories   map[string]Category
	Transactions []Transaction
}

// fetcher produces a snapshot for the named budget. The core does not care
// whether requests ran serially, in parallel, or came from a cache.
type fetcher interface {
	Fetch(budgetName, since string) (*snapshot, error)
}

type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) get(path string, out interface{}) error {
	url := c.baseURL + path
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return errors.Wrapf(err, "unable to build request for %s", url)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "request to %s failed", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("API error for %s: %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "unable to decode response from %s", url)
	}
	return nil
}

// selectBudget implements the selection rules: a lone budget needs no name,
// multiple budgets need an exact name match.
func selectBudget(budgets []wireBudget, name string) (wireBudget, error) {
	if len(budgets) == 0 {
		return wireBudget{}, &ConfigurationError{Reason: "the API returned no budgets for this token"}
	}
	if len(budgets) == 1 {
		return budgets[0], nil
	}
	if name == "" {
		names := make([]string, 0, len(budgets))
		for _, b := range budgets {
			names = append(names, b.Name)
		}
		return wireBudget{}, &ConfigurationError{
			Reason: fmt.Sprintf("multiple budgets and none selected, pick one of: %s", strings.Join(names, ", ")),
		}
	}
	var matches []wireBudget
	for _, b := range budgets {
		if b.Name == name {
			matches = append(matches, b)
		}
	}
	if len(matches) != 1 {
		return wireBudget{}, &ConfigurationError{
			Reason: fmt.Sprintf("expected exactly one budget named %q, found %d", name, len(matches)),
		}
	}
	return matches[0], nil
}

func transactionsPath(budgetID, since string) string {
	p := "/" + budgetID + "/transactions"
	if since != "" {
		p += "?since_date=" + since
	}
	return p
}

// serialFetcher issues one request at a time, in dependency order.
type serialFetcher struct {
	client *apiClient
}

func (f *serialFetcher) Fetch(budgetName, since string) (*snapshot, error) {
	var budgets budgetsResponse
	if err := f.client.get("", &budgets); err != nil {
		return nil, err
	}
	budget, err := selectBudget(budgets.Data.Budgets, budgetName)
	if err != nil {
		return nil, err
	}

	var accounts accountsResponse
	if err := f.client.get("/"+budget.ID+"/accounts", &accounts); err != nil {
		return nil, err
	}
	var categories categoriesResponse
	if err := f.client.get("/"+budget.ID+"/categories", &categories); err != nil {
		return nil, err
	}
	var transactions transactionsResponse
	if err := f.client.get(transactionsPath(budget.ID, since), &transactions); err != nil {
		return nil, err
	}

	return buildSnapshot(budget, accounts.Data.Accounts, categories.Data.CategoryGroups, transactions.Data.Transactions)
}

// parallelFetcher looks up the budget first, then fetches accounts,
// categories and transactions concurrently. Produces the exact same
// snapshot as the serial fetcher; only wall-clock time differs.
type parallelFetcher struct {
	client *apiClient
}

func (f *parallelFetcher) Fetch(budgetName, since string) (*snapshot, error) {
	var budgets budgetsResponse
	if err := f.client.get("", &budgets); err != nil {
		return nil, err
	}
	budget, err := selectBudget(budgets.Data.Budgets, budgetName)
	if err != nil {
		return nil, err
	}

	var (
		accounts     accountsResponse
		categories   categoriesResponse
		transactions transactionsResponse

		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fetch := func(path string, out interface{}) {
		defer wg.Done()
		if err := f.client.get(path, out); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	wg.Add(3)
	go fetch("/"+budget.ID+"/accounts", &accounts)
	go fetch("/"+budget.ID+"/categories", &categories)
	go fetch(transactionsPath(budget.ID, since), &transactions)
	wg.Wait()

	if len(errs) > 0 {
		return nil, errs[0]
	}
	return buildSnapshot(budget, accounts.Data.Accounts, categories.Data.CategoryGroups, transactions.Data.Transactions)
}

// buildSnapshot converts wire records to typed records. Display names are
// normalized here, once, so every later comparison sees the same tokens.
func buildSnapshot(budget wireBudget, accounts []wireAccount, groups []wireCategoryGroup, transactions []wireTransaction) (*snapshot, error) {
	s := &snapshot{
		Budget: Budget{
			ID:       budget.ID,
			Name:     budget.Name,
			Currency: CurrencyFormat{ISOCode: budget.CurrencyFormat.ISOCode},
		},
		Accounts:   make(map[string]Account, len(accounts)),
		Groups:     make(map[string]CategoryGroup, len(groups)),
		Categories: make(map[string]Category),
	}

	for _, a := range accounts {
		s.Accounts[a.ID] = Account{
			ID:       a.ID,
			Name:     normalizeName(a.Name),
			Type:     a.Type,
			OnBudget: a.OnBudget,
			Closed:   a.Closed,
		}
	}

	// Categories arrive nested under their group; flatten both levels.
	for _, g := range groups {
		group := CategoryGroup{
			ID:   g.ID,
			Name: normalizeName(g.Name),
		}
		for _, c := range g.Categories {
			group.CategoryIDs = append(group.CategoryIDs, c.ID)
			s.Categories[c.ID] = Category{
				ID:      c.ID,
				Name:    normalizeName(c.Name),
				GroupID: g.ID,
			}
		}
		s.Groups[g.ID] = group
	}

	s.Transactions = make([]Transaction, 0, len(transactions))
	for _, t := range transactions {
		date, err := time.Parse(dateStamp, t.Date)
		if err != nil {
			// A date we cannot parse would end up on a ledger entry; abort
			// instead of emitting a mis-dated posting.
			return nil, errors.Wrapf(err, "transaction %s has an unparseable date %q", t.ID, t.Date)
		}
		txn := Transaction{
			ID:                    t.ID,
			Date:                  date,
			Payee:                 deref(t.PayeeName),
			Memo:                  deref(t.Memo),
			Amount:                t.Amount,
			AccountID:             t.AccountID,
			CategoryID:            deref(t.CategoryID),
			TransferAccountID:     deref(t.TransferAccountID),
			TransferTransactionID: deref(t.TransferTransactionID),
			Cleared:               ClearedStatus(t.Cleared),
			Deleted:               t.Deleted,
		}
		for _, sub := range t.Subtransactions {
			txn.Subs = append(txn.Subs, Subtransaction{
				ID:                    sub.ID,
				Amount:                sub.Amount,
				Memo:                  deref(sub.Memo),
				CategoryID:            deref(sub.CategoryID),
				TransferAccountID:     deref(sub.TransferAccountID),
				TransferTransactionID: deref(sub.TransferTransactionID),
			})
		}
		s.Transactions = append(s.Transactions, txn)
	}

	return s, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
