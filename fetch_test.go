package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

const budgetsJSON = `{"data":{"budgets":[
  {"id":"b1","name":"Personal","currency_format":{"iso_code":"USD"}},
  {"id":"b2","name":"Work","currency_format":{"iso_code":"EUR"}}
]}}`

const accountsJSON = `{"data":{"accounts":[
  {"id":"acct-1","name":"Joe's Checking","type":"checking","on_budget":true,"closed":false},
  {"id":"acct-2","name":"Brokerage","type":"otherAsset","on_budget":false,"closed":false}
]}}`

const categoriesJSON = `{"data":{"category_groups":[
  {"id":"g1","name":"Internal Master Category","categories":[
    {"id":"c1","name":"Inflows","category_group_id":"g1"}
  ]},
  {"id":"g2","name":"Monthly Bills","categories":[
    {"id":"c2","name":"Rent/Mortgage","category_group_id":"g2"}
  ]}
]}}`

const transactionsJSON = `{"data":{"transactions":[
  {"id":"t1","date":"2024-01-15","amount":12500,"payee_name":"Paycheck","memo":null,
   "cleared":"reconciled","deleted":false,"account_id":"acct-1","category_id":"c1",
   "transfer_account_id":null,"transfer_transaction_id":null,"subtransactions":[]},
  {"id":"t2","date":"2024-01-20","amount":-8000,"payee_name":"Superstore","memo":"split",
   "cleared":"cleared","deleted":false,"account_id":"acct-1","category_id":null,
   "transfer_account_id":null,"transfer_transaction_id":null,"subtransactions":[
     {"id":"s1","amount":5000,"memo":"rent","category_id":"c2",
      "transfer_account_id":null,"transfer_transaction_id":null},
     {"id":"s2","amount":3000,"memo":null,"category_id":null,
      "transfer_account_id":"acct-2","transfer_transaction_id":"t9"}
   ]}
]}}`

// testAPIServer serves the canned fixtures and records the query string of
// the transactions request.
func testAPIServer(t *testing.T) (*httptest.Server, func() string) {
	t.Helper()

	var mu sync.Mutex
	var txnQuery string

	requireAuth := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return false
		}
		return true
	}
	serve := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !requireAuth(w, r) {
				return
			}
			fmt.Fprint(w, body)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/b1/accounts", serve(accountsJSON))
	mux.HandleFunc("/b1/categories", serve(categoriesJSON))
	mux.HandleFunc("/b1/transactions", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r) {
			return
		}
		mu.Lock()
		txnQuery = r.URL.RawQuery
		mu.Unlock()
		fmt.Fprint(w, transactionsJSON)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, budgetsJSON)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	lastTxnQuery := func() string {
		mu.Lock()
		defer mu.Unlock()
		return txnQuery
	}
	return srv, lastTxnQuery
}

func TestSerialFetcher(t *testing.T) {
	srv, _ := testAPIServer(t)
	f := &serialFetcher{client: newAPIClient(srv.URL, testToken)}

	snap, err := f.Fetch("Personal", "")
	require.NoError(t, err)

	assert.Equal(t, "b1", snap.Budget.ID)
	assert.Equal(t, "USD", snap.Budget.Currency.ISOCode)

	require.Contains(t, snap.Accounts, "acct-1")
	assert.Equal(t, "Joes-Checking", snap.Accounts["acct-1"].Name)
	assert.True(t, snap.Accounts["acct-1"].OnBudget)

	require.Contains(t, snap.Groups, "g2")
	assert.Equal(t, "Monthly-Bills", snap.Groups["g2"].Name)
	assert.Equal(t, []string{"c2"}, snap.Groups["g2"].CategoryIDs)
	require.Contains(t, snap.Categories, "c2")
	assert.Equal(t, "RentMortgage", snap.Categories["c2"].Name)
	assert.Equal(t, "g2", snap.Categories["c2"].GroupID)

	require.Len(t, snap.Transactions, 2)
	t1 := snap.Transactions[0]
	assert.Equal(t, "t1", t1.ID)
	assert.Equal(t, "2024-01-15", t1.Date.Format(dateStamp))
	assert.Equal(t, int64(12500), t1.Amount)
	assert.Equal(t, "Paycheck", t1.Payee)
	assert.Equal(t, "", t1.Memo)
	assert.Equal(t, statusReconciled, t1.Cleared)

	t2 := snap.Transactions[1]
	require.Len(t, t2.Subs, 2)
	assert.Equal(t, "c2", t2.Subs[0].CategoryID)
	assert.Equal(t, "", t2.Subs[1].Memo)
	assert.Equal(t, "acct-2", t2.Subs[1].TransferAccountID)
	assert.Equal(t, "t9", t2.Subs[1].TransferTransactionID)
}

func TestParallelFetcherMatchesSerial(t *testing.T) {
	srv, _ := testAPIServer(t)
	client := newAPIClient(srv.URL, testToken)

	serial, err := (&serialFetcher{client: client}).Fetch("Personal", "2024-01-01")
	require.NoError(t, err)
	parallel, err := (&parallelFetcher{client: client}).Fetch("Personal", "2024-01-01")
	require.NoError(t, err)

	assert.Equal(t, serial, parallel)
}

func TestFetchForwardsSinceDate(t *testing.T) {
	srv, lastTxnQuery := testAPIServer(t)
	f := &serialFetcher{client: newAPIClient(srv.URL, testToken)}

	_, err := f.Fetch("Personal", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, "since_date=2024-01-01", lastTxnQuery())

	_, err = f.Fetch("Personal", "")
	require.NoError(t, err)
	assert.Equal(t, "", lastTxnQuery())
}

func TestFetchBadToken(t *testing.T) {
	srv, _ := testAPIServer(t)
	f := &serialFetcher{client: newAPIClient(srv.URL, "wrong")}

	_, err := f.Fetch("Personal", "")
	assert.Error(t, err)
}

func TestBuildSnapshotRejectsBadDate(t *testing.T) {
	budget := wireBudget{ID: "b1", Name: "Personal"}
	txns := []wireTransaction{
		{ID: "t-good", Date: "2024-01-15", Amount: 1000, Cleared: "reconciled", AccountID: "acct-1"},
		{ID: "t-bad", Date: "01/15/2024", Amount: 1000, Cleared: "reconciled", AccountID: "acct-1"},
	}

	_, err := buildSnapshot(budget, nil, nil, txns)
	require.Error(t, err, "a transaction date we cannot parse must fail the fetch, not produce a mis-dated posting")
	assert.Contains(t, err.Error(), "t-bad")
	assert.Contains(t, err.Error(), "01/15/2024")
}

func TestSelectBudget(t *testing.T) {
	one := []wireBudget{{ID: "b1", Name: "Personal"}}
	two := []wireBudget{{ID: "b1", Name: "Personal"}, {ID: "b2", Name: "Work"}}
	dup := []wireBudget{{ID: "b1", Name: "Personal"}, {ID: "b3", Name: "Personal"}}

	tests := []struct {
		name    string
		budgets []wireBudget
		pick    string
		wantID  string
		wantErr bool
	}{
		{"single budget needs no name", one, "", "b1", false},
		{"single budget ignores name", one, "Anything", "b1", false},
		{"multiple budgets need a name", two, "", "", true},
		{"exact name match", two, "Work", "b2", false},
		{"unknown name", two, "Household", "", true},
		{"ambiguous name", dup, "Personal", "", true},
		{"no budgets at all", nil, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := selectBudget(tt.budgets, tt.pick)
			if tt.wantErr {
				require.Error(t, err)
				var ce *ConfigurationError
				assert.True(t, errors.As(err, &ce), "want a ConfigurationError, got %T", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, b.ID)
		})
	}
}
