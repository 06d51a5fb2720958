package chart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, repo *stubRepository) (*httptest.Server, *Catalog) {
	t.Helper()

	catalog := NewCatalog(repo)
	require.NoError(t, catalog.Refresh(context.Background()))

	handler := NewHandler(repo, catalog, NewLoader(repo, discardLogger()), discardLogger())
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, catalog
}

func TestHandlerListAccounts(t *testing.T) {
	repo := &stubRepository{
		accounts: map[StatementType][]*StandardAccount{
			StatementBS: {
				{Code: "1010", Name: "現金", StatementType: StatementBS},
				{Code: "1700", Name: "貸出金", StatementType: StatementBS},
			},
		},
		formulas: map[StatementType][]*AccountFormula{},
	}
	srv, _ := newTestServer(t, repo)

	resp, err := http.Get(srv.URL + "/reference/accounts?statement_type=bs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var accounts []*StandardAccount
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accounts))
	require.Len(t, accounts, 2)
	assert.Equal(t, "1010", accounts[0].Code)
	assert.Equal(t, "現金", accounts[0].Name)
}

func TestHandlerListAccountsBadStatementType(t *testing.T) {
	repo := &stubRepository{
		accounts: map[StatementType][]*StandardAccount{},
		formulas: map[StatementType][]*AccountFormula{},
	}
	srv, _ := newTestServer(t, repo)

	resp, err := http.Get(srv.URL + "/reference/accounts?statement_type=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerLoadAccountsRefreshesCatalog(t *testing.T) {
	repo := &stubRepository{
		accounts: map[StatementType][]*StandardAccount{},
		formulas: map[StatementType][]*AccountFormula{},
	}
	srv, catalog := newTestServer(t, repo)
	require.Equal(t, 0, catalog.Size(StatementBS))

	body := strings.Join([]string{
		"code,name,category,statement_type,account_type",
		"1010,現金,資産,bs,asset",
		"1020,預け金,資産,bs,asset",
	}, "\n")

	resp, err := http.Post(srv.URL+"/reference/accounts", "text/csv", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Loaded int `json:"loaded"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 2, result.Loaded)

	// the catalog picks up freshly loaded accounts without a restart
	assert.Equal(t, 2, catalog.Size(StatementBS))
	acct, ok := catalog.ByName(StatementBS, "現金")
	require.True(t, ok)
	assert.Equal(t, "1010", acct.Code)
}

func TestHandlerLoadAccountsEmptyBody(t *testing.T) {
	repo := &stubRepository{
		accounts: map[StatementType][]*StandardAccount{},
		formulas: map[StatementType][]*AccountFormula{},
	}
	srv, _ := newTestServer(t, repo)

	resp, err := http.Post(srv.URL+"/reference/accounts", "text/csv", strings.NewReader(""))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerLoadFormulas(t *testing.T) {
	repo := &stubRepository{
		accounts: map[StatementType][]*StandardAccount{},
		formulas: map[StatementType][]*AccountFormula{},
	}
	srv, _ := newTestServer(t, repo)

	body := strings.Join([]string{
		"target_code,target_name,statement_type,formula_type,components,priority",
		"2900,資産合計,bs,sum,1000;1700;2000,10",
	}, "\n")

	resp, err := http.Post(srv.URL+"/reference/formulas", "text/csv", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, repo.formulas[StatementBS], 1)
	assert.Equal(t, []string{"1000", "1700", "2000"}, repo.formulas[StatementBS][0].Components)
}
