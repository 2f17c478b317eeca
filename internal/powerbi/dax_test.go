package powerbi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDaxColumn(t *testing.T) {
	assert.Equal(t, "Amount", normalizeDaxColumn("Sales[Amount]"))
	assert.Equal(t, "Amount", normalizeDaxColumn("[Amount]"))
	assert.Equal(t, "Amount", normalizeDaxColumn("Amount"))
	assert.Equal(t, "Total Sales", normalizeDaxColumn("Measures[Total Sales]"))
}

func TestExecuteQueries_NormalizesRows(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/groups/g-1/datasets/ds-1/executeQueries", func(w http.ResponseWriter, r *http.Request) {
		var req executeQueriesRequest

		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Queries, 1)
		assert.Equal(t, "EVALUATE Sales", req.Queries[0].Query)

		fmt.Fprint(w, `{"results":[{"tables":[{"rows":[
			{"Sales[Region]":"West","Sales[Amount]":1200.5},
			{"Sales[Region]":"East","Sales[Amount]":900}
		]}]}]}`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	session := newTestSession(server.URL, nil)

	results, err := session.ExecuteQueries(context.Background(), testDataset, "EVALUATE Sales")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Rows, 2)

	assert.Equal(t, "West", results[0].Rows[0]["Region"])
	assert.Equal(t, 1200.5, results[0].Rows[0]["Amount"])
	assert.Equal(t, "East", results[0].Rows[1]["Region"])
}

func TestExecuteQueries_PreservesQueryOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/groups/g-1/datasets/ds-1/executeQueries", func(w http.ResponseWriter, r *http.Request) {
		var req executeQueriesRequest

		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Echo the query text back so the test can match results to queries.
		fmt.Fprintf(w, `{"results":[{"tables":[{"rows":[{"T[q]":%q}]}]}]}`, req.Queries[0].Query)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	session := newTestSession(server.URL, nil)

	results, err := session.ExecuteQueries(context.Background(), testDataset, "EVALUATE A", "EVALUATE B", "EVALUATE C")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "EVALUATE A", results[0].Rows[0]["q"])
	assert.Equal(t, "EVALUATE B", results[1].Rows[0]["q"])
	assert.Equal(t, "EVALUATE C", results[2].Rows[0]["q"])
}

func TestExecuteQueries_EmptyResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/groups/g-1/datasets/ds-1/executeQueries", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"results":[]}`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	session := newTestSession(server.URL, nil)

	results, err := session.ExecuteQueries(context.Background(), testDataset, "EVALUATE Empty")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Rows)
}

func TestExecuteQueries_BadRequestSurfaces(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/groups/g-1/datasets/ds-1/executeQueries", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":"DaxQueryError"}}`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	session := newTestSession(server.URL, nil)

	_, err := session.ExecuteQueries(context.Background(), testDataset, "EVALUATE Broken")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadRequest)
}
