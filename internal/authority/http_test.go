package authority

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strand-cloud/strand/internal/models"
)

func testClient(t *testing.T, handler http.Handler) Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(Config{URL: srv.URL, Token: "secret"})
	require.NoError(t, err)

	return c
}

func TestNewHTTPClientRequiresURLAndToken(t *testing.T) {
	_, err := NewHTTPClient(Config{Token: "secret"})
	require.Error(t, err)

	_, err = NewHTTPClient(Config{URL: "http://authority.local"})
	require.Error(t, err)
}

func TestGetStatus(t *testing.T) {
	var gotPath, gotAuth string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]string{"status": "UNDER_ANALYSIS"})
	}))

	status, err := c.GetStatus(context.Background(), "P100/S1")
	require.NoError(t, err)
	require.Equal(t, models.StatusUnderAnalysis, status)
	require.Equal(t, "/api/v1/status/P100/S1", gotPath)
	require.Equal(t, "Bearer secret", gotAuth)
}

func TestGetStatusUnknownEntityIsNotRunning(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	status, err := c.GetStatus(context.Background(), "P100/S1")
	require.NoError(t, err)
	require.Equal(t, models.StatusNotRunning, status)
}

func TestSetStatusSendsExtraFields(t *testing.T) {
	var body map[string]interface{}
	var gotMethod string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))

	err := c.SetStatus(context.Background(), "P100/S1/A/run", models.StatusDone, map[string]interface{}{
		"mean_coverage": 25.0,
	})
	require.NoError(t, err)
	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "DONE", body["status"])

	fields := body["fields"].(map[string]interface{})
	require.InDelta(t, 25.0, fields["mean_coverage"], 0.001)
}

func TestSetStatusSurfacesStatusError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "document already exists", http.StatusBadRequest)
	}))

	err := c.SetStatus(context.Background(), "P100/S1", models.StatusUnderAnalysis, nil)
	require.Error(t, err)
	require.True(t, IsAlreadyExists(err))

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, http.StatusBadRequest, serr.Code)
	require.Equal(t, "document already exists", serr.Message)
}

func TestLibprepForFlowcell(t *testing.T) {
	var gotPath string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]string{"libprep": "A"})
	}))

	lp, err := c.LibprepForFlowcell(context.Background(), "P100", "S1", "H00C3ALXX")
	require.NoError(t, err)
	require.Equal(t, "A", lp)
	require.Equal(t, "/api/v1/projects/P100/samples/S1/flowcells/H00C3ALXX/libprep", gotPath)
}

func TestLibprepForFlowcellNotFound(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := c.LibprepForFlowcell(context.Background(), "P100", "S1", "H00C3ALXX")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListLibpreps(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][]string{"libpreps": {"A", "B"}})
	}))

	preps, err := c.ListLibpreps(context.Background(), "P100", "S1")
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, preps)
}

func TestListLibprepsUnknownSampleIsEmpty(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	preps, err := c.ListLibpreps(context.Background(), "P100", "S1")
	require.NoError(t, err)
	require.Empty(t, preps)
}
