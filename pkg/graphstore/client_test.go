package graphstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/apperrors"
	"github.com/ekaya-inc/ontology-impact/pkg/models"
)

const testGraph = "http://ex.org/graphs/onto"

const elementResults = `{
  "head": {"vars": ["iri", "type", "label"]},
  "results": {"bindings": [
    {"iri": {"type": "uri", "value": "http://ex.org/onto#Person"},
     "type": {"type": "uri", "value": "http://www.w3.org/2002/07/owl#Class"},
     "label": {"type": "literal", "value": "Person", "xml:lang": "en"},
     "labelPredicate": {"type": "uri", "value": "http://www.w3.org/2000/01/rdf-schema#label"}},
    {"iri": {"type": "uri", "value": "http://ex.org/onto#owns"},
     "type": {"type": "uri", "value": "http://www.w3.org/2002/07/owl#ObjectProperty"}},
    {"iri": {"type": "bnode", "value": "b0"},
     "type": {"type": "uri", "value": "http://www.w3.org/2002/07/owl#Class"}}
  ]}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*Config)) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := Config{
		QueryURL:  server.URL + "/query",
		UpdateURL: server.URL + "/data",
		Timeout:   2 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestClient_ElementRows(t *testing.T) {
	var gotQuery, gotContentType, gotAccept string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotQuery = string(body)
		gotContentType = r.Header.Get("Content-Type")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/sparql-results+json")
		_, _ = io.WriteString(w, elementResults)
	}, nil)

	rows, err := client.ElementRows(context.Background(), testGraph)
	require.NoError(t, err)

	assert.Equal(t, "application/sparql-query", gotContentType)
	assert.Equal(t, "application/sparql-results+json", gotAccept)
	assert.Contains(t, gotQuery, "GRAPH <"+testGraph+">")
	assert.Contains(t, gotQuery, "skos:prefLabel")

	require.Len(t, rows, 2, "blank node subjects are skipped")
	assert.Equal(t, models.ElementRow{
		IRI:            "http://ex.org/onto#Person",
		TypeIRI:        "http://www.w3.org/2002/07/owl#Class",
		Label:          models.StringPtr("Person"),
		LabelPredicate: "http://www.w3.org/2000/01/rdf-schema#label",
		LabelLang:      "en",
	}, rows[0])
	assert.Equal(t, "http://ex.org/onto#owns", rows[1].IRI)
	assert.Nil(t, rows[1].Label)
}

func TestClient_ElementRows_InvalidGraphIRI(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, nil)

	for _, iri := range []string{"", "relative/graph", "http://ex.org/a> } DROP ALL {", "http://ex.org/a b"} {
		_, err := client.ElementRows(context.Background(), iri)
		assert.Error(t, err, iri)
	}
	assert.Zero(t, calls.Load())
}

func TestClient_ServerErrorIsStoreUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
	}, nil)

	_, err := client.ElementRows(context.Background(), testGraph)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))
	assert.Contains(t, err.Error(), "backend down")
}

func TestClient_BadRequestIsNotStoreUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "parse error", http.StatusBadRequest)
	}, nil)

	_, err := client.ElementRows(context.Background(), testGraph)
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrStoreUnavailable))
	assert.Contains(t, err.Error(), "status 400")
}

func TestClient_UndecodableBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>proxy error</html>")
	}, nil)

	_, err := client.ElementRows(context.Background(), testGraph)
	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))
}

func TestClient_UnreachableStore(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewClient(Config{QueryURL: url + "/query"}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.ElementRows(context.Background(), testGraph)
	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))
}

func TestClient_ClientTimeoutIsStoreUnavailable(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, func(cfg *Config) { cfg.Timeout = 50 * time.Millisecond })
	defer close(release)

	_, err := client.ElementRows(context.Background(), testGraph)
	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))
}

func TestClient_CallerCancellationPassesThrough(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, nil)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.ElementRows(ctx, testGraph)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, apperrors.ErrStoreUnavailable))
}

func TestClient_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	var transitions []gobreaker.State

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		QueryURL: server.URL,
		Breaker: BreakerConfig{
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          time.Minute,
			FailureThreshold: 0.5,
			MinRequests:      2,
		},
	}, zap.NewNop(), WithStateListener(func(_ string, _, to gobreaker.State) {
		transitions = append(transitions, to)
	}))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := client.ElementRows(context.Background(), testGraph)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	_, err = client.ElementRows(context.Background(), testGraph)
	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.True(t, errors.Is(err, apperrors.ErrCircuitOpen))
	assert.Equal(t, int32(2), calls.Load(), "open breaker short-circuits")
}

func TestClient_RejectedQueriesDoNotTripBreaker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}, func(cfg *Config) {
		cfg.Breaker = BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 0.5, MinRequests: 1}
	})

	for i := 0; i < 5; i++ {
		_, _ = client.ElementRows(context.Background(), testGraph)
	}
	assert.Equal(t, gobreaker.StateClosed, client.State())
}

func TestClient_PutGraph(t *testing.T) {
	var gotMethod, gotGraph, gotContentType, gotBody, gotUser string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotGraph = r.URL.Query().Get("graph")
		gotContentType = r.Header.Get("Content-Type")
		gotUser, _, _ = r.BasicAuth()
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusNoContent)
	}, func(cfg *Config) {
		cfg.Username = "writer"
		cfg.Password = "secret"
	})

	turtle := "<http://ex.org/onto#A> a <http://www.w3.org/2002/07/owl#Class> .\n"
	require.NoError(t, client.PutGraph(context.Background(), testGraph, turtle))

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, testGraph, gotGraph)
	assert.Equal(t, "text/turtle; charset=utf-8", gotContentType)
	assert.Equal(t, turtle, gotBody)
	assert.Equal(t, "writer", gotUser)
}

func TestClient_PutGraphWithoutUpdateURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, func(cfg *Config) {
		cfg.UpdateURL = ""
	})

	err := client.PutGraph(context.Background(), testGraph, "")
	assert.Error(t, err)
}

func TestClient_Ping(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"head": {}, "boolean": true}`)
	}, nil)
	assert.NoError(t, client.Ping(context.Background()))

	client = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"head": {}, "results": {"bindings": []}}`)
	}, nil)
	assert.Error(t, client.Ping(context.Background()))
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewClient(Config{QueryURL: "not a url"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewClient(Config{QueryURL: "http://localhost:3030/ds/query", UpdateURL: "::"}, zap.NewNop())
	assert.Error(t, err)
}
