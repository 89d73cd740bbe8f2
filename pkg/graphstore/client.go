// Package graphstore is a client for the SPARQL 1.1 triple store that holds
// the canonical ontology graphs. Queries go through the SPARQL Protocol and
// graph replacement through the Graph Store HTTP Protocol. Every call is
// guarded by a circuit breaker; outages surface as apperrors.ErrStoreUnavailable.
package graphstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/apperrors"
	"github.com/ekaya-inc/ontology-impact/pkg/logging"
	"github.com/ekaya-inc/ontology-impact/pkg/models"
	"github.com/ekaya-inc/ontology-impact/pkg/rdf"
)

const storeName = "graph store"

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 512

// Config holds graph store connection configuration.
type Config struct {
	// QueryURL is the SPARQL query endpoint.
	QueryURL string
	// UpdateURL is the Graph Store Protocol endpoint. Empty disables PutGraph.
	UpdateURL string
	Username  string
	Password  string
	// Timeout bounds each request. Zero means no client-side bound.
	Timeout time.Duration
	Breaker BreakerConfig
}

// Client reads and writes named graphs in the triple store.
type Client interface {
	// ElementRows returns every typed IRI subject of graphIRI with its types
	// and labels (rdfs:label, skos:prefLabel), one row per combination.
	ElementRows(ctx context.Context, graphIRI string) ([]models.ElementRow, error)

	// PutGraph replaces the content of graphIRI with a Turtle document.
	PutGraph(ctx context.Context, graphIRI, turtle string) error

	// Ping checks that the query endpoint answers.
	Ping(ctx context.Context) error

	// State reports the circuit breaker state.
	State() gobreaker.State
}

// Option customizes a client.
type Option func(*sparqlClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *sparqlClient) { c.http = hc }
}

// WithStateListener registers a callback for breaker state changes.
func WithStateListener(listener StateListener) Option {
	return func(c *sparqlClient) { c.listener = listener }
}

type sparqlClient struct {
	cfg      Config
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	listener StateListener
	logger   *zap.Logger
}

// NewClient creates a graph store client.
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) (Client, error) {
	if cfg.QueryURL == "" {
		return nil, errors.New("graph store query URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.QueryURL); err != nil {
		return nil, fmt.Errorf("invalid graph store query URL: %w", err)
	}
	if cfg.UpdateURL != "" {
		if _, err := url.ParseRequestURI(cfg.UpdateURL); err != nil {
			return nil, fmt.Errorf("invalid graph store update URL: %w", err)
		}
	}
	if cfg.Breaker == (BreakerConfig{}) {
		cfg.Breaker = DefaultBreakerConfig()
	}

	c := &sparqlClient{
		cfg:    cfg,
		http:   &http.Client{},
		logger: logger.Named("graphstore"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = newBreaker(storeName, cfg.Breaker, c.logger, c.listener)
	return c, nil
}

var _ Client = (*sparqlClient)(nil)

// elementQueryTemplate returns one row per (subject, type, label) with the
// label predicate; the language tag arrives as xml:lang in the results.
const elementQueryTemplate = `PREFIX rdfs: <` + rdf.NamespaceRDFS + `>
PREFIX skos: <` + rdf.NamespaceSKOS + `>
SELECT ?iri ?type ?label ?labelPredicate WHERE {
  GRAPH <%s> {
    ?iri a ?type .
    FILTER(isIRI(?iri) && isIRI(?type))
    OPTIONAL {
      VALUES ?labelPredicate { rdfs:label skos:prefLabel }
      ?iri ?labelPredicate ?label .
      FILTER(isLiteral(?label))
    }
  }
}`

// sparqlResults is the application/sparql-results+json document.
type sparqlResults struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]sparqlTerm `json:"bindings"`
	} `json:"results"`
	Boolean *bool `json:"boolean,omitempty"`
}

type sparqlTerm struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

func (c *sparqlClient) ElementRows(ctx context.Context, graphIRI string) ([]models.ElementRow, error) {
	if err := ValidateGraphIRI(graphIRI); err != nil {
		return nil, err
	}

	results, err := c.query(ctx, fmt.Sprintf(elementQueryTemplate, graphIRI))
	if err != nil {
		return nil, err
	}

	rows := make([]models.ElementRow, 0, len(results.Results.Bindings))
	for _, b := range results.Results.Bindings {
		iri, ok := b["iri"]
		if !ok || iri.Type != "uri" {
			continue
		}
		row := models.ElementRow{IRI: iri.Value}
		if t, ok := b["type"]; ok && t.Type == "uri" {
			row.TypeIRI = t.Value
		}
		if l, ok := b["label"]; ok && (l.Type == "literal" || l.Type == "typed-literal") {
			row.Label = models.StringPtr(l.Value)
			row.LabelLang = l.Lang
			if p, ok := b["labelPredicate"]; ok && p.Type == "uri" {
				row.LabelPredicate = p.Value
			}
		}
		rows = append(rows, row)
	}

	c.logger.Debug("Fetched graph elements",
		zap.String("graph", graphIRI),
		zap.Int("rows", len(rows)))
	return rows, nil
}

func (c *sparqlClient) PutGraph(ctx context.Context, graphIRI, turtle string) error {
	if c.cfg.UpdateURL == "" {
		return errors.New("graph store update URL not configured")
	}
	if err := ValidateGraphIRI(graphIRI); err != nil {
		return err
	}

	target, err := url.Parse(c.cfg.UpdateURL)
	if err != nil {
		return fmt.Errorf("invalid graph store update URL: %w", err)
	}
	q := target.Query()
	q.Set("graph", graphIRI)
	target.RawQuery = q.Encode()

	return c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), strings.NewReader(turtle))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "text/turtle; charset=utf-8")
		return req, nil
	}, func(resp *http.Response) error {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
}

func (c *sparqlClient) Ping(ctx context.Context) error {
	results, err := c.query(ctx, "ASK {}")
	if err != nil {
		return err
	}
	if results.Boolean == nil {
		return errors.New("graph store returned no ASK result")
	}
	return nil
}

func (c *sparqlClient) State() gobreaker.State {
	return c.breaker.State()
}

func (c *sparqlClient) query(ctx context.Context, query string) (*sparqlResults, error) {
	c.logger.Debug("SPARQL query", zap.String("query", logging.SanitizeQuery(query)))

	var results sparqlResults
	err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.QueryURL, strings.NewReader(query))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/sparql-query")
		req.Header.Set("Accept", "application/sparql-results+json")
		return req, nil
	}, func(resp *http.Response) error {
		if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
			return apperrors.NewStoreUnavailable(storeName, fmt.Errorf("failed to decode query results: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &results, nil
}

// do runs one request through the breaker. Transport failures, 5xx
// responses and the client's own timeout become StoreUnavailable. When the
// caller's context ends first its error is returned unchanged.
func (c *sparqlClient) do(ctx context.Context, build func(context.Context) (*http.Request, error), handle func(*http.Response) error) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		reqCtx := ctx
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}

		req, err := build(reqCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to build graph store request: %w", err)
		}
		if c.cfg.Username != "" {
			req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("graph store request: %w", ctx.Err())
			}
			c.logger.Warn("Graph store request failed", zap.String("error", logging.SanitizeError(err)))
			return nil, apperrors.NewStoreUnavailable(storeName, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			statusErr := fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return nil, apperrors.NewStoreUnavailable(storeName, statusErr)
			}
			return nil, fmt.Errorf("graph store rejected request: %w", statusErr)
		}

		return nil, handle(resp)
	})
	return breakerError(err)
}

// ValidateGraphIRI checks that iri is an absolute IRI that can be embedded
// in a SPARQL query between angle brackets.
func ValidateGraphIRI(iri string) error {
	if iri == "" {
		return errors.New("graph IRI is required")
	}
	if strings.ContainsAny(iri, "<>\"{}|^`\\ \t\r\n") {
		return fmt.Errorf("graph IRI %q contains characters not allowed in an IRI", iri)
	}
	u, err := url.Parse(iri)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("graph IRI %q must be absolute", iri)
	}
	return nil
}
