// Package morph converts role-tagged name tokens into canonical nominative
// form. Linguistic analysis is delegated to an external morphology oracle;
// when the oracle is unreachable the normalizer degrades to suffix rules and
// finally to passthrough — a request never fails on morphology.
package morph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lucentpay/sift/internal/model"
)

// ErrUnavailable reports that the oracle cannot serve analysis right now.
// Callers treat it as a degradation signal, not a failure.
var ErrUnavailable = errors.New("morph: oracle unavailable")

// Case is the grammatical case reported by the oracle.
type Case string

const (
	CaseNominative    Case = "nominative"
	CaseGenitive      Case = "genitive"
	CaseDative        Case = "dative"
	CaseAccusative    Case = "accusative"
	CaseInstrumental  Case = "instrumental"
	CasePrepositional Case = "prepositional"
	CaseUnknown       Case = "unknown"
)

// Gender is the grammatical gender reported by the oracle.
type Gender string

const (
	GenderMasculine Gender = "masc"
	GenderFeminine  Gender = "fem"
	GenderUnknown   Gender = "unknown"
)

// Analysis is the oracle's verdict for one token.
type Analysis struct {
	Lemma      string  `json:"lemma"`
	Case       Case    `json:"case"`
	Gender     Gender  `json:"gender"`
	Confidence float64 `json:"confidence"`
}

// Oracle analyzes an inflected word. Implementations must be safe for
// concurrent use.
type Oracle interface {
	Analyze(ctx context.Context, tok string, lang model.Language) (Analysis, error)
}

// HTTPOracle talks to a morphology service over HTTP.
type HTTPOracle struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPOracle creates an oracle client for the given base URL.
func NewHTTPOracle(baseURL string, timeout time.Duration) *HTTPOracle {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPOracle{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	Token    string `json:"token"`
	Language string `json:"language"`
}

// Analyze posts the token to the oracle's /analyze endpoint. Transport and
// server errors map to ErrUnavailable so the pipeline degrades instead of
// failing.
func (o *HTTPOracle) Analyze(ctx context.Context, tok string, lang model.Language) (Analysis, error) {
	body, err := json.Marshal(analyzeRequest{Token: tok, Language: string(lang)})
	if err != nil {
		return Analysis{}, fmt.Errorf("morph: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return Analysis{}, fmt.Errorf("morph: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Analysis{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	var a Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return Analysis{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if a.Lemma == "" {
		return Analysis{}, fmt.Errorf("%w: empty lemma", ErrUnavailable)
	}
	return a, nil
}

// NoopOracle always reports unavailable. Used when no oracle is configured;
// the normalizer then relies on suffix rules alone.
type NoopOracle struct{}

// Analyze always returns ErrUnavailable.
func (NoopOracle) Analyze(context.Context, string, model.Language) (Analysis, error) {
	return Analysis{}, ErrUnavailable
}
