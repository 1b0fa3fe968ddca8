// Package eval fetches position evaluations from the Lichess cloud
// evaluation API. Results are advisory; the vote pipeline never
// depends on them.
package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const defaultBaseURL = "https://lichess.org"

var (
	// ErrNoEval means the position is not in the cloud database.
	ErrNoEval = errors.New("no cloud evaluation for position")
	// ErrRateLimited means Lichess asked us to back off.
	ErrRateLimited = errors.New("evaluation rate limited")
)

// Line is one principal variation from the evaluation.
type Line struct {
	MovesUCI []string `json:"moves"`
	CP       int      `json:"cp"`
	Mate     int      `json:"mate"`
	HasMate  bool     `json:"hasMate"`
}

// Evaluation is a cloud evaluation of one position.
type Evaluation struct {
	FEN    string `json:"fen"`
	Depth  int    `json:"depth"`
	KNodes int    `json:"knodes"`
	Lines  []Line `json:"lines"`
}

type Client struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http:    &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wire format of the cloud-eval endpoint
type cloudEvalResponse struct {
	FEN    string `json:"fen"`
	Depth  int    `json:"depth"`
	KNodes int    `json:"knodes"`
	PVs    []struct {
		Moves string `json:"moves"`
		CP    *int   `json:"cp"`
		Mate  *int   `json:"mate"`
	} `json:"pvs"`
}

// Evaluate looks up the cloud evaluation for a FEN with up to multiPV
// principal variations.
func (c *Client) Evaluate(ctx context.Context, fen string, multiPV int) (*Evaluation, error) {
	if strings.TrimSpace(fen) == "" {
		return nil, errors.New("empty fen")
	}
	if multiPV < 1 {
		multiPV = 1
	}

	q := url.Values{}
	q.Set("fen", fen)
	q.Set("multiPv", fmt.Sprintf("%d", multiPV))

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + "/api/cloud-eval?" + q.Encode())
	req.Header.Set("Accept", "application/json")

	if err := c.http.DoDeadline(req, resp, c.deadline(ctx)); err != nil {
		return nil, fmt.Errorf("cloud eval request: %w", err)
	}

	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotFound:
		return nil, ErrNoEval
	case status == fasthttp.StatusTooManyRequests:
		return nil, ErrRateLimited
	case status < 200 || status >= 300:
		return nil, fmt.Errorf("cloud eval status %d: %s", status, truncate(string(resp.Body()), 256))
	}

	var raw cloudEvalResponse
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("decode cloud eval: %w", err)
	}

	out := &Evaluation{FEN: raw.FEN, Depth: raw.Depth, KNodes: raw.KNodes}
	for _, pv := range raw.PVs {
		line := Line{MovesUCI: strings.Fields(pv.Moves)}
		if pv.Mate != nil {
			line.Mate = *pv.Mate
			line.HasMate = true
		} else if pv.CP != nil {
			line.CP = *pv.CP
		}
		out.Lines = append(out.Lines, line)
	}
	return out, nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
