// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/chondro/internal/httputil"
	"github.com/pdiddy/chondro/internal/tool"
	"github.com/pdiddy/chondro/pkg/types"
)

// Adapter names accepted in download.adapter_order.
const (
	NameHint      = "hint"
	NameUnpaywall = "unpaywall"
	NameOpenAlex  = "openalex"
	NamePublisher = "publisher"
	NameArxiv     = "arxiv"
	NameBrowser   = "browser"
	NameMirror    = "mirror"
)

// DefaultOrder is the adapter priority used when none is configured.
var DefaultOrder = []string{NameHint, NameUnpaywall, NameOpenAlex, NamePublisher, NameArxiv, NameBrowser, NameMirror}

// DefaultPolitenessDelay spaces calls to one adapter when no delay is configured.
const DefaultPolitenessDelay = time.Second

// Attempt records one adapter call made by Chain.Fetch.
type Attempt struct {
	Adapter string
	Outcome Outcome
	Detail  string
}

type link struct {
	adapter Adapter
	limiter *rate.Limiter
}

// Chain holds adapters in priority order, each behind its own limiter.
// A Chain is safe for concurrent use when its adapters are.
type Chain struct {
	links []link
}

// NewChain wraps adapters in the given order.
func NewChain(adapters ...Adapter) *Chain {
	c := &Chain{}
	for _, a := range adapters {
		c.links = append(c.links, link{adapter: a, limiter: httputil.NewLimiter(a.PolitenessDelay())})
	}
	return c
}

// Names returns the adapter names in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.links))
	for i, l := range c.links {
		names[i] = l.adapter.Name()
	}
	return names
}

// Fetch walks the chain for rec. Adapters that need a DOI are skipped
// when rec has none; last-resort adapters run only when every earlier
// attempt was a Miss. The first OK result carrying PDF bytes wins.
// Otherwise the returned Result summarizes the attempts.
func (c *Chain) Fetch(ctx context.Context, rec types.Record) (Result, []Attempt) {
	var attempts []Attempt
	allMiss := true
	for _, l := range c.links {
		a := l.adapter
		if a.RequiresDOI() && rec.DOI == "" {
			continue
		}
		if a.LastResort() && !allMiss {
			continue
		}
		if err := l.limiter.Wait(ctx); err != nil {
			return transient(err.Error()), attempts
		}

		res := a.TryFetch(ctx, rec)
		if res.Outcome == OK && !IsPDF(res.Data) {
			res = Result{Outcome: Miss, Detail: string(types.ErrContentNotPDF), SourceURL: res.SourceURL}
		}
		res.Adapter = a.Name()
		attempts = append(attempts, Attempt{Adapter: a.Name(), Outcome: res.Outcome, Detail: res.Detail})
		slog.Debug("adapter attempt", "literature_id", rec.LiteratureID, "adapter", a.Name(),
			"outcome", res.Outcome, "detail", res.Detail)

		if res.Outcome == OK {
			return res, attempts
		}
		if res.Outcome != Miss {
			allMiss = false
		}
		if ctx.Err() != nil {
			break
		}
	}
	return Summarize(attempts), attempts
}

// Summarize folds failed attempts into one Result. Blocked outranks
// Transient, which outranks Miss. No attempts at all is a Miss.
func Summarize(attempts []Attempt) Result {
	if len(attempts) == 0 {
		return miss("no_adapter")
	}
	out := Miss
	var details []string
	for _, a := range attempts {
		switch a.Outcome {
		case OK:
			return Result{Outcome: OK, Adapter: a.Adapter}
		case Blocked:
			out = Blocked
		case Transient:
			if out == Miss {
				out = Transient
			}
		}
		details = append(details, a.Adapter+"="+a.Outcome.String())
	}
	return Result{Outcome: out, Detail: strings.Join(details, ",")}
}

// Deps supplies the collaborators adapters need.
type Deps struct {
	Client   *http.Client
	Recorder OARecorder
	Runner   *tool.Runner
}

// Build constructs the chain named by cfg.AdapterOrder. The mirror is
// disabled without a base URL and the browser without a command.
func Build(cfg types.DownloadConfig, httpCfg types.HTTPConfig, deps Deps) (*Chain, error) {
	order := cfg.AdapterOrder
	if len(order) == 0 {
		order = DefaultOrder
	}
	client := deps.Client
	if client == nil {
		var err error
		if client, err = httputil.NewClient(httpCfg.Timeout, ""); err != nil {
			return nil, err
		}
	}
	fetch := &Fetcher{Client: client, UserAgent: httpCfg.UserAgent, Mailto: httpCfg.Mailto, MaxRetries: 2}

	var adapters []Adapter
	seen := make(map[string]bool)
	for _, name := range order {
		name = strings.ToLower(strings.TrimSpace(name))
		if seen[name] {
			return nil, fmt.Errorf("adapter %q listed twice", name)
		}
		seen[name] = true
		delay := cfg.PolitenessDelay(name, DefaultPolitenessDelay)

		switch name {
		case NameHint:
			adapters = append(adapters, NewHint(fetch, delay))
		case NameUnpaywall:
			adapters = append(adapters, NewUnpaywall(fetch, deps.Recorder, delay))
		case NameOpenAlex:
			adapters = append(adapters, NewOpenAlex(fetch, deps.Recorder, delay))
		case NamePublisher:
			adapters = append(adapters, NewPublisher(fetch, cfg.PublisherTemplates, delay))
		case NameArxiv:
			adapters = append(adapters, NewArxiv(fetch, delay))
		case NameMirror:
			if cfg.MirrorBase == "" {
				slog.Info("mirror adapter disabled", "reason", "no mirror_base")
				continue
			}
			mc, err := httputil.NewClient(httpCfg.Timeout, cfg.MirrorProxy)
			if err != nil {
				return nil, fmt.Errorf("mirror client: %w", err)
			}
			mf := *fetch
			mf.Client = mc
			adapters = append(adapters, NewMirror(&mf, cfg.MirrorBase, delay))
		case NameBrowser:
			if cfg.BrowserCommand == "" {
				slog.Info("browser adapter disabled", "reason", "no browser_command")
				continue
			}
			runner := deps.Runner
			if runner == nil {
				runner = tool.NewRunner()
			}
			adapters = append(adapters, NewBrowser(runner, cfg.BrowserCommand, cfg.BrowserTimeout, os.TempDir(), delay))
		default:
			return nil, fmt.Errorf("unknown adapter %q", name)
		}
	}
	return NewChain(adapters...), nil
}
