package fetch

import (
	"context"
	"errors"
	"net/http"

	"comebackwatch/internal/components/assert"
	"comebackwatch/internal/components/telemetry"
	"comebackwatch/lib/restyutil"
	libtelemetry "comebackwatch/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("internal/fetch")

const (
	report_fetcher_fetch = "fetcher.fetch"
	report_fetcher_retry = "fetcher.retry"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

type Options struct {
	// Referer is sent with every request, usually the site root.
	Referer string
	// Archive receives every completed exchange when set.
	Archive restyutil.InstrumentOutput
	// Bypass wraps the transport with browser-like tls settings.
	Bypass bool
	// Sleep replaces the wait used between retries.
	Sleep SleepFunc
}

// Fetcher issues GETs with timeout, retry with backoff and jitter, and
// classifies every outcome into a Kind.
type Fetcher struct {
	http    *resty.Client
	policy  Policy
	sleep   SleepFunc
	limiter *rate.Limiter
	tel     telemetry.API
}

func NewFetcher(policy Policy, tel telemetry.API, opts Options) *Fetcher {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("fetch", tel)

	client := resty.New()
	if opts.Bypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	client.SetTimeout(policy.Timeout)
	client.SetRetryCount(0)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	client.SetHeaders(map[string]string{
		"user-agent":      userAgent,
		"accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"accept-language": "en-US,en;q=0.9,ko;q=0.7",
		"cache-control":   "no-cache",
		"pragma":          "no-cache",
	})
	if opts.Referer != "" {
		client.SetHeader("referer", opts.Referer)
	}

	libtelemetry.InstrumentResty(client, "internal/fetch")
	telemetry.InstrumentResty(client, tel)
	restyutil.InstrumentClient(client, opts.Archive)

	var limiter *rate.Limiter
	if policy.MaxRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(policy.MaxRPS), 1)
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	return &Fetcher{
		http:    client,
		policy:  policy,
		sleep:   sleep,
		limiter: limiter,
		tel:     tel,
	}
}

func (f *Fetcher) Policy() Policy {
	return f.policy
}

// NewPacer returns a pacer using this fetcher's policy and sleep function.
func (f *Fetcher) NewPacer() *Pacer {
	return NewPacer(f.policy, f.sleep)
}

// Fetch returns the body of link. Failures are always *Error except for
// context cancellation, which is returned as is.
func (f *Fetcher) Fetch(ctx context.Context, link string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", link))

	var last *Error
	for attempt := 0; attempt <= f.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := f.policy.Backoff(attempt-1) + uniform(f.policy.JitterMin, f.policy.JitterMax)
			f.tel.ReportDebug(report_fetcher_retry, link, attempt, delay.String())
			err := f.sleep(ctx, delay)
			if err != nil {
				return nil, err
			}
		}

		body, err := f.attempt(ctx, link)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempt+1))
			return body, nil
		}

		var ferr *Error
		if !errors.As(err, &ferr) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			return nil, err
		}
		ferr.Attempts = attempt + 1
		last = ferr
		if ferr.Kind != KindTransient {
			break
		}
	}

	span.RecordError(last)
	span.SetStatus(codes.Error, last.Kind.String())
	if last.Kind == KindTransient || last.Kind == KindTerminal {
		f.tel.ReportWarning(report_fetcher_fetch, last)
	}
	return nil, last
}

func (f *Fetcher) attempt(ctx context.Context, link string) ([]byte, error) {
	if f.limiter != nil {
		err := f.limiter.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &Error{Kind: KindTransient, URL: link, Err: err}
		}
	}

	res, err := f.http.R().
		SetContext(ctx).
		Get(link)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: KindTransient, URL: link, Err: err}
	}

	body := res.Body()
	status := res.StatusCode()
	if IsChallenge(res.Header(), body) {
		return nil, &Error{Kind: KindChallenge, URL: link, Status: status}
	}
	kind, failed := classifyStatus(status)
	if failed {
		return nil, &Error{Kind: kind, URL: link, Status: status}
	}
	return body, nil
}

func classifyStatus(status int) (Kind, bool) {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound, true
	case status == http.StatusTooManyRequests || status >= 500:
		return KindTransient, true
	case status >= 400:
		return KindTerminal, true
	}
	return 0, false
}
