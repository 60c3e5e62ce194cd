package invoke

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joegilkes/speechcli/internal/clierr"
	"github.com/joegilkes/speechcli/internal/param"
	"github.com/joegilkes/speechcli/internal/registry"
)

const (
	maxAttempts = 3
	baseDelay   = 2 * time.Second

	// DefaultTimeout bounds the whole call, retries included.
	DefaultTimeout = 5 * time.Minute
)

// Options carries the per-invocation configuration resolved from global
// flags. Nothing here is process-wide state.
type Options struct {
	APIKeyFlag string
}

// Pipeline drives one invocation end to end. Sleep is injectable so the
// retry schedule is observable in tests; nil means real time.
type Pipeline struct {
	Exec  Executor
	Log   *logrus.Logger
	Sleep func(ctx context.Context, d time.Duration) error
}

// Invoke resolves credentials, coerces arguments, calls the executor, and
// applies the retry policy. Each step is a hard boundary: a failure aborts
// without reaching later steps, so a coercion failure never touches the
// network.
func (p *Pipeline) Invoke(ctx context.Context, m *registry.Method, inputs map[string]param.Input, opts Options) (*RawResult, error) {
	key, err := ResolveAPIKey(opts.APIKeyFlag, p.Log)
	if err != nil {
		return nil, err
	}
	if err := ValidateAPIKey(key); err != nil {
		return nil, err
	}

	args, err := coerceAll(m, inputs)
	if err != nil {
		return nil, err
	}

	call := Call{Path: m.Path, Args: args, Shape: m.Returns, APIKey: key}
	return p.execute(ctx, call)
}

// coerceAll runs the coercion engine across every declared parameter,
// collecting all failures rather than stopping at the first so the user
// fixes everything in one round-trip.
func coerceAll(m *registry.Method, inputs map[string]param.Input) (map[string]param.Value, error) {
	args := make(map[string]param.Value, len(m.Parameters))
	var failures []string
	for _, pr := range m.Parameters {
		v, err := param.Coerce(pr, inputs[pr.Name])
		if err != nil {
			failures = append(failures, errMessage(err))
			continue
		}
		args[pr.Name] = v
	}
	if len(failures) > 0 {
		return nil, clierr.New(clierr.Coercion, "%s: %s", m.Path, strings.Join(failures, "; "))
	}
	return args, nil
}

func errMessage(err error) string {
	var ce *clierr.Error
	if errors.As(err, &ce) {
		if ce.Err != nil {
			return ce.Msg + ": " + ce.Err.Error()
		}
		return ce.Msg
	}
	return err.Error()
}

func (p *Pipeline) execute(ctx context.Context, call Call) (*RawResult, error) {
	p.logf(logrus.InfoLevel, "calling %s", call.Path)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := p.Exec.Execute(ctx, call)
		if err == nil {
			return res, nil
		}
		err = classify(ctx, err)
		lastErr = err

		if !retryable(err) || attempt == maxAttempts {
			break
		}

		delay := baseDelay << (attempt - 1) // 2s, then 4s
		p.logf(logrus.WarnLevel, "%s: attempt %d/%d failed (%v); retrying in %s",
			call.Path, attempt, maxAttempts, err, delay)
		if serr := p.sleep(ctx, delay); serr != nil {
			if errors.Is(serr, context.Canceled) {
				return nil, clierr.Wrap(clierr.General, lastErr, "%s: interrupted while backing off", call.Path)
			}
			return nil, clierr.Wrap(clierr.Timeout, lastErr, "%s: call ceiling reached while backing off", call.Path)
		}
	}

	var ce *clierr.Error
	if errors.As(lastErr, &ce) && retryable(lastErr) {
		return nil, &clierr.Error{
			Kind:     ce.Kind,
			Msg:      fmt.Sprintf("%s: failed after %d attempts", call.Path, maxAttempts),
			Err:      lastErr,
			Status:   ce.Status,
			Attempts: maxAttempts,
		}
	}
	return nil, lastErr
}

// classify folds untyped executor errors into the taxonomy. Anything the
// executor did not already classify is a network-level failure, except a
// blown deadline, which is the call ceiling. A plain cancellation is an
// operator interrupt, not a timeout, and stays unclassified.
func classify(ctx context.Context, err error) error {
	if clierr.KindOf(err) != clierr.General {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return clierr.Wrap(clierr.Timeout, err, "call exceeded its time ceiling")
	}
	if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
		return clierr.Wrap(clierr.General, err, "call interrupted")
	}
	return clierr.Wrap(clierr.Transport, err, "request failed")
}

// retryable: only network-level failures and 5xx provider errors. Rejected
// credentials, rate limits, and other 4xx responses are surfaced as-is.
func retryable(err error) bool {
	var ce *clierr.Error
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Kind {
	case clierr.Transport:
		return true
	case clierr.Remote:
		return ce.Status >= 500
	default:
		return false
	}
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) logf(level logrus.Level, format string, args ...any) {
	if p.Log != nil {
		p.Log.Logf(level, format, args...)
	}
}
