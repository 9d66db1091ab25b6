// Package source fetches security findings from the configured backends.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/DefensEye/cmmc12/finding"
	"github.com/DefensEye/cmmc12/internal/metrics"
)

// Source names reported alongside collected records.
const (
	NamePrimary   = "database"
	NameAlternate = "database_rpc"
	NameText      = "csv"
)

// ErrNotConfigured is returned by sources that have no backend to talk to.
var ErrNotConfigured = errors.New("source is not configured")

// StatusError reports a non-2xx response from an upstream backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("upstream returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Source yields raw finding records.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]finding.Record, error)
}

// Text parses an inline CSV export.
type Text struct {
	payload string
	parser  *finding.Parser
}

func NewText(payload string, parser *finding.Parser) *Text {
	if parser == nil {
		parser = finding.NewParser()
	}
	return &Text{payload: payload, parser: parser}
}

func (t *Text) Name() string { return NameText }

func (t *Text) Fetch(_ context.Context) ([]finding.Record, error) {
	return t.parser.Parse(t.payload), nil
}

// Chain collects findings from the primary source, the alternate source
// and an inline text payload, in that order.
type Chain struct {
	Primary   Source
	Alternate Source
	Parser    *finding.Parser
	Observer  *metrics.AnalysisObserver
	Logger    *slog.Logger
}

// Collect returns the first non-empty set of records along with the name of
// the source that produced it. The alternate source is only consulted when
// the primary one fails; the text payload is only parsed when both database
// paths produced nothing. An empty result with a nil error means no source
// had any findings. The returned error is non-nil only when every database
// path failed and the payload was empty.
func (c *Chain) Collect(ctx context.Context, payload string) ([]finding.Record, string, error) {
	logger := c.logger()

	var errs []error
	records, name, err := c.fetch(ctx, c.Primary)
	switch {
	case errors.Is(err, ErrNotConfigured):
		errs = append(errs, err)
		logger.DebugContext(ctx, "no database configured, using inline findings only")
	case err != nil:
		errs = append(errs, err)
		logger.WarnContext(ctx, "primary findings source failed", slog.String("source", name), slog.Any("error", err))

		if c.Alternate != nil {
			c.fallback(ctx, "primary_failed")
			records, name, err = c.fetch(ctx, c.Alternate)
			if err != nil {
				errs = append(errs, err)
				logger.WarnContext(ctx, "alternate findings source failed", slog.String("source", name), slog.Any("error", err))
			}
		}
	}

	if len(records) > 0 {
		return records, name, nil
	}

	if payload != "" {
		c.fallback(ctx, "database_empty")
		text := NewText(payload, c.Parser)
		records, _ = text.Fetch(ctx)
		return records, text.Name(), nil
	}

	return nil, "", errors.Join(errs...)
}

func (c *Chain) fetch(ctx context.Context, s Source) ([]finding.Record, string, error) {
	if s == nil {
		return nil, "", ErrNotConfigured
	}
	records, err := s.Fetch(ctx)
	if err != nil {
		return nil, s.Name(), fmt.Errorf("%s: %w", s.Name(), err)
	}
	return records, s.Name(), nil
}

func (c *Chain) fallback(ctx context.Context, reason string) {
	if c.Observer != nil {
		c.Observer.Fallback(ctx, attribute.String(metrics.AttrReason, reason))
	}
}

func (c *Chain) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
