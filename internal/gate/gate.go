// Package gate composes the permission resolver, the document lifecycle and
// the aliasing pipeline into the access-gated article store. Every operation
// checks exactly one route permission, performs the lifecycle transition and
// returns documents through the read-time masking rule.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"anonpress.org/internal/alias"
	"anonpress.org/internal/article"
	"anonpress.org/internal/audit"
	"anonpress.org/internal/auth"
	"anonpress.org/internal/obs"
	"anonpress.org/internal/stream"
)

// ErrPermissionDenied marks operations rejected by the resolver. It is never
// retried; callers map it to a forbidden response.
var ErrPermissionDenied = errors.New("permission denied")

// Store is the access-gated article store.
type Store struct {
	resolver *auth.Resolver
	articles article.Service
	pipeline *alias.Pipeline
	stream   *stream.Stream
}

// Option configures optional collaborators.
type Option func(*Store)

// WithStream publishes lifecycle events to the given fan-out.
func WithStream(s *stream.Stream) Option {
	return func(g *Store) { g.stream = s }
}

// New wires the gate. Resolver, article service and pipeline are required.
func New(resolver *auth.Resolver, articles article.Service, pipeline *alias.Pipeline, opts ...Option) (*Store, error) {
	if resolver == nil {
		return nil, errors.New("permission resolver is required")
	}
	if articles == nil {
		return nil, errors.New("article service is required")
	}
	if pipeline == nil {
		return nil, errors.New("aliasing pipeline is required")
	}
	g := &Store{resolver: resolver, articles: articles, pipeline: pipeline}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Store) allow(principal auth.Principal, permission string) error {
	if g.resolver.Allowed(principal.Roles, permission) {
		return nil
	}
	obs.ObservePermissionDenied()
	return fmt.Errorf("%w: %s", ErrPermissionDenied, permission)
}

func (g *Store) publish(doc article.Article, eventType string, principal auth.Principal) {
	if g.stream == nil {
		return
	}
	evt := article.NewEvent(eventType, principal.Username, "")
	g.stream.Publish(stream.LifecycleEvent{
		DocumentID: doc.ObjectID,
		Category:   doc.Source,
		Type:       eventType,
		Author:     principal.Username,
		Timestamp:  evt.Date,
	})
}

// Create inserts a new article. Route permission: articles.create.
func (g *Store) Create(ctx context.Context, principal auth.Principal, draft article.Draft, mode string) (article.Article, error) {
	if err := g.allow(principal, auth.PermArticlesCreate); err != nil {
		return article.Article{}, err
	}
	doc, err := g.articles.Create(ctx, draft, principal.Username, mode)
	if err != nil {
		return article.Article{}, err
	}
	_ = audit.LogEvent(ctx, "articles.create", map[string]any{
		"object_id": doc.ObjectID,
		"category":  doc.Source,
		"mode":      mode,
	})
	g.publish(doc, article.EventInsertion, principal)
	return article.Masked(doc, principal.Roles), nil
}

// Read returns one article through the masking rule. Route permission:
// articles.read.
func (g *Store) Read(ctx context.Context, principal auth.Principal, category, id string) (article.Article, error) {
	if err := g.allow(principal, auth.PermArticlesRead); err != nil {
		return article.Article{}, err
	}
	doc, err := g.articles.Get(ctx, category, id)
	if err != nil {
		return article.Article{}, err
	}
	return article.Masked(doc, principal.Roles), nil
}

// List returns matching articles, each passed through the masking rule.
// Route permission: articles.read.
func (g *Store) List(ctx context.Context, principal auth.Principal, filter article.Filter) ([]article.Article, error) {
	if err := g.allow(principal, auth.PermArticlesRead); err != nil {
		return nil, err
	}
	docs, err := g.articles.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]article.Article, 0, len(docs))
	for _, doc := range docs {
		out = append(out, article.Masked(doc, principal.Roles))
	}
	return out, nil
}

// Update merges the provided fields and appends a modification event. Route
// permission: articles.update.
func (g *Store) Update(ctx context.Context, principal auth.Principal, category, id string, upd article.Update) (article.Article, error) {
	if err := g.allow(principal, auth.PermArticlesUpdate); err != nil {
		return article.Article{}, err
	}
	doc, err := g.articles.Update(ctx, category, id, upd, principal.Username)
	if err != nil {
		return article.Article{}, err
	}
	_ = audit.LogEvent(ctx, "articles.update", map[string]any{
		"object_id": doc.ObjectID,
		"category":  doc.Source,
	})
	g.publish(doc, article.EventModification, principal)
	return article.Masked(doc, principal.Roles), nil
}

// Delete hard-removes an article. Route permission: articles.delete.
func (g *Store) Delete(ctx context.Context, principal auth.Principal, category, id string) error {
	if err := g.allow(principal, auth.PermArticlesDelete); err != nil {
		return err
	}
	if err := g.articles.Delete(ctx, category, id); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "articles.delete", map[string]any{
		"object_id": id,
		"category":  category,
	})
	return nil
}

// AutoAnonymize runs the aliasing pipeline over the stored raw text and
// replaces the auto projection. Route permission: articles.anonymize.auto.
func (g *Store) AutoAnonymize(ctx context.Context, principal auth.Principal, category, id string) (article.Article, error) {
	if err := g.allow(principal, auth.PermArticlesAutoAnonymize); err != nil {
		return article.Article{}, err
	}
	doc, err := g.articles.Get(ctx, category, id)
	if err != nil {
		return article.Article{}, err
	}
	if strings.TrimSpace(doc.RawText) == "" {
		return article.Article{}, article.ErrEmptyText
	}
	res, err := g.pipeline.Anonymize(ctx, doc.RawText)
	if err != nil {
		return article.Article{}, err
	}
	doc, err = g.articles.SetAutoAnonymization(ctx, category, id, res.AnonymizedText, res.Aliases, principal.Username)
	if err != nil {
		return article.Article{}, err
	}
	obs.ObserveAnonymization("auto")
	_ = audit.LogEvent(ctx, "articles.anonymize.auto", map[string]any{
		"object_id": doc.ObjectID,
		"category":  doc.Source,
		"aliases":   len(res.Aliases),
	})
	g.publish(doc, article.EventAutoAnonymization, principal)
	return article.Masked(doc, principal.Roles), nil
}

// ManualAnonymize stores a caller-supplied anonymization verbatim. The
// payload is validated before any mutation. Route permission:
// articles.anonymize.manual.
func (g *Store) ManualAnonymize(ctx context.Context, principal auth.Principal, category, id, text string, aliases []alias.Alias) (article.Article, error) {
	if err := g.allow(principal, auth.PermArticlesManualAnonymize); err != nil {
		return article.Article{}, err
	}
	if err := alias.Validate(aliases); err != nil {
		return article.Article{}, err
	}
	doc, err := g.articles.SetManualAnonymization(ctx, category, id, text, aliases, principal.Username)
	if err != nil {
		return article.Article{}, err
	}
	obs.ObserveAnonymization("manual")
	_ = audit.LogEvent(ctx, "articles.anonymize.manual", map[string]any{
		"object_id": doc.ObjectID,
		"category":  doc.Source,
		"aliases":   len(aliases),
	})
	g.publish(doc, article.EventManualAnonymization, principal)
	return article.Masked(doc, principal.Roles), nil
}

// DetectAliases tags a free-text payload without touching storage. Route
// permission: model.anonymize.
func (g *Store) DetectAliases(ctx context.Context, principal auth.Principal, text string) ([]alias.Alias, error) {
	if err := g.allow(principal, auth.PermModelAnonymize); err != nil {
		return nil, err
	}
	return g.pipeline.Aliases(ctx, text)
}

// AnonymizeText runs the full pipeline over a free-text payload without
// touching storage. Route permission: model.anonymize.
func (g *Store) AnonymizeText(ctx context.Context, principal auth.Principal, text string) (alias.Result, error) {
	if err := g.allow(principal, auth.PermModelAnonymize); err != nil {
		return alias.Result{}, err
	}
	return g.pipeline.Anonymize(ctx, text)
}
