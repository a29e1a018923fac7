package article

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"anonpress.org/internal/alias"
	"anonpress.org/internal/ids"
)

// Service defines the document lifecycle operations. Every mutation appends
// exactly one audit event atomically with its field changes.
type Service interface {
	Create(ctx context.Context, draft Draft, author, mode string) (Article, error)
	Get(ctx context.Context, category, id string) (Article, error)
	List(ctx context.Context, filter Filter) ([]Article, error)
	Update(ctx context.Context, category, id string, upd Update, author string) (Article, error)
	Delete(ctx context.Context, category, id string) error
	SetAutoAnonymization(ctx context.Context, category, id, text string, aliases []alias.Alias, author string) (Article, error)
	SetManualAnonymization(ctx context.Context, category, id, text string, aliases []alias.Alias, author string) (Article, error)
}

// InMemory implements Service with in-process concurrency safety. Writes to
// one document are serialized under the store lock, so an event append can
// never be lost.
type InMemory struct {
	mu         sync.RWMutex
	categories map[string]map[string]*Article
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates an empty article store.
func NewInMemory() *InMemory {
	return &InMemory{categories: make(map[string]map[string]*Article)}
}

func (s *InMemory) Create(ctx context.Context, draft Draft, author, mode string) (Article, error) {
	category := strings.TrimSpace(draft.Source)
	if category == "" {
		return Article{}, fmt.Errorf("%w: source is required", ErrInvalidData)
	}
	if strings.TrimSpace(draft.RawText) == "" {
		return Article{}, fmt.Errorf("%w: raw_text is required", ErrInvalidData)
	}
	if mode == "" {
		mode = ModeSingle
	}

	a := &Article{
		ObjectID:      ids.New(),
		Source:        category,
		Author:        draft.Author,
		DatePublished: draft.DatePublished,
		Section:       draft.Section,
		URL:           draft.URL,
		Headline:      draft.Headline,
		Keywords:      append([]string(nil), draft.Keywords...),
		RawText:       draft.RawText,
		Hash:          TextHash(draft.RawText),
		Events:        []Event{NewEvent(EventInsertion, author, mode)},
		Version:       1,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categories[category] == nil {
		s.categories[category] = make(map[string]*Article)
	}
	s.categories[category][a.ObjectID] = a
	return a.Clone(), nil
}

func (s *InMemory) Get(ctx context.Context, category, id string) (Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.categories[category][id]
	if !ok {
		return Article{}, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *InMemory) List(ctx context.Context, filter Filter) ([]Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Article
	for category, docs := range s.categories {
		if len(filter.Categories) > 0 && !contains(filter.Categories, category) {
			continue
		}
		for _, a := range docs {
			if len(filter.Sections) > 0 && !contains(filter.Sections, a.Section) {
				continue
			}
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

func (s *InMemory) Update(ctx context.Context, category, id string, upd Update, author string) (Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.categories[category][id]
	if !ok {
		return Article{}, ErrNotFound
	}
	upd.Apply(a)
	a.Events = append(a.Events, NewEvent(EventModification, author, ModeSingle))
	a.Version++
	return a.Clone(), nil
}

func (s *InMemory) Delete(ctx context.Context, category, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[category][id]; !ok {
		return ErrNotFound
	}
	delete(s.categories[category], id)
	return nil
}

func (s *InMemory) SetAutoAnonymization(ctx context.Context, category, id, text string, aliases []alias.Alias, author string) (Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.categories[category][id]
	if !ok {
		return Article{}, ErrNotFound
	}
	a.AutoAnonymizedText = text
	a.AutoAnonymizedAliases = cloneAliases(aliases)
	a.Events = append(a.Events, NewEvent(EventAutoAnonymization, author, ModeSingle))
	a.Version++
	return a.Clone(), nil
}

func (s *InMemory) SetManualAnonymization(ctx context.Context, category, id, text string, aliases []alias.Alias, author string) (Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.categories[category][id]
	if !ok {
		return Article{}, ErrNotFound
	}
	a.ManualAnonymizedText = text
	a.ManualAnonymizedAliases = cloneAliases(aliases)
	a.Events = append(a.Events, NewEvent(EventManualAnonymization, author, ModeSingle))
	a.Version++
	return a.Clone(), nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
