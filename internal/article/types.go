package article

import (
	"errors"
	"hash/fnv"
	"time"

	"anonpress.org/internal/alias"
)

var (
	ErrNotFound    = errors.New("article not found")
	ErrConflict    = errors.New("concurrent modification conflict")
	ErrEmptyText   = errors.New("article has no raw text")
	ErrInvalidData = errors.New("invalid article data")
)

// Event types recorded in an article's audit trail.
const (
	EventInsertion           = "insertion"
	EventModification        = "modification"
	EventAutoAnonymization   = "auto_anonymization"
	EventManualAnonymization = "manual_anonymization"
)

// Event modes for operations that can run one-off or in bulk.
const (
	ModeSingle = "single"
	ModeBatch  = "batch"
)

// Event is one immutable audit record of a lifecycle transition. Events are
// ordered by insertion order, not by timestamp.
type Event struct {
	Type   string    `json:"type"`
	Author string    `json:"author"`
	Date   time.Time `json:"date"`
	Mode   string    `json:"mode,omitempty"`
}

// Article is a stored document with its anonymization projections and audit
// trail. The auto_* and manual_* projections are populated independently and
// never overwrite each other. Version is the optimistic-concurrency token
// used by persistent stores; it is not part of the API payload.
type Article struct {
	ObjectID                string        `json:"object_id"`
	Source                  string        `json:"source"`
	Author                  string        `json:"author"`
	DatePublished           time.Time     `json:"date_published"`
	Section                 string        `json:"section"`
	URL                     string        `json:"url"`
	Headline                string        `json:"headline"`
	Keywords                []string      `json:"keywords"`
	RawText                 string        `json:"raw_text"`
	Hash                    uint64        `json:"hash"`
	AutoAnonymizedText      string        `json:"auto_anonymized_text,omitempty"`
	AutoAnonymizedAliases   []alias.Alias `json:"auto_anonymized_aliases,omitempty"`
	ManualAnonymizedText    string        `json:"manual_anonymized_text,omitempty"`
	ManualAnonymizedAliases []alias.Alias `json:"manual_anonymized_aliases,omitempty"`
	Events                  []Event       `json:"events"`
	Version                 int64         `json:"-"`
}

// Draft is the caller-supplied data for a new article.
type Draft struct {
	Source        string    `json:"source"`
	Author        string    `json:"author"`
	DatePublished time.Time `json:"date_published"`
	Section       string    `json:"section"`
	URL           string    `json:"url"`
	Headline      string    `json:"headline"`
	Keywords      []string  `json:"keywords"`
	RawText       string    `json:"raw_text"`
}

// Update carries a partial modification. Nil fields leave the stored value
// untouched.
type Update struct {
	Author        *string    `json:"author"`
	DatePublished *time.Time `json:"date_published"`
	Section       *string    `json:"section"`
	URL           *string    `json:"url"`
	Headline      *string    `json:"headline"`
	Keywords      []string   `json:"keywords"`
	RawText       *string    `json:"raw_text"`
}

// IsZero reports whether the update changes nothing.
func (u Update) IsZero() bool {
	return u.Author == nil && u.DatePublished == nil && u.Section == nil &&
		u.URL == nil && u.Headline == nil && u.Keywords == nil && u.RawText == nil
}

// Filter narrows article listings.
type Filter struct {
	Categories []string
	Sections   []string
}

// TextHash fingerprints raw article text for change detection.
func TextHash(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

// NewEvent builds an audit event stamped with the current UTC time.
func NewEvent(eventType, author, mode string) Event {
	return Event{
		Type:   eventType,
		Author: author,
		Date:   time.Now().UTC(),
		Mode:   mode,
	}
}

// Clone returns a deep copy safe to hand to callers.
func (a Article) Clone() Article {
	out := a
	out.Keywords = append([]string(nil), a.Keywords...)
	out.Events = append([]Event(nil), a.Events...)
	out.AutoAnonymizedAliases = cloneAliases(a.AutoAnonymizedAliases)
	out.ManualAnonymizedAliases = cloneAliases(a.ManualAnonymizedAliases)
	return out
}

func cloneAliases(in []alias.Alias) []alias.Alias {
	if in == nil {
		return nil
	}
	return append([]alias.Alias(nil), in...)
}

// Apply merges the non-nil fields into the article. A raw text change
// refreshes the stored hash.
func (u Update) Apply(a *Article) {
	if u.Author != nil {
		a.Author = *u.Author
	}
	if u.DatePublished != nil {
		a.DatePublished = *u.DatePublished
	}
	if u.Section != nil {
		a.Section = *u.Section
	}
	if u.URL != nil {
		a.URL = *u.URL
	}
	if u.Headline != nil {
		a.Headline = *u.Headline
	}
	if u.Keywords != nil {
		a.Keywords = append([]string(nil), u.Keywords...)
	}
	if u.RawText != nil {
		a.RawText = *u.RawText
		a.Hash = TextHash(*u.RawText)
	}
}
