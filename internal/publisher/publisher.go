// Package publisher owns the publication pipeline: it decides the identity of
// the current emission, enforces one card per slug, and keeps the remote
// content repository consistent (card, latest pointer, pruned history, feed).
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/Noptus/btp4ai-wire/internal/card"
	"github.com/Noptus/btp4ai-wire/internal/config"
	"github.com/Noptus/btp4ai-wire/internal/contentstore"
	"github.com/Noptus/btp4ai-wire/internal/feed"
	"github.com/Noptus/btp4ai-wire/internal/logging"
	"github.com/Noptus/btp4ai-wire/internal/metrics"
	"github.com/Noptus/btp4ai-wire/internal/newswire"
)

const cardsDir = "docs/cards"

// ErrMissingCredential is returned when no write token is configured.
// Publishing fails fast on it before any remote call is attempted.
var ErrMissingCredential = errors.New("GITHUB_TOKEN is not configured")

// Options wires a Publisher. Everything is passed explicitly so tests can run
// several configurations side by side.
type Options struct {
	Store        contentstore.Store
	Provider     newswire.Provider
	Template     *card.Template
	Feed         *feed.Builder
	Metrics      *metrics.Metrics
	Token        string
	Cadence      config.Cadence
	MaxFeedItems int
	Location     *time.Location
	Title        string
}

// Publisher runs the idempotent publish pipeline.
type Publisher struct {
	store        contentstore.Store
	provider     newswire.Provider
	template     *card.Template
	feed         *feed.Builder
	metrics      *metrics.Metrics
	token        string
	cadence      config.Cadence
	maxFeedItems int
	loc          *time.Location
	title        string

	now func() time.Time
}

// New creates a Publisher from opts.
func New(opts Options) *Publisher {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Publisher{
		store:        opts.Store,
		provider:     opts.Provider,
		template:     opts.Template,
		feed:         opts.Feed,
		metrics:      opts.Metrics,
		token:        opts.Token,
		cadence:      opts.Cadence,
		maxFeedItems: opts.MaxFeedItems,
		loc:          loc,
		title:        opts.Title,
		now:          time.Now,
	}
}

// Slug returns the emission identity for the given local instant under the
// active cadence policy. Weekly slugs identify the ISO week; daily slugs
// identify the invocation instant. Both sort lexicographically by recency.
func (p *Publisher) Slug(nowLocal time.Time) string {
	if p.cadence == config.CadenceDaily {
		return nowLocal.UTC().Format("2006-01-02T15-04-05Z")
	}
	year, week := nowLocal.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// CardPath returns the store path of the card for slug.
func CardPath(slug string) string {
	return cardsDir + "/" + slug + ".json"
}

// CardExists reports whether the card for the current period is already in
// the store. The scheduler's catch-up mode uses it to decide whether to run
// immediately.
func (p *Publisher) CardExists(ctx context.Context) (bool, error) {
	slug := p.Slug(p.now().In(p.loc))
	return p.store.Exists(ctx, CardPath(slug))
}

// PublishOnce runs the pipeline for the current instant and returns the slug.
// A second call within the same slug period is a no-op: the existence check
// skips every side effect. That check is an optimization against needless
// work, not the correctness guarantee — two triggers racing past it are
// serialized by the store's conflict rejection on stale revision tokens.
func (p *Publisher) PublishOnce(ctx context.Context) (string, error) {
	if p.token == "" {
		return "", ErrMissingCredential
	}

	start := time.Now()
	slug, err := p.publishOnce(ctx)
	if p.metrics != nil {
		p.metrics.PublishDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			p.metrics.PublishErrors.WithLabelValues(errorKind(err)).Inc()
		}
	}
	return slug, err
}

func (p *Publisher) publishOnce(ctx context.Context) (string, error) {
	if err := p.ensureStructure(ctx); err != nil {
		return "", err
	}

	nowLocal := p.now().In(p.loc)
	slug := p.Slug(nowLocal)

	exists, err := p.store.Exists(ctx, CardPath(slug))
	if err != nil {
		return "", fmt.Errorf("failed to check card existence: %w", err)
	}
	if exists {
		// The card is settled, but a previous run may have died between the
		// card write and the feed write. Rewriting the feed here keeps a
		// retry after such a partial commit from leaving it stale.
		logging.WithPublish(slug, string(p.cadence)).Info("card already exists, refreshing feed only")
		retained, err := p.retainedSlugs(ctx, slug)
		if err != nil {
			return "", err
		}
		if err := p.writeFeed(ctx, retained); err != nil {
			return "", err
		}
		return slug, nil
	}

	whenLocal := p.banner(nowLocal)
	items := p.provider.Research(ctx, whenLocal)
	doc := p.template.Build(p.title, whenLocal, items)

	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode card: %w", err)
	}

	if err := p.commit(ctx, slug, jsonBytes); err != nil {
		return "", err
	}

	if p.metrics != nil {
		p.metrics.CardsPublished.Inc()
	}
	logging.WithPublish(slug, string(p.cadence)).Info("card published", "items", len(items))
	return slug, nil
}

// commit writes the card, overwrites the latest pointer, applies the
// retention policy and rewrites both feed files. The steps are not a
// transaction: a failure in the middle leaves the store stale but
// recoverable, and RebuildFeed heals the feed independently of a card write.
func (p *Publisher) commit(ctx context.Context, slug string, cardJSON []byte) error {
	if err := p.store.Put(ctx, CardPath(slug), cardJSON, "feat: add card "+slug); err != nil {
		return fmt.Errorf("failed to write card %s: %w", slug, err)
	}
	if err := p.store.Put(ctx, cardsDir+"/latest.json", cardJSON, "chore: update latest.json"); err != nil {
		return fmt.Errorf("failed to update latest pointer: %w", err)
	}

	retained, err := p.retainedSlugs(ctx, slug)
	if err != nil {
		return err
	}
	if err := p.pruneExcept(ctx, retained); err != nil {
		return err
	}
	return p.writeFeed(ctx, retained)
}

// RebuildFeed regenerates both feed files from the cards currently in the
// store, regardless of whether this process wrote them. It is the recovery
// path for a partial commit that left the feed stale.
func (p *Publisher) RebuildFeed(ctx context.Context) error {
	if p.token == "" {
		return ErrMissingCredential
	}
	slugs, err := p.listSlugsDesc(ctx)
	if err != nil {
		return err
	}
	if len(slugs) > p.maxFeedItems {
		slugs = slugs[:p.maxFeedItems]
	}
	return p.writeFeed(ctx, slugs)
}

func (p *Publisher) writeFeed(ctx context.Context, slugsDesc []string) error {
	feedXML, err := p.feed.Render(ctx, slugsDesc)
	if err != nil {
		return fmt.Errorf("failed to render feed: %w", err)
	}
	// Same document under two names for consumer compatibility. A conflict
	// means the stored feed already matches these bytes or a concurrent
	// publisher just rewrote it; either way the published feed is current.
	if err := p.store.Put(ctx, "docs/feed.rss", feedXML, "chore: update feed.rss"); err != nil && !contentstore.IsConflict(err) {
		return fmt.Errorf("failed to write feed.rss: %w", err)
	}
	if err := p.store.Put(ctx, "docs/feed.xml", feedXML, "chore: update feed.xml"); err != nil && !contentstore.IsConflict(err) {
		return fmt.Errorf("failed to write feed.xml: %w", err)
	}
	return nil
}

// ensureStructure materializes docs/ and docs/cards/ with .keep placeholders.
// Conflict responses mean the placeholders are already committed.
func (p *Publisher) ensureStructure(ctx context.Context) error {
	for _, path := range []string{"docs/.keep", "docs/cards/.keep"} {
		err := p.store.Put(ctx, path, []byte{}, "chore: ensure "+path)
		if err != nil && !contentstore.IsConflict(err) {
			return fmt.Errorf("failed to ensure %s: %w", path, err)
		}
	}
	return nil
}

// retainedSlugs computes the slug set the store should keep after publishing
// slug, newest first. Weekly cadence keeps only the current week; daily
// cadence keeps a rolling window of the most recent cards.
func (p *Publisher) retainedSlugs(ctx context.Context, slug string) ([]string, error) {
	if p.cadence == config.CadenceWeekly {
		return []string{slug}, nil
	}

	slugs, err := p.listSlugsDesc(ctx)
	if err != nil {
		return nil, err
	}
	if len(slugs) == 0 || slugs[0] != slug {
		slugs = append([]string{slug}, slugs...)
	}
	if len(slugs) > p.maxFeedItems {
		slugs = slugs[:p.maxFeedItems]
	}
	return slugs, nil
}

// listSlugsDesc lists card slugs in the store, newest first. Slugs sort
// lexicographically by recency within a cadence policy, so a plain reverse
// string sort is the ordering.
func (p *Publisher) listSlugsDesc(ctx context.Context) ([]string, error) {
	names, err := p.store.List(ctx, cardsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}

	slugs := make([]string, 0, len(names))
	for _, name := range names {
		if !strings.HasSuffix(name, ".json") || name == "latest.json" {
			continue
		}
		slugs = append(slugs, strings.TrimSuffix(name, ".json"))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(slugs)))
	return slugs, nil
}

// pruneExcept deletes every stored card whose slug is not in keep. The latest
// pointer and non-card files are never touched.
func (p *Publisher) pruneExcept(ctx context.Context, keep []string) error {
	if len(keep) == 0 {
		return nil
	}
	keepSet := make(map[string]bool, len(keep))
	for _, s := range keep {
		keepSet[s] = true
	}

	slugs, err := p.listSlugsDesc(ctx)
	if err != nil {
		return err
	}
	for _, slug := range slugs {
		if keepSet[slug] {
			continue
		}
		if err := p.store.Delete(ctx, CardPath(slug), "chore: prune card "+slug); err != nil {
			return fmt.Errorf("failed to prune card %s: %w", slug, err)
		}
		log.Printf("[PUBLISHER] Pruned card %s", slug)
	}
	return nil
}

// banner renders the human time-context line shown on the card and passed to
// the news provider.
func (p *Publisher) banner(nowLocal time.Time) string {
	if p.cadence == config.CadenceDaily {
		return nowLocal.Format("Mon, 02 Jan 2006 • 15:04 MST") + " • SAP EMEA"
	}
	monday := nowLocal.AddDate(0, 0, -isoWeekdayOffset(nowLocal))
	sunday := monday.AddDate(0, 0, 6)
	label := fmt.Sprintf("Week of %s - %s", monday.Format("02 Jan 2006"), sunday.Format("02 Jan 2006"))
	return fmt.Sprintf("%s • %s • SAP EMEA", label, nowLocal.Format("MST"))
}

// isoWeekdayOffset returns the number of days since Monday.
func isoWeekdayOffset(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 6
	}
	return wd - 1
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "config"
	case contentstore.IsConflict(err):
		return "conflict"
	default:
		return "store"
	}
}
