// Package feed renders the RSS 2.0 document that wraps recent cards. The feed
// is regenerated in full on every publish; consumers extract the embedded card
// either from <content:encoded> (raw JSON) or from the [CARD_B64] block in the
// description for pipelines without raw-block support.
package feed

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/Noptus/btp4ai-wire/internal/contentstore"
)

// Builder renders the syndication feed from retained slugs and stored cards.
type Builder struct {
	store        contentstore.Store
	siteURL      string
	maxItems     int
	channelTitle string
	channelDesc  string

	// Card bytes are immutable once written, so a short-TTL cache saves the
	// per-slug refetch when the feed is rebuilt shortly after the card write.
	cards *cache.Cache
}

// NewBuilder creates a feed builder for the given site and channel metadata.
func NewBuilder(store contentstore.Store, siteURL string, maxItems int, channelTitle, channelDesc string) *Builder {
	return &Builder{
		store:        store,
		siteURL:      strings.TrimSuffix(siteURL, "/"),
		maxItems:     maxItems,
		channelTitle: channelTitle,
		channelDesc:  channelDesc,
		cards:        cache.New(10*time.Minute, 30*time.Minute),
	}
}

// Render builds the feed document for the given slugs, which the caller
// guarantees are ordered newest-first. The list is truncated to the configured
// maximum. A card that cannot be fetched becomes an empty-object placeholder
// entry rather than failing the whole feed.
func (b *Builder) Render(ctx context.Context, slugsDesc []string) ([]byte, error) {
	if len(slugsDesc) > b.maxItems {
		slugsDesc = slugsDesc[:b.maxItems]
	}

	nowHTTP := httpDate(time.Now().UTC())

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	sb.WriteString(`<rss version="2.0"` + "\n")
	sb.WriteString(`  xmlns:content="http://purl.org/rss/1.0/modules/content/">` + "\n")
	sb.WriteString("  <channel>\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", escape(b.channelTitle))
	fmt.Fprintf(&sb, "    <link>%s</link>\n", escape(b.siteURL))
	fmt.Fprintf(&sb, "    <description>%s</description>\n", escape(b.channelDesc))
	sb.WriteString("    <language>en</language>\n")
	fmt.Fprintf(&sb, "    <lastBuildDate>%s</lastBuildDate>\n", nowHTTP)

	for _, slug := range slugsDesc {
		b.writeItem(ctx, &sb, slug, nowHTTP)
	}

	sb.WriteString("  </channel>\n</rss>\n")
	return []byte(sb.String()), nil
}

func (b *Builder) writeItem(ctx context.Context, sb *strings.Builder, slug, pubDate string) {
	name := slug + ".json"
	link := fmt.Sprintf("%s/cards/%s", b.siteURL, name)
	title := fmt.Sprintf("%s — %s", b.channelTitle, labelFromSlug(slug))

	// Identifier derived from the filename only: rebuilding the feed for the
	// same slug must yield the same GUID or deduplicating consumers would see
	// every rebuild as a new entry.
	guid := fmt.Sprintf("%x", sha1.Sum([]byte(name)))

	cardJSON := b.cardJSON(ctx, slug)
	cardB64 := base64.StdEncoding.EncodeToString([]byte(cardJSON))

	sb.WriteString("    <item>\n")
	fmt.Fprintf(sb, "      <title>%s</title>\n", escape(title))
	fmt.Fprintf(sb, "      <link>%s</link>\n", escape(link))
	fmt.Fprintf(sb, "      <guid isPermaLink=\"false\">%s</guid>\n", guid)
	fmt.Fprintf(sb, "      <pubDate>%s</pubDate>\n", pubDate)
	fmt.Fprintf(sb, "      <description><![CDATA[\n<p>Adaptive Card JSON: <a href=\"%s\">%s</a></p>\n<p>[CARD_B64]%s[/CARD_B64]</p>\n]]></description>\n", link, name, cardB64)
	fmt.Fprintf(sb, "      <content:encoded><![CDATA[%s]]></content:encoded>\n", cardJSON)
	sb.WriteString("    </item>\n")
}

// cardJSON fetches the stored card for slug, substituting "{}" when the card
// is missing or unreadable so one bad entry never sinks the feed.
func (b *Builder) cardJSON(ctx context.Context, slug string) string {
	if cached, found := b.cards.Get(slug); found {
		return cached.(string)
	}

	entry, err := b.store.Get(ctx, "docs/cards/"+slug+".json")
	if err != nil {
		if !errors.Is(err, contentstore.ErrNotFound) {
			log.Printf("[FEED] failed to fetch card %s: %v", slug, err)
		}
		return "{}"
	}

	text := string(entry.Content)
	b.cards.Set(slug, text, cache.DefaultExpiration)
	return text
}

var weekSlugRe = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)

// labelFromSlug renders a human title fragment for a slug: a week range for
// calendar-week slugs, the date prefix for timestamp slugs.
func labelFromSlug(slug string) string {
	if m := weekSlugRe.FindStringSubmatch(slug); m != nil {
		var year, week int
		fmt.Sscanf(slug, "%d-W%d", &year, &week)
		monday, err := mondayOfISOWeek(year, week)
		if err != nil {
			return slug
		}
		sunday := monday.AddDate(0, 0, 6)
		return fmt.Sprintf("Week of %s - %s", monday.Format("02 Jan 2006"), sunday.Format("02 Jan 2006"))
	}
	if len(slug) >= 10 {
		return slug[:10]
	}
	return slug
}

// mondayOfISOWeek returns the Monday starting the given ISO week.
func mondayOfISOWeek(year, week int) (time.Time, error) {
	// Jan 4 is always in ISO week 1.
	t := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := t.AddDate(0, 0, 1-weekday).AddDate(0, 0, (week-1)*7)
	if y, w := monday.ISOWeek(); y != year || w != week {
		return time.Time{}, fmt.Errorf("no such ISO week: %d-W%02d", year, week)
	}
	return monday, nil
}

// httpDate formats t as an RFC 1123 date with the GMT zone RSS readers expect.
func httpDate(t time.Time) string {
	return t.UTC().Format("Mon, 02 Jan 2006 15:04:05") + " GMT"
}

// escape XML-escapes text content.
func escape(s string) string {
	var buf strings.Builder
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
