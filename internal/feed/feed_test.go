package feed

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/Noptus/btp4ai-wire/internal/contentstore"
)

// fakeStore serves card bytes from a map and counts fetches.
type fakeStore struct {
	entries map[string][]byte
	gets    int
}

func (s *fakeStore) Get(ctx context.Context, path string) (*contentstore.Entry, error) {
	s.gets++
	content, ok := s.entries[path]
	if !ok {
		return nil, contentstore.ErrNotFound
	}
	return &contentstore.Entry{Path: path, Content: content, SHA: "x"}, nil
}

func (s *fakeStore) Put(ctx context.Context, path string, content []byte, message string) error {
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, path string, message string) error {
	return nil
}

func (s *fakeStore) List(ctx context.Context, dir string) ([]string, error) {
	return nil, nil
}

func (s *fakeStore) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := s.entries[path]
	return ok, nil
}

func storeWith(slugs ...string) *fakeStore {
	s := &fakeStore{entries: make(map[string][]byte)}
	for _, slug := range slugs {
		s.entries["docs/cards/"+slug+".json"] = []byte(fmt.Sprintf(`{"type":"AdaptiveCard","slug":"%s"}`, slug))
	}
	return s
}

func TestRenderCapsItemCount(t *testing.T) {
	slugs := []string{"2025-W35", "2025-W34", "2025-W33", "2025-W32"}
	store := storeWith(slugs...)
	b := NewBuilder(store, "https://example.github.io/wire", 2, "Wire", "desc")

	out, err := b.Render(context.Background(), slugs)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if got := strings.Count(string(out), "<item>"); got != 2 {
		t.Errorf("Expected 2 items, got %d", got)
	}
	if !strings.Contains(string(out), "2025-W35.json") || !strings.Contains(string(out), "2025-W34.json") {
		t.Error("Expected the two newest slugs in the feed")
	}
	if strings.Contains(string(out), "2025-W33.json") {
		t.Error("Slug beyond the cap leaked into the feed")
	}
}

func TestRenderPreservesCallerOrder(t *testing.T) {
	slugs := []string{"2025-W35", "2025-W34"}
	store := storeWith(slugs...)
	b := NewBuilder(store, "https://example.github.io/wire", 10, "Wire", "desc")

	out, err := b.Render(context.Background(), slugs)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	first := strings.Index(string(out), "2025-W35.json")
	second := strings.Index(string(out), "2025-W34.json")
	if first < 0 || second < 0 || first > second {
		t.Errorf("Items out of order: W35 at %d, W34 at %d", first, second)
	}
}

func TestRenderGUIDStableAcrossRebuilds(t *testing.T) {
	store := storeWith("2025-W35")
	b := NewBuilder(store, "https://example.github.io/wire", 10, "Wire", "desc")

	first, err := b.Render(context.Background(), []string{"2025-W35"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	second, err := b.Render(context.Background(), []string{"2025-W35"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	want := fmt.Sprintf("%x", sha1.Sum([]byte("2025-W35.json")))
	for _, out := range [][]byte{first, second} {
		if !strings.Contains(string(out), want) {
			t.Errorf("Expected guid %s in feed", want)
		}
	}
}

// missWrapStore reports misses through a wrapped sentinel, as a store layered
// over another client would.
type missWrapStore struct {
	fakeStore
}

func (s *missWrapStore) Get(ctx context.Context, path string) (*contentstore.Entry, error) {
	return nil, fmt.Errorf("contents lookup for %s: %w", path, contentstore.ErrNotFound)
}

func TestRenderWrappedNotFoundBecomesPlaceholder(t *testing.T) {
	store := &missWrapStore{fakeStore{entries: map[string][]byte{}}}
	b := NewBuilder(store, "https://example.github.io/wire", 10, "Wire", "desc")

	out, err := b.Render(context.Background(), []string{"2025-W35"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(string(out), "<content:encoded><![CDATA[{}]]></content:encoded>") {
		t.Error("Wrapped not-found should yield the empty-object placeholder")
	}
}

func TestRenderMissingCardBecomesPlaceholder(t *testing.T) {
	store := storeWith() // nothing stored
	b := NewBuilder(store, "https://example.github.io/wire", 10, "Wire", "desc")

	out, err := b.Render(context.Background(), []string{"2025-W35"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !strings.Contains(string(out), "<content:encoded><![CDATA[{}]]></content:encoded>") {
		t.Error("Expected an empty-object placeholder for the missing card")
	}
	if got := strings.Count(string(out), "<item>"); got != 1 {
		t.Errorf("Placeholder item should still appear, got %d items", got)
	}
}

func TestRenderEmbedsCardBothWays(t *testing.T) {
	store := storeWith("2025-W35")
	b := NewBuilder(store, "https://example.github.io/wire", 10, "Wire", "desc")

	out, err := b.Render(context.Background(), []string{"2025-W35"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	cardJSON := string(store.entries["docs/cards/2025-W35.json"])
	wantB64 := base64.StdEncoding.EncodeToString([]byte(cardJSON))
	if !strings.Contains(string(out), "[CARD_B64]"+wantB64+"[/CARD_B64]") {
		t.Error("Expected base64 card block in description")
	}
	if !strings.Contains(string(out), "<content:encoded><![CDATA["+cardJSON+"]]></content:encoded>") {
		t.Error("Expected raw card JSON in content:encoded")
	}
}

func TestRenderCachesCardBytes(t *testing.T) {
	store := storeWith("2025-W35")
	b := NewBuilder(store, "https://example.github.io/wire", 10, "Wire", "desc")

	if _, err := b.Render(context.Background(), []string{"2025-W35"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if _, err := b.Render(context.Background(), []string{"2025-W35"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if store.gets != 1 {
		t.Errorf("Expected one store fetch across rebuilds, got %d", store.gets)
	}
}

func TestRenderEscapesChannelMetadata(t *testing.T) {
	store := storeWith()
	b := NewBuilder(store, "https://example.github.io/wire?a=1&b=2", 10, "News & Views <beta>", "desc")

	out, err := b.Render(context.Background(), nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !strings.Contains(string(out), "News &amp; Views &lt;beta&gt;") {
		t.Error("Channel title not XML-escaped")
	}
	if !strings.Contains(string(out), "a=1&amp;b=2") {
		t.Error("Channel link not XML-escaped")
	}
}

func TestLabelFromSlug(t *testing.T) {
	tests := []struct {
		slug string
		want string
	}{
		{"2025-W35", "Week of 25 Aug 2025 - 31 Aug 2025"},
		{"2026-W01", "Week of 29 Dec 2025 - 04 Jan 2026"},
		{"2025-08-25T08-50-00Z", "2025-08-25"},
		{"oddball", "oddball"},
		{"2025-W99", "2025-W99"},
	}
	for _, tt := range tests {
		if got := labelFromSlug(tt.slug); got != tt.want {
			t.Errorf("labelFromSlug(%q) = %q, want %q", tt.slug, got, tt.want)
		}
	}
}
