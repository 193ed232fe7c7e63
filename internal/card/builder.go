// Package card renders one emission's Adaptive Card document from the shared
// template and a news item list.
package card

import (
	"fmt"
	"strings"

	"github.com/Noptus/btp4ai-wire/internal/newswire"
)

// Build renders a Teams-ready Adaptive Card. The returned document is a fresh
// structure; the template itself is never touched.
func (t *Template) Build(title, whenLocal string, items []newswire.Item) map[string]any {
	mapping := map[string]string{
		"{{TITLE}}":      title,
		"{{WHEN_LOCAL}}": whenLocal,
	}

	doc := substitute(t.root, mapping).(map[string]any)

	body := doc["body"].([]any)
	for idx, block := range body {
		m, ok := block.(map[string]any)
		if !ok {
			continue
		}
		if m["type"] == "Placeholder" && m["id"] == "NEWS_ITEMS" {
			expanded := make([]any, 0, len(body)+len(items))
			expanded = append(expanded, body[:idx]...)
			expanded = append(expanded, newsBlocks(items)...)
			expanded = append(expanded, body[idx+1:]...)
			doc["body"] = expanded
			break
		}
	}
	return doc
}

// substitute walks the template tree and returns a new tree with placeholder
// strings replaced. Maps and slices are rebuilt, never shared, so the source
// stays immutable.
func substitute(node any, mapping map[string]string) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[key] = substitute(val, mapping)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = substitute(item, mapping)
		}
		return out
	case string:
		result := v
		for placeholder, replacement := range mapping {
			result = strings.ReplaceAll(result, placeholder, replacement)
		}
		return result
	default:
		return v
	}
}

// newsBlocks renders one container per item, or a single placeholder block
// when the list is empty.
func newsBlocks(items []newswire.Item) []any {
	if len(items) == 0 {
		return []any{map[string]any{
			"type":     "TextBlock",
			"text":     "No curated items available for this week.",
			"isSubtle": true,
		}}
	}

	blocks := make([]any, 0, len(items))
	for i, it := range items {
		blocks = append(blocks, newsContainer(i+1, it))
	}
	return blocks
}

func newsContainer(idx int, it newswire.Item) map[string]any {
	blockID := fmt.Sprintf("s_%d", idx)
	return map[string]any{
		"type":  "Container",
		"style": "default",
		"selectAction": map[string]any{
			"type":  "Action.OpenUrl",
			"title": "Read",
			"url":   it.URL,
		},
		"items": []any{
			map[string]any{
				"type": "ColumnSet",
				"columns": []any{
					map[string]any{
						"type":  "Column",
						"width": "auto",
						"items": []any{
							map[string]any{
								"type": "Image",
								"url":  it.SourceLogo,
								"size": "Small",
							},
						},
					},
					map[string]any{
						"type":  "Column",
						"width": "stretch",
						"items": []any{
							map[string]any{
								"type":   "TextBlock",
								"text":   fmt.Sprintf("[%s](%s)", it.Headline, it.URL),
								"wrap":   true,
								"weight": "Bolder",
							},
							map[string]any{
								"type":     "TextBlock",
								"text":     it.Meta,
								"isSubtle": true,
								"spacing":  "None",
							},
						},
					},
				},
			},
			map[string]any{
				"type":      "TextBlock",
				"id":        blockID,
				"text":      it.BTPAngle,
				"wrap":      true,
				"isVisible": false,
			},
		},
		"actions": []any{
			map[string]any{
				"type":  "Action.OpenUrl",
				"title": "Read",
				"url":   it.URL,
			},
			map[string]any{
				"type":           "Action.ToggleVisibility",
				"title":          "SAP angle",
				"targetElements": []any{blockID},
			},
		},
	}
}
