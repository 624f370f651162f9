// Package sanitize cleans user-submitted rich text before persistence.
// HTML goes through allow-list bluemonday policies (a wider one for posts,
// a stricter one for comments); the structured Delta representation is
// walked and stripped of any attribute outside a fixed allow-list.
package sanitize

import (
	"encoding/json"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	postPolicy    *bluemonday.Policy
	commentPolicy *bluemonday.Policy
)

func init() {
	postPolicy = bluemonday.NewPolicy()
	postPolicy.AllowElements(
		"p", "br", "h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "blockquote", "pre", "code",
		"b", "strong", "i", "em", "u", "s", "sub", "sup", "hr",
	)
	postPolicy.AllowAttrs("href").OnElements("a")
	postPolicy.AllowAttrs("src", "alt", "title").OnElements("img")
	postPolicy.AllowURLSchemes("http", "https", "mailto")
	postPolicy.RequireParseableURLs(true)
	postPolicy.AddTargetBlankToFullyQualifiedLinks(true)
	postPolicy.RequireNoReferrerOnLinks(true)

	commentPolicy = bluemonday.NewPolicy()
	commentPolicy.AllowElements("p", "br", "b", "strong", "i", "em", "s", "code")
	commentPolicy.AllowAttrs("href").OnElements("a")
	commentPolicy.AllowURLSchemes("http", "https")
	commentPolicy.RequireParseableURLs(true)
	commentPolicy.RequireNoReferrerOnLinks(true)
}

// PostContent sanitizes post HTML with the wide allow-list. Unknown and
// unsafe tags and attributes are stripped, not escaped-and-kept.
func PostContent(raw string) string {
	return strings.TrimSpace(postPolicy.Sanitize(raw))
}

// CommentContent sanitizes comment HTML with the strict allow-list.
func CommentContent(raw string) string {
	return strings.TrimSpace(commentPolicy.Sanitize(raw))
}

// deltaAttrs is the attribute allow-list for Delta operations.
var deltaAttrs = map[string]struct{}{
	"bold":       {},
	"italic":     {},
	"underline":  {},
	"strike":     {},
	"link":       {},
	"header":     {},
	"list":       {},
	"blockquote": {},
	"code-block": {},
}

// Delta walks a Delta document and strips every operation attribute not in
// the allow-list. It returns nil when the input is not a well-formed Delta
// (missing or malformed "ops" array); callers must treat nil as a hard
// validation failure, not an empty document.
func Delta(raw string) []byte {
	var doc struct {
		Ops []map[string]json.RawMessage `json:"ops"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil
	}
	if doc.Ops == nil {
		return nil
	}

	ops := make([]map[string]any, 0, len(doc.Ops))
	for _, op := range doc.Ops {
		insertRaw, ok := op["insert"]
		if !ok {
			return nil
		}
		var insert any
		if err := json.Unmarshal(insertRaw, &insert); err != nil {
			return nil
		}
		// Embeds (non-string inserts) are dropped rather than persisted.
		if _, isString := insert.(string); !isString {
			continue
		}

		cleaned := map[string]any{"insert": insert}
		if attrsRaw, ok := op["attributes"]; ok {
			var attrs map[string]any
			if err := json.Unmarshal(attrsRaw, &attrs); err != nil {
				return nil
			}
			kept := make(map[string]any)
			for k, v := range attrs {
				if _, allowed := deltaAttrs[k]; allowed {
					kept[k] = v
				}
			}
			if len(kept) > 0 {
				cleaned["attributes"] = kept
			}
		}
		ops = append(ops, cleaned)
	}

	out, err := json.Marshal(map[string]any{"ops": ops})
	if err != nil {
		return nil
	}
	return out
}

// Excerpt strips tags from HTML and truncates the plain text at the last
// whitespace boundary that leaves room for a trailing ellipsis within
// maxLength. Words are never split mid-token.
func Excerpt(rawHTML string, maxLength int) string {
	text := strings.Join(strings.Fields(stripTags(rawHTML)), " ")
	if maxLength <= 0 || len(text) <= maxLength {
		return text
	}

	const ellipsis = "..."
	budget := maxLength - len(ellipsis)
	if budget <= 0 {
		return ellipsis
	}

	cut := text[:budget]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ") + ellipsis
}

// stripTags extracts the text content of an HTML fragment.
func stripTags(fragment string) string {
	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(tokenizer.Text())
			b.WriteByte(' ')
		}
	}
}
