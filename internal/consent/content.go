package consent

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/samber/lo"
)

const legalPathPrefix = "/legal/"

var legalLinkPattern = regexp.MustCompile(`\]\(/legal/([A-Za-z0-9_-]+)\)`)

// Render substitutes {{token}} placeholders in the document content.
func Render(doc domain.ConsentDocument) string {
	if len(doc.Placeholders) == 0 {
		return doc.Content
	}

	tokens := lo.Keys(doc.Placeholders)
	sort.Strings(tokens)

	pairs := make([]string, 0, len(tokens)*2)
	for _, token := range tokens {
		pairs = append(pairs, "{{"+token+"}}", doc.Placeholders[token])
	}

	return strings.NewReplacer(pairs...).Replace(doc.Content)
}

// LegalLinks lists the document types referenced by markdown links in content.
func LegalLinks(content string) []string {
	var types []string
	for _, m := range legalLinkPattern.FindAllStringSubmatch(content, -1) {
		types = append(types, m[1])
	}
	return lo.Uniq(types)
}

// linkedDocumentType extracts the document type from a /legal/{type} href.
// Absolute URLs are accepted as long as the path matches.
func linkedDocumentType(href string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}

	docType, ok := strings.CutPrefix(u.Path, legalPathPrefix)
	if !ok || docType == "" || strings.Contains(docType, "/") {
		return "", false
	}

	return docType, true
}
