// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package selection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/pdiddy/source-retriever/pkg/types"
)

// selectPromptTmpl asks the model to pick the candidates worth reading in full.
var selectPromptTmpl = template.Must(template.New("select").Parse(`You are a meticulous researcher.
Analyze the search results below and select the high-quality, relevant and authoritative sources worth reading in full.

Selection criteria:
1. Relevance: the source relates directly to the research topic and queries.
2. Quality: prefer in-depth analysis, technical documentation, case studies, and reputable news or blogs over SEO farms and short marketing copy.
3. Diversity: mix theoretical, practical and data-driven sources where possible.

Discard immediately:
- Content-poor pages that are mostly link lists, navigation menus or search interfaces without a substantial article body.
- Reference tools, directories and category listings, even on reputable sites.
- Homepages, portals and generic landing pages (root URLs).
- Functional pages: login, registration, paywalls, shopping carts, "About us", "Contact".
- Results whose snippet shows only navigation text or unrelated keywords.

Respond with a JSON object with an "indices" field holding the 0-based "index" values of the selected results, most useful first. Do not include any text outside the JSON object.

Search results:
{{.Results}}
`))

// renderPrompt executes the selection prompt with the batch encoded as JSON.
func renderPrompt(items []types.SelectionItem) (string, error) {
	if items == nil {
		items = []types.SelectionItem{}
	}
	batch, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encoding selection batch: %w", err)
	}
	var buf bytes.Buffer
	if err := selectPromptTmpl.Execute(&buf, struct{ Results string }{Results: string(batch)}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
