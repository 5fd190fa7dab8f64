package tui

import (
	"strconv"
	"strings"
	"sync"

	"fsconsole/internal/format"
	"fsconsole/internal/model"

	"github.com/charmbracelet/glamour"
)

var (
	mdRendererMu sync.Mutex
	// Renderers are cached by style and wrap width; WithAutoStyle can block on
	// terminal queries, so a fixed style is used instead.
	mdRenderers = map[string]*glamour.TermRenderer{}
)

func renderMarkdown(md string, width int) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	width = max(width, 10)

	mdRendererMu.Lock()
	style := markdownStyle()
	key := style + ":" + strconv.Itoa(width)
	r := mdRenderers[key]
	mdRendererMu.Unlock()

	if r == nil {
		rr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return md
		}
		mdRendererMu.Lock()
		if existing := mdRenderers[key]; existing != nil {
			r = existing
		} else {
			mdRenderers[key] = rr
			r = rr
		}
		mdRendererMu.Unlock()
	}

	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// itemMarkdown is the detail pane document: a heading, the version summary,
// the description, and the backend object as YAML.
func itemMarkdown(it model.Item) string {
	var b strings.Builder
	b.WriteString("# " + it.Name + "\n\n")
	b.WriteString("- **kind**: " + it.Kind.Label() + "\n")
	tag := it.Tag
	if tag == "" {
		tag = "(untagged)"
	}
	b.WriteString("- **tag**: " + tag + "\n")
	if v := it.Version(); v != "" {
		b.WriteString("- **version**: `" + v + "`\n")
	}
	if it.Iter > 0 {
		b.WriteString("- **iter**: " + strconv.Itoa(it.Iter) + "\n")
	}
	if len(it.Labels) > 0 {
		b.WriteString("- **labels**: " + it.Labels.String() + "\n")
	}
	if d := strings.TrimSpace(it.Description); d != "" {
		b.WriteString("\n" + d + "\n")
	}
	if y, err := format.ItemYAML(it); err == nil && strings.TrimSpace(y) != "" {
		b.WriteString("\n```yaml\n" + strings.TrimRight(y, "\n") + "\n```\n")
	}
	return b.String()
}
