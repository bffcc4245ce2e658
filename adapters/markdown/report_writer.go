package markdown

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"goequity/domain/inequality"
	"goequity/domain/run"
	"goequity/ports"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// ReportWriter renders an analysis as a Markdown document, or as a
// standalone HTML page built from the same Markdown
type ReportWriter struct {
	html bool
}

// NewMarkdownWriter creates a writer producing Markdown
func NewMarkdownWriter() ports.ReportWriter {
	return &ReportWriter{}
}

// NewHTMLWriter creates a writer producing a complete HTML page
func NewHTMLWriter() ports.ReportWriter {
	return &ReportWriter{html: true}
}

func (w *ReportWriter) ContentType() string {
	if w.html {
		return "text/html; charset=utf-8"
	}
	return "text/markdown; charset=utf-8"
}

func (w *ReportWriter) Extension() string {
	if w.html {
		return ".html"
	}
	return ".md"
}

func (w *ReportWriter) Write(ctx context.Context, record *run.Record, out io.Writer) error {
	if record == nil || record.Manifest == nil {
		return fmt.Errorf("record has no manifest")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := []byte(render(record))
	if w.html {
		p := parser.NewWithExtensions(parser.CommonExtensions)
		renderer := html.NewRenderer(html.RendererOptions{
			Flags: html.CommonFlags | html.CompletePage,
			Title: "Analysis " + record.ID().String(),
		})
		doc = markdown.ToHTML(doc, p, renderer)
	}

	if _, err := out.Write(doc); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func render(record *run.Record) string {
	m := record.Manifest
	var b strings.Builder

	fmt.Fprintf(&b, "# Analysis %s\n\n", m.AnalysisID)
	fmt.Fprintf(&b, "| field | value |\n|---|---|\n")
	fmt.Fprintf(&b, "| kind | %s |\n", m.Kind)
	fmt.Fprintf(&b, "| comparator | %s |\n", m.Comparator.Family)
	fmt.Fprintf(&b, "| intervention | %s |\n", m.Intervention.Family)
	fmt.Fprintf(&b, "| groups | %d |\n", m.Settings.NGroups)
	fmt.Fprintf(&b, "| seed | %d |\n", m.Seed)
	fmt.Fprintf(&b, "| code version | %s |\n", m.CodeVersion)
	fmt.Fprintf(&b, "| fingerprint | `%s` |\n\n", m.Fingerprint.Fingerprint)

	if bc := record.BaseCase; bc != nil {
		b.WriteString("## Base case\n\n| group | comparator | intervention |\n|---:|---:|---:|\n")
		for g := 0; g < len(bc.Comparator) && g < len(bc.Intervention); g++ {
			fmt.Fprintf(&b, "| %d | %s | %s |\n", g+1, num(bc.Comparator[g]), num(bc.Intervention[g]))
		}
		b.WriteString("\n| output | value |\n|---|---:|\n")
		values := bc.Result.Values()
		for i, name := range inequality.OutputNames {
			fmt.Fprintf(&b, "| %s | %s |\n", name, num(values[i]))
		}
		b.WriteString("\n")
	}

	if p := record.Probabilistic; p != nil {
		fmt.Fprintf(&b, "## Probabilistic sensitivity analysis\n\n%d iterations, %d successful, %d skipped, %g%% intervals.\n\n",
			p.Iterations, p.Successful, p.Skipped, 100*p.ConfidenceLevel)
		b.WriteString("| output | mean | lower | upper | sd | n |\n|---|---:|---:|---:|---:|---:|\n")
		for _, name := range inequality.OutputNames {
			s, ok := p.Summary(name)
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %d |\n",
				name, num(s.Mean), num(s.Lower), num(s.Upper), num(s.StdDev), s.N)
		}
		if len(p.SkippedByKind) > 0 {
			b.WriteString("\n| skipped kind | count |\n|---|---:|\n")
			for _, kind := range p.SkippedKinds() {
				fmt.Fprintf(&b, "| %s | %d |\n", kind, p.SkippedByKind[kind])
			}
		}
	}
	return b.String()
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprint(v)
	}
	return fmt.Sprintf("%.4f", v)
}
