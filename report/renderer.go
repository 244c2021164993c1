package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	ireport "github.com/groupledger/groupledger/internal/report"
)

// Renderer produces report artifacts: HTML straight from the template, PDF
// through Gotenberg. Artifacts land in dir and are served under urlPrefix.
type Renderer struct {
	client    *Client
	dir       string
	urlPrefix string
	logger    *slog.Logger
}

// NewRenderer constructs a Renderer.
func NewRenderer(client *Client, dir, urlPrefix string, logger *slog.Logger) *Renderer {
	return &Renderer{client: client, dir: dir, urlPrefix: urlPrefix, logger: logger}
}

var statementTemplate = template.Must(template.New("statement").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin-bottom: 1.5em; }
th, td { border-bottom: 1px solid #ccc; padding: 4px 8px; text-align: left; }
td.amount { text-align: right; font-variant-numeric: tabular-nums; }
tr.total td { font-weight: bold; border-top: 2px solid #333; }
</style></head>
<body>
<h1>{{.Title}}</h1>
<p>Period end {{.PeriodEnd.Format "2006-01-02"}} &middot; {{.Currency}} &middot; revision {{.Revision}}</p>
{{range .Sections}}
<h2>{{.Heading}}</h2>
<table>
{{range .Lines}}<tr><td>{{.Label}}</td><td class="amount">{{.Amount}}</td></tr>
{{end}}<tr class="total"><td>Total</td><td class="amount">{{.Total}}</td></tr>
</table>
{{end}}
</body>
</html>
`))

// Render writes the artifact for one report and returns its download URL.
func (r *Renderer) Render(ctx context.Context, rep ireport.ConsolidatedReport, format ireport.Format) (string, error) {
	var buf bytes.Buffer
	if err := statementTemplate.Execute(&buf, rep); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}

	var payload []byte
	switch format {
	case ireport.FormatHTML:
		payload = buf.Bytes()
	case ireport.FormatPDF:
		pdf, err := r.client.ConvertHTML(ctx, buf.Bytes())
		if err != nil {
			return "", err
		}
		payload = pdf
	default:
		return "", fmt.Errorf("%w: %s", ireport.ErrUnknownFormat, format)
	}

	name := fmt.Sprintf("%s.%s", uuid.NewString(), format)
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(r.dir, name), payload, 0o644); err != nil {
		return "", err
	}
	r.logger.Info("report artifact written",
		slog.Int64("report_id", rep.ID),
		slog.String("format", string(format)),
		slog.String("file", name))
	return r.urlPrefix + "/" + name, nil
}
