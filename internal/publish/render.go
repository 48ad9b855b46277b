package publish

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"newsdesk/internal/store"
)

const newsletterTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body>
<h1>{{.Subject}}</h1>
{{range .Insights}}
<section>
<h2>{{.Headline}}</h2>
<p class="confidence">Confidence: {{.ConfidenceLabel}} &middot; Novelty: {{.NoveltyScore}}/10</p>
<div>{{.SummaryMarkdown}}</div>
</section>
{{end}}
</body>
</html>
`

var newsletterTmpl = template.Must(template.New("newsletter").Parse(newsletterTemplate))

// socialLimit bounds the social blurb to the common post length.
const socialLimit = 280

// Rendered is the presentation output for one bundle.
type Rendered struct {
	Subject        string
	NewsletterHTML string
	SocialText     string
}

// Render produces the newsletter HTML and social blurb for a set of approved
// insights, ordered as given. Insights are expected pre-sorted by novelty.
func Render(periodStart, periodEnd time.Time, insights []*store.Insight) (*Rendered, error) {
	if len(insights) == 0 {
		return nil, fmt.Errorf("render bundle: no insights to render")
	}

	subject := fmt.Sprintf("Longevity Digest: %s – %s",
		periodStart.Format("Jan 2"), periodEnd.Format("Jan 2, 2006"))

	var html strings.Builder
	if err := newsletterTmpl.Execute(&html, struct {
		Subject  string
		Insights []*store.Insight
	}{Subject: subject, Insights: insights}); err != nil {
		return nil, fmt.Errorf("render newsletter: %w", err)
	}

	return &Rendered{
		Subject:        subject,
		NewsletterHTML: html.String(),
		SocialText:     socialBlurb(subject, insights),
	}, nil
}

// socialBlurb leads with the top headline and counts the rest.
func socialBlurb(subject string, insights []*store.Insight) string {
	lead := strings.TrimSpace(insights[0].Headline)
	blurb := lead
	if extra := len(insights) - 1; extra > 0 {
		blurb = fmt.Sprintf("%s — plus %d more in this week's digest", lead, extra)
	}
	if blurb == "" {
		blurb = subject
	}
	if runes := []rune(blurb); len(runes) > socialLimit {
		blurb = string(runes[:socialLimit-1]) + "…"
	}
	return blurb
}
