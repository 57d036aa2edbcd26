// Package personalize renders campaign content for one recipient: Liquid
// placeholder substitution, image URL absolutization, and open-tracking
// pixel injection.
package personalize

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/logger"
)

// Personalizer renders campaign HTML/text for a single contact.
// Safe for concurrent use; parsed templates are cached.
type Personalizer struct {
	engine  *liquid.Engine
	baseURL string
	cache   sync.Map // map[string]*liquid.Template
}

// New creates a Personalizer. baseURL is the public tracking origin used
// for pixel URLs and for absolutizing relative image sources.
func New(baseURL string) *Personalizer {
	e := liquid.NewEngine()
	e.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})
	return &Personalizer{engine: e, baseURL: strings.TrimRight(baseURL, "/")}
}

// Render substitutes placeholders in body for the given contact. Missing
// variables render as empty strings; a template parse error falls back to
// the raw body so a bad template never blocks a send.
func (p *Personalizer) Render(body string, contact *domain.Contact) string {
	tmpl, err := p.parse(body)
	if err != nil {
		logger.Warn("personalize: template parse failed, sending raw body", "error", err.Error())
		return body
	}

	bindings := map[string]interface{}{
		"email":   contact.Email,
		"company": contact.Company,
	}
	out, err := tmpl.RenderString(bindings)
	if err != nil {
		logger.Warn("personalize: render failed, sending raw body", "error", err.Error())
		return body
	}
	return out
}

func (p *Personalizer) parse(body string) (*liquid.Template, error) {
	if cached, ok := p.cache.Load(body); ok {
		return cached.(*liquid.Template), nil
	}
	tmpl, err := p.engine.ParseString(body)
	if err != nil {
		return nil, err
	}
	p.cache.Store(body, tmpl)
	return tmpl, nil
}

var imgSrcRegex = regexp.MustCompile(`(<img[^>]+src=["'])(/[^"']*)(["'])`)

// AbsolutizeImages rewrites root-relative <img src> attributes against the
// tracking origin so images resolve inside mail clients.
func (p *Personalizer) AbsolutizeImages(html string) string {
	if p.baseURL == "" {
		return html
	}
	return imgSrcRegex.ReplaceAllString(html, "${1}"+p.baseURL+"${2}${3}")
}

// InjectPixel appends the 1x1 open-tracking pixel for the given token.
// The pixel goes just before </body> when present, otherwise at the end.
func (p *Personalizer) InjectPixel(html, token string) string {
	if p.baseURL == "" || token == "" {
		return html
	}
	pixel := fmt.Sprintf(
		`<img src="%s/track/open/%s" width="1" height="1" alt="" style="display:none;width:1px;height:1px" />`,
		p.baseURL, token,
	)
	if idx := strings.LastIndex(strings.ToLower(html), "</body>"); idx >= 0 {
		return html[:idx] + pixel + html[idx:]
	}
	return html + pixel
}

// Build produces the final HTML for one contact: render placeholders,
// absolutize images, inject the tracking pixel.
func (p *Personalizer) Build(html string, contact *domain.Contact, token string) string {
	out := p.Render(html, contact)
	out = p.AbsolutizeImages(out)
	return p.InjectPixel(out, token)
}
