package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"path/filepath"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/models"
)

// Transport delivers one follow-up email. Implementations must not retry
// internally; retries are driven by the queue.
type Transport interface {
	Send(ctx context.Context, recipient string, data models.TemplateData) error
}

// Renderer turns template data into the subject and HTML body.
type Renderer struct {
	Subject string
	tmpl    *template.Template
}

func NewRenderer(dir, name, subject string) (*Renderer, error) {
	// Build template path safely
	templatePath := filepath.Join(dir, filepath.Base(name))

	tmpl, err := template.ParseFiles(templatePath)
	if err != nil {
		return nil, fmt.Errorf("template parse error: %w", err)
	}

	return &Renderer{Subject: subject, tmpl: tmpl}, nil
}

func (r *Renderer) Render(data models.TemplateData) (string, error) {
	var body bytes.Buffer

	if err := r.tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}

	return body.String(), nil
}
