package fileserver

import (
	"bytes"
	"text/template"

	"github.com/sidkik/sshcp-v1/pkg/errors"
)

// Renderer renders a staged file's contents before transfer. Real
// deployments plug in their own template engine; the default understands
// Go's text/template syntax.
type Renderer interface {
	Render(contents []byte, data map[string]interface{}) ([]byte, error)
}

// TemplateRenderer renders with the standard library's text/template.
type TemplateRenderer struct{}

// Render implements Renderer.
func (TemplateRenderer) Render(contents []byte, data map[string]interface{}) ([]byte, error) {
	tmpl, err := template.New("sshcp").Option("missingkey=error").Parse(string(contents))
	if err != nil {
		return nil, errors.WithContext(err, "parse template")
	}

	var rendered bytes.Buffer
	if err := tmpl.Execute(&rendered, data); err != nil {
		return nil, errors.WithContext(err, "render template")
	}
	return rendered.Bytes(), nil
}
