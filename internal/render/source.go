package render

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

//go:embed templates/invoice.html
var defaultTemplate string

// ErrTemplateUnavailable is returned when a template cannot be loaded.
var ErrTemplateUnavailable = errors.New("invoice template unavailable")

// TemplateSource loads the raw invoice template.
type TemplateSource interface {
	Load(ctx context.Context) (string, error)
}

// EmbeddedSource serves the template compiled into the binary.
type EmbeddedSource struct{}

func (EmbeddedSource) Load(context.Context) (string, error) {
	return defaultTemplate, nil
}

// FileSource reads the template from disk on every load.
type FileSource struct {
	Path string
}

func (s FileSource) Load(context.Context) (string, error) {
	const op = "FileSource.Load"

	b, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrTemplateUnavailable, err)
	}
	return string(b), nil
}

// HTTPSource fetches the template from a URL.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s HTTPSource) Load(ctx context.Context) (string, error) {
	const op = "HTTPSource.Load"

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrTemplateUnavailable, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrTemplateUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: %w: status %d", op, ErrTemplateUnavailable, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrTemplateUnavailable, err)
	}
	return string(b), nil
}

// SourceFor picks a source from a TEMPLATE_PATH value: empty means the
// embedded template, http(s) URLs are fetched, anything else is a file path.
func SourceFor(location string) TemplateSource {
	switch {
	case location == "":
		return EmbeddedSource{}
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return HTTPSource{URL: location}
	default:
		return FileSource{Path: location}
	}
}
