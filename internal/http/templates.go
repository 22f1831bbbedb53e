package httpapp

import (
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

type Templates struct {
	Claim    *template.Template
	NotFound *template.Template
}

func loadTemplates() (*Templates, error) {
	funcs := template.FuncMap{
		"formatTime": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Format("2006-01-02 15:04")
		},
	}

	layoutContent, err := templateFS.ReadFile("templates/layout.html")
	if err != nil {
		return nil, err
	}

	makePage := func(pageName string) (*template.Template, error) {
		pageContent, err := templateFS.ReadFile("templates/" + pageName + ".html")
		if err != nil {
			return nil, err
		}
		t, err := template.New("layout").Funcs(funcs).Parse(string(layoutContent))
		if err != nil {
			return nil, err
		}
		return t.Parse(string(pageContent))
	}

	claim, err := makePage("claim")
	if err != nil {
		return nil, err
	}
	notFound, err := makePage("notfound")
	if err != nil {
		return nil, err
	}
	return &Templates{Claim: claim, NotFound: notFound}, nil
}
