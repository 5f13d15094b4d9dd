package handlers

import (
	"embed"
	"html/template"
	"io"
	"strings"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageRenderer renders the embedded HTML pages shown to browsers
type PageRenderer struct {
	templates *template.Template
}

// NewPageRenderer parses the embedded templates. It panics on a malformed
// template since they are compiled into the binary.
func NewPageRenderer() *PageRenderer {
	return &PageRenderer{
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
	}
}

// Render implements echo.Renderer
func (r *PageRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

type messagePage struct {
	Title   string
	Message string
}

type textPage struct {
	Title   string
	Text    string
	OneTime bool
}

type passwordPage struct {
	Title   string
	Action  string
	Message string
}

// wantsHTML reports whether the client asked for a page rather than JSON
func wantsHTML(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}
