package handler

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/garrettladley/whoopweb/internal/service/resource"
	"github.com/garrettladley/whoopweb/internal/xerrors"
	"github.com/garrettladley/whoopweb/internal/xhttp"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type pageData struct {
	LoginPath  string
	LogoutPath string
	Reason     string
	Resources  []string
}

// HandleHome serves the landing page. Register it with "GET /{$}" so other paths still 404.
func HandleHome(w http.ResponseWriter, r *http.Request) {
	render(w, r, "home.html", pageData{LoginPath: PathLogin})
}

func HandleWelcome(w http.ResponseWriter, r *http.Request) {
	render(w, r, "welcome.html", pageData{
		LogoutPath: PathLogout,
		Resources:  resource.Names(),
	})
}

func HandleLoginFailed(w http.ResponseWriter, r *http.Request) {
	render(w, r, "login_failed.html", pageData{
		LoginPath: PathLogin,
		Reason:    r.URL.Query().Get(ParamReason),
	})
}

func render(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	xhttp.SetHeaderContentTypeTextHTML(w)
	xhttp.SetHeaderNoStore(w)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		xerrors.WriteError(r.Context(), w, xerrors.Internal(xerrors.WithCause(err)))
	}
}
