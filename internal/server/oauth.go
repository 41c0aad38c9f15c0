package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"golang.org/x/oauth2"
)

// CallbackPath is where the identity provider redirects after consent.
const CallbackPath = "/callback"

// Exchanger trades an authorization code for a token; [services.GoogleService] implements it.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// LoginResult is the outcome of one browser login.
type LoginResult struct {
	Token *oauth2.Token
	Err   error
}

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title>
<style>
body { font-family: sans-serif; display: flex; align-items: center; justify-content: center; height: 100vh; margin: 0; background: #f4f4f4; }
main { background: #fff; padding: 2rem 3rem; border-radius: 8px; text-align: center; }
h1 { color: {{.Color}}; }
</style></head>
<body><main><h1>{{.Title}}</h1><p>{{.Detail}}</p></main></body>
</html>
`))

type loginPageData struct {
	Title  string
	Detail string
	Color  string
}

// LoginHandler serves the OAuth2 authorization code callback of the CLI login.
//
// The first callback settles the login; later ones are rejected so a replayed
// redirect cannot swap the token.
type LoginHandler struct {
	exchanger Exchanger
	state     string
	results   chan LoginResult

	mu   sync.Mutex
	used bool
	once sync.Once
}

// NewLoginHandler creates a handler expecting state, which must be unguessable.
func NewLoginHandler(exchanger Exchanger, state string) *LoginHandler {
	return &LoginHandler{
		exchanger: exchanger,
		state:     state,
		results:   make(chan LoginResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *LoginHandler) Routes() []string {
	return []string{CallbackPath}
}

func (h *LoginHandler) claim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.used {
		return false
	}
	h.used = true
	return true
}

func (h *LoginHandler) fail(w http.ResponseWriter, status int, err error) {
	h.settle(LoginResult{Err: err})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = loginPage.Execute(w, loginPageData{Title: "Login failed", Detail: err.Error(), Color: "#c0392b"})
}

// ServeHTTP checks state, exchanges the code and reports the token on [LoginHandler.Result].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.claim() {
		http.Error(w, "login already completed", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.fail(w, http.StatusBadRequest, fmt.Errorf("%w: state mismatch", shared.ErrAuthFailed))
		return
	}

	code := q.Get("code")
	if code == "" {
		h.fail(w, http.StatusBadRequest, fmt.Errorf("%w: %s %s", shared.ErrAuthFailed, q.Get("error"), q.Get("error_description")))
		return
	}

	token, err := h.exchanger.Exchange(r.Context(), code)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}

	h.settle(LoginResult{Token: token})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = loginPage.Execute(w, loginPageData{
		Title:  "Logged in",
		Detail: "You can close this window and return to the terminal.",
		Color:  "#2e7d32",
	})
}

func (h *LoginHandler) settle(result LoginResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Result receives exactly one [LoginResult] and is then closed.
func (h *LoginHandler) Result() <-chan LoginResult {
	return h.results
}
