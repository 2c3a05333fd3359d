// Package authenticate provides HTTP basic and token authentication.
package authenticate

import (
	"crypto/subtle"
	"net/http"

	"github.com/gorilla/context"
)

const userKey = "USER"

// Authenticator validates credentials and returns the authenticated username.
type Authenticator interface {
	Authenticate(user, password string) (string, bool)
}

// Static authenticates with fixed credentials. It supports both basic
// authentication (username/password) and token authentication (any username
// with the token as password).
type Static struct {
	Username string
	Password string
	Token    string
}

func (a *Static) Authenticate(user, password string) (string, bool) {
	if a.Token != "" {
		if subtle.ConstantTimeCompare([]byte(password), []byte(a.Token)) == 1 {
			return user, true
		}
	}

	if a.Username != "" {
		if subtle.ConstantTimeCompare([]byte(user), []byte(a.Username)) == 1 &&
			subtle.ConstantTimeCompare([]byte(password), []byte(a.Password)) == 1 {
			return user, true
		}
	}

	return "", false
}

// Middleware wraps h so that every request must carry credentials accepted by
// a. The authenticated username is available via UserFromRequest.
func Middleware(a Authenticator, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="lfsd"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		user, ok := a.Authenticate(username, password)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="lfsd"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		context.Set(r, userKey, user)
		h.ServeHTTP(w, r)
	})
}

// UserFromRequest returns the username set by Middleware, or "" if the
// request was not authenticated.
func UserFromRequest(r *http.Request) string {
	user := context.Get(r, userKey)
	if user == nil {
		return ""
	}
	return user.(string)
}
