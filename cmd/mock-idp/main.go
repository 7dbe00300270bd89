// Command mock-idp runs a deterministic OAuth2 identity provider for
// local development of the login flow. It accepts every authorization
// request, issues a fixed code and token, and serves a profile for any
// bearer token it minted.
//
// Point a provider at it:
//
//	providers:
//	  google:
//	    client_id: local-dev
//	    client_secret: local-dev
//	    redirect_url: http://localhost:8080/
//
// with the authorize/token/userinfo URLs rewired to this server.
//
// Configuration:
//
//	MOCK_IDP_PORT  - Listen port (default: 9090)
//	MOCK_IDP_EMAIL - Email returned in the profile (default: dev@example.com)
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_IDP_PORT")
	if port == "" {
		port = "9090"
	}
	email := os.Getenv("MOCK_IDP_EMAIL")
	if email == "" {
		email = "dev@example.com"
	}

	idp := &identityProvider{
		email:  email,
		codes:  map[string]bool{},
		tokens: map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /authorize", idp.handleAuthorize)
	mux.HandleFunc("POST /token", idp.handleToken)
	mux.HandleFunc("GET /userinfo", idp.handleUserInfo)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock idp starting", "port", port, "email", email)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock idp failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock idp shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// identityProvider accepts every login and hands out single-use codes.
type identityProvider struct {
	email string

	mu     sync.Mutex
	codes  map[string]bool
	tokens map[string]bool
}

// handleAuthorize plays the provider's login page: no credentials are
// asked for, the browser is sent straight back with a code.
func (p *identityProvider) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" {
		http.Error(w, "redirect_uri is required", http.StatusBadRequest)
		return
	}

	code := randomToken("code")
	p.mu.Lock()
	p.codes[code] = true
	p.mu.Unlock()

	target, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	tq := target.Query()
	tq.Set("code", code)
	if state := q.Get("state"); state != "" {
		tq.Set("state", state)
	}
	target.RawQuery = tq.Encode()

	slog.Info("authorization granted", "redirect", target.Host)
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// handleToken exchanges a code minted by handleAuthorize for a token.
func (p *identityProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	code := r.PostFormValue("code")

	p.mu.Lock()
	valid := p.codes[code]
	delete(p.codes, code)
	var token string
	if valid {
		token = randomToken("token")
		p.tokens[token] = true
	}
	p.mu.Unlock()

	if !valid {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

// handleUserInfo returns the fixed profile for any token this server minted.
func (p *identityProvider) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	p.mu.Lock()
	valid := p.tokens[token]
	p.mu.Unlock()

	if !valid {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"id":    "mock-" + p.email,
		"email": p.email,
		"name":  "Local Developer",
	})
}

func randomToken(prefix string) string {
	b := make([]byte, 16)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
