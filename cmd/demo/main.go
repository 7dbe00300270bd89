// Command demo walks through the trygate building blocks in-process:
// the cookie codec, session lifecycle, anonymous identities, provider
// selection, and the route table.
package main

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/trygate-dev/trygate/pkg/analytics/memory"
	"github.com/trygate-dev/trygate/pkg/auth"
	"github.com/trygate-dev/trygate/pkg/auth/anonymous"
	"github.com/trygate-dev/trygate/pkg/auth/session"
	"github.com/trygate-dev/trygate/pkg/secret"
	transporthttp "github.com/trygate-dev/trygate/pkg/transport/http"
)

func main() {
	fmt.Println("=== trygate core demo ===")
	fmt.Println()

	// 1. A fresh encryption key and the sealed-cookie codec.
	key := make([]byte, secret.KeySize)
	rand.Read(key)
	secrets, err := secret.NewCodec(key)
	if err != nil {
		fmt.Printf("creating codec FAILED: %v\n", err)
		return
	}
	fmt.Println("[1] Generated a 32-byte key and the cookie codec")

	// 2. Serialize and parse a session.
	sessions := session.NewCodec(secrets, time.Hour)
	id := &auth.Identity{
		Email:          "user@example.com",
		ProviderUserID: "puid-12345",
		Issuer:         "aad",
	}
	value, err := sessions.Serialize(id)
	if err != nil {
		fmt.Printf("Serialize FAILED: %v\n", err)
		return
	}
	fmt.Printf("\n[2] Session cookie value (%d chars):\n    %.60s...\n", len(value), value)

	parsed, err := sessions.Parse(value)
	if err != nil {
		fmt.Printf("Parse FAILED: %v\n", err)
		return
	}
	fmt.Printf("\n[3] Round-trip check:")
	fmt.Printf("\n    Email:  %s", parsed.Email)
	fmt.Printf("\n    PUID:   %s", parsed.ProviderUserID)
	fmt.Printf("\n    Issuer: %s\n", parsed.Issuer)

	// 3. Expiry: a codec whose clock sits past the TTL rejects the value.
	future := session.NewCodec(secrets, time.Hour).
		WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	if _, err := future.Parse(value); err != nil {
		fmt.Printf("\n[4] Two hours later: %v\n", err)
	}

	// 4. Anonymous identities for cookieless browsers.
	events := memory.New(100)
	tracker := anonymous.NewTracker(secrets, events)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/?cid=demo-campaign", nil)
	r = r.WithContext(auth.WithAnonymousMemo(r.Context()))
	anon, created := tracker.Ensure(rec, r)
	fmt.Printf("\n[5] Anonymous identity: id=%s created=%v anonymous=%v\n",
		anon.Email, created, anon.Anonymous())

	evs, _ := events.ListEvents(r.Context(), 10)
	for _, ev := range evs {
		fmt.Printf("    event: type=%s subject=%s campaign=%s\n", ev.Type, ev.Subject, ev.CampaignID)
	}

	// 5. Provider selection from query and state.
	fmt.Println("\n[6] Provider selection:")
	reg := auth.NewRegistry("aad")
	requests := []string{
		"/login",
		"/login?provider=google",
		"/login?state=redir%3D%2Fhome%26provider%3Dfacebook",
	}
	for _, target := range requests {
		r := httptest.NewRequest(http.MethodGet, target, nil)
		fmt.Printf("    %-55s -> %s\n", target, reg.SelectProviderName(r))
	}

	// 6. Route table decisions.
	fmt.Println("\n[7] Route table:")
	routes := transporthttp.NewRouteTable()
	checks := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/templates"},
		{http.MethodPost, "/api/resource"},
		{http.MethodGet, "/api/resource/all"},
		{http.MethodGet, "/index.html"},
	}
	for _, c := range checks {
		r := httptest.NewRequest(c.method, c.path, nil)
		meta, matched := routes.Resolve(r)
		switch {
		case !matched:
			fmt.Printf("    %-6s %-30s static asset, no auth\n", c.method, c.path)
		case meta.AdminOnly:
			fmt.Printf("    %-6s %-30s admin only\n", c.method, c.path)
		case meta.Authenticated:
			fmt.Printf("    %-6s %-30s authenticated\n", c.method, c.path)
		default:
			fmt.Printf("    %-6s %-30s open\n", c.method, c.path)
		}
	}

	fmt.Println("\n=== demo complete ===")
}
