package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/trygate-dev/trygate/pkg/analytics/memory"
	"github.com/trygate-dev/trygate/pkg/api"
	"github.com/trygate-dev/trygate/pkg/auth"
	"github.com/trygate-dev/trygate/pkg/auth/anonymous"
	"github.com/trygate-dev/trygate/pkg/auth/session"
	"github.com/trygate-dev/trygate/pkg/secret"
)

// fakeProvider is a controllable provider for gateway tests. Callbacks
// carry a "code" query parameter; bearer requests carry a fixed token.
type fakeProvider struct {
	name     string
	sessions *session.Codec
	identity auth.Identity
	bearer   string
	loginURL string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) HasToken(r *http.Request) bool {
	return r.URL.Query().Get("code") != ""
}

func (p *fakeProvider) AuthenticateRequest(w http.ResponseWriter, r *http.Request) error {
	if r.URL.Query().Get("code") != "" {
		id := p.identity
		if err := p.sessions.IssueCookie(w, &id); err != nil {
			return err
		}
		http.Redirect(w, r, "/", http.StatusFound)
		return nil
	}

	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, p.loginURL, http.StatusFound)
		return nil
	}

	session.ClearCookie(w)
	w.Header().Set("LoginUrl", p.loginURL)
	w.WriteHeader(http.StatusForbidden)
	return nil
}

func (p *fakeProvider) TryAuthenticateBearer(_ context.Context, r *http.Request) (*auth.Identity, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return nil, nil
	}
	if authz == "Bearer "+p.bearer {
		id := p.identity
		return &id, nil
	}
	return nil, auth.ErrProvider
}

type testStack struct {
	handler  http.Handler
	adapter  *Adapter
	sessions *session.Codec
	events   *memory.Store
	provider *fakeProvider
}

func newTestStack(t *testing.T, limiter auth.RateLimiter) *testStack {
	t.Helper()

	key := make([]byte, secret.KeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}
	secrets, err := secret.NewCodec(key)
	if err != nil {
		t.Fatalf("creating codec: %v", err)
	}

	sessions := session.NewCodec(secrets, time.Hour)
	events := memory.New(100)
	tracker := anonymous.NewTracker(secrets, events)

	provider := &fakeProvider{
		name:     "fake",
		sessions: sessions,
		identity: auth.Identity{Email: "user@example.com", ProviderUserID: "puid-1", Issuer: "fake"},
		bearer:   "valid-token",
		loginURL: "https://login.example.com/authorize",
	}

	registry := auth.NewRegistry("fake")
	if err := registry.Register("fake", provider); err != nil {
		t.Fatalf("registering provider: %v", err)
	}

	gw := &auth.Gateway{
		Enabled:   true,
		Registry:  registry,
		Sessions:  sessions,
		Anonymous: tracker,
		Routes:    NewRouteTable(),
		Classify:  auth.DefaultClassifier,
		Limiter:   limiter,
	}
	gate := &auth.Gate{AdminUser: "admin@example.com"}

	adapter := NewAdapter(gw, gate, events, DefaultConfig())
	return &testStack{
		handler:  adapter.Handler(),
		adapter:  adapter,
		sessions: sessions,
		events:   events,
		provider: provider,
	}
}

// sessionCookie mints a valid session cookie for the identity.
func (s *testStack) sessionCookie(t *testing.T, id auth.Identity) *http.Cookie {
	t.Helper()
	value, err := s.sessions.Serialize(&id)
	if err != nil {
		t.Fatalf("serializing session: %v", err)
	}
	return &http.Cookie{Name: session.CookieName, Value: value}
}

func browserRequest(method, target string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.Header.Set("Accept", "text/html,application/xhtml+xml")
	r.Header.Set("User-Agent", "Mozilla/5.0")
	return r
}

func apiRequest(method, target string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.Header.Set("Accept", "application/json")
	return r
}

func TestOpenRouteWithoutCredentials(t *testing.T) {
	s := newTestStack(t, nil)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, apiRequest(http.MethodGet, "/api/templates"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var templates []api.Template
	if err := json.Unmarshal(rec.Body.Bytes(), &templates); err != nil {
		t.Fatalf("decoding templates: %v", err)
	}
	if len(templates) == 0 {
		t.Error("template catalog is empty")
	}
}

func TestBrowserGetsAnonymousIdentity(t *testing.T) {
	s := newTestStack(t, nil)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, browserRequest(http.MethodGet, "/api/templates"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var anonCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == anonymous.CookieName {
			anonCookie = c
		}
	}
	if anonCookie == nil {
		t.Fatal("no anonymous cookie set for browser request")
	}

	// The first sighting records exactly one created event.
	events, err := s.events.ListEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("listing events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("event count = %d, want 1", len(events))
	}

	// A repeat visit with the cookie neither rotates it nor records again.
	rec2 := httptest.NewRecorder()
	req2 := browserRequest(http.MethodGet, "/api/templates")
	req2.AddCookie(anonCookie)
	s.handler.ServeHTTP(rec2, req2)

	for _, c := range rec2.Result().Cookies() {
		if c.Name == anonymous.CookieName {
			t.Error("anonymous cookie reissued on repeat visit")
		}
	}
	events, _ = s.events.ListEvents(context.Background(), 10)
	if len(events) != 1 {
		t.Errorf("event count after repeat visit = %d, want 1", len(events))
	}
}

func TestAPIRequestWithoutIdentityOnOpenRoute(t *testing.T) {
	s := newTestStack(t, nil)

	// Non-browser, no credentials, open route: serve unauthenticated,
	// no anonymous cookie.
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, apiRequest(http.MethodGet, "/api/templates"))

	for _, c := range rec.Result().Cookies() {
		if c.Name == anonymous.CookieName {
			t.Error("anonymous cookie set for non-browser request")
		}
	}
}

func TestAuthedRouteRedirectsAPIClientsToLogin(t *testing.T) {
	s := newTestStack(t, nil)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, apiRequest(http.MethodGet, "/api/resource"))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if got := rec.Header().Get("LoginUrl"); got != s.provider.loginURL {
		t.Errorf("LoginUrl header = %q, want provider login URL", got)
	}

	// The session cookie must be cleared alongside the redirect hint.
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName && c.Value == "" {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie not cleared on login redirect")
	}
}

func TestAuthedRouteRedirectsBrowsersToProvider(t *testing.T) {
	s := newTestStack(t, nil)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, browserRequest(http.MethodGet, "/api/resource"))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != s.provider.loginURL {
		t.Errorf("Location = %q, want provider login URL", got)
	}
}

func TestLoginCallbackIssuesSession(t *testing.T) {
	s := newTestStack(t, nil)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, apiRequest(http.MethodGet, "/api/resource?code=abc&provider=fake"))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}

	var sess *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			sess = c
		}
	}
	if sess == nil {
		t.Fatal("no session cookie after callback")
	}

	// The minted cookie authenticates the follow-up request.
	id, err := s.sessions.Parse(sess.Value)
	if err != nil {
		t.Fatalf("parsing minted session: %v", err)
	}
	if id.Email != "user@example.com" || id.Issuer != "fake" {
		t.Errorf("minted identity = %+v, want the provider identity", id)
	}
}

func TestResourceLifecycleWithSession(t *testing.T) {
	s := newTestStack(t, nil)
	cookie := s.sessionCookie(t, auth.Identity{
		Email: "user@example.com", ProviderUserID: "puid-1", Issuer: "fake",
	})

	do := func(method, target, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body != "" {
			req = httptest.NewRequest(method, target, strings.NewReader(body))
		} else {
			req = httptest.NewRequest(method, target, nil)
		}
		req.Header.Set("Accept", "application/json")
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec
	}

	// No resource yet.
	if rec := do(http.MethodGet, "/api/resource", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("GET before create: status = %d, want 404", rec.Code)
	}

	// Create.
	rec := do(http.MethodPost, "/api/resource", `{"template":"Hello World"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created api.Resource
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding created resource: %v", err)
	}
	if !api.ValidateResourceID(created.ID) {
		t.Errorf("resource id %q is not valid", created.ID)
	}
	if created.Owner != "user@example.com" {
		t.Errorf("owner = %q, want session subject", created.Owner)
	}

	// A second create returns the existing resource.
	rec = do(http.MethodPost, "/api/resource", `{"template":"Hello World"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("second create: status = %d, want 200", rec.Code)
	}
	var again api.Resource
	json.Unmarshal(rec.Body.Bytes(), &again)
	if again.ID != created.ID {
		t.Errorf("second create returned %q, want existing %q", again.ID, created.ID)
	}

	// Get sees it.
	if rec := do(http.MethodGet, "/api/resource", ""); rec.Code != http.StatusOK {
		t.Fatalf("GET after create: status = %d, want 200", rec.Code)
	}

	// Publishing profile and mobile client resolve against it.
	if rec := do(http.MethodGet, "/api/resource/getpublishingprofile", ""); rec.Code != http.StatusOK {
		t.Errorf("publishing profile: status = %d, want 200", rec.Code)
	}
	if rec := do(http.MethodGet, "/api/resource/mobileclient/ios", ""); rec.Code != http.StatusOK {
		t.Errorf("mobile client: status = %d, want 200", rec.Code)
	}
	if rec := do(http.MethodGet, "/api/resource/mobileclient/solaris", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("mobile client bad platform: status = %d, want 400", rec.Code)
	}

	// Delete, then gone.
	if rec := do(http.MethodDelete, "/api/resource", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d, want 204", rec.Code)
	}
	if rec := do(http.MethodGet, "/api/resource", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET after delete: status = %d, want 404", rec.Code)
	}
}

func TestCreateResourceRejectsUnknownTemplate(t *testing.T) {
	s := newTestStack(t, nil)
	cookie := s.sessionCookie(t, auth.Identity{Email: "u@example.com", Issuer: "fake"})

	req := httptest.NewRequest(http.MethodPost, "/api/resource", strings.NewReader(`{"template":"Nope"}`))
	req.Header.Set("Accept", "application/json")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid_request") {
		t.Errorf("body = %s, want invalid_request envelope", rec.Body.String())
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newTestStack(t, nil)

	regular := s.sessionCookie(t, auth.Identity{Email: "user@example.com", Issuer: "fake"})
	admin := s.sessionCookie(t, auth.Identity{Email: "admin@example.com", Issuer: "fake"})

	adminPaths := []string{
		"/api/resource/all",
		"/api/resource/reset",
		"/api/resource/reload",
		"/api/events",
	}

	for _, path := range adminPaths {
		req := apiRequest(http.MethodGet, path)
		req.AddCookie(regular)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s as regular user: status = %d, want 403", path, rec.Code)
		}

		req = apiRequest(http.MethodGet, path)
		req.AddCookie(admin)
		rec = httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s as admin: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestBearerAuthenticatesAPISurface(t *testing.T) {
	s := newTestStack(t, nil)

	req := apiRequest(http.MethodGet, "/api/user")
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var info api.UserInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decoding user info: %v", err)
	}
	if info.Name != "user@example.com" || info.Issuer != "fake" {
		t.Errorf("user info = %+v, want bearer identity", info)
	}
}

func TestBearerRejectedDegradesToUnauthenticated(t *testing.T) {
	s := newTestStack(t, nil)

	// Invalid bearer on an open route: no identity, but the request
	// still serves.
	req := apiRequest(http.MethodGet, "/api/user")
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 from the handler, not a provider error", rec.Code)
	}
}

func TestBearerRateLimited(t *testing.T) {
	s := newTestStack(t, auth.NewInProcessLimiter(1))

	req := apiRequest(http.MethodGet, "/api/user")
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", rec.Code)
	}

	req = apiRequest(http.MethodGet, "/api/user")
	req.Header.Set("Authorization", "Bearer valid-token")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rec.Code)
	}
}

func TestSessionShortCircuitsProviderSelection(t *testing.T) {
	s := newTestStack(t, nil)
	cookie := s.sessionCookie(t, auth.Identity{Email: "user@example.com", Issuer: "fake"})

	// A valid session wins even when the request carries a callback code.
	req := apiRequest(http.MethodGet, "/api/user?code=should-be-ignored")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "" {
		t.Errorf("unexpected redirect to %q with a valid session", loc)
	}
}

func TestUnmatchedRoutePassesThrough(t *testing.T) {
	s := newTestStack(t, nil)

	// Static asset path, non-browser: no auth, mux 404.
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, apiRequest(http.MethodGet, "/static/site.css"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 from the mux", rec.Code)
	}
	if rec.Header().Get("LoginUrl") != "" {
		t.Error("unmatched route must not trigger a login redirect")
	}
}

func TestRoutingCookiePromotion(t *testing.T) {
	s := newTestStack(t, nil)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, apiRequest(http.MethodGet, "/api/templates?x-ms-routing-name=staging"))

	var routing *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == RoutingCookieName {
			routing = c
		}
	}
	if routing == nil {
		t.Fatal("routing cookie not promoted from query parameter")
	}
	if routing.Value != "staging" || routing.Path != "/" {
		t.Errorf("routing cookie = %+v, want staging at /", routing)
	}

	// An existing cookie is left alone.
	req := apiRequest(http.MethodGet, "/api/templates?x-ms-routing-name=other")
	req.AddCookie(&http.Cookie{Name: RoutingCookieName, Value: "staging"})
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == RoutingCookieName {
			t.Error("routing cookie reissued over an existing one")
		}
	}
}

func TestAdminEventsEndpointListsAnalytics(t *testing.T) {
	s := newTestStack(t, nil)

	// Seed one anonymous-created event through a browser visit.
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, browserRequest(http.MethodGet, "/api/templates"))

	admin := s.sessionCookie(t, auth.Identity{Email: "admin@example.com", Issuer: "fake"})
	req := apiRequest(http.MethodGet, "/api/events?limit=5")
	req.AddCookie(admin)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "anonymous_user_created") {
		t.Errorf("body = %s, want the seeded event", rec.Body.String())
	}
}

func TestExpiredSessionFallsBackToLogin(t *testing.T) {
	s := newTestStack(t, nil)

	// Mint a cookie stamped two hours ago against a 1h TTL.
	past := time.Now().Add(-2 * time.Hour)
	key := make([]byte, secret.KeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}
	secrets, _ := secret.NewCodec(key)
	expired := session.NewCodec(secrets, time.Hour).WithClock(func() time.Time { return past })
	value, err := expired.Serialize(&auth.Identity{Email: "user@example.com", Issuer: "fake"})
	if err != nil {
		t.Fatalf("serializing expired session: %v", err)
	}

	req := apiRequest(http.MethodGet, "/api/resource")
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: value})
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 login redirect for expired session", rec.Code)
	}
}
