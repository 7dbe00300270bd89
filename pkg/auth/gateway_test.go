package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeSessions scripts the session step.
type fakeSessions struct {
	id  *Identity
	err error
}

func (f *fakeSessions) Authenticate(*http.Request) (*Identity, error) {
	return f.id, f.err
}

// fakeTracker scripts the anonymous step and records invocations.
type fakeTracker struct {
	id      *Identity
	created bool
	calls   int
}

func (f *fakeTracker) Ensure(http.ResponseWriter, *http.Request) (*Identity, bool) {
	f.calls++
	return f.id, f.created
}

// fakeRoutes maps exact paths to metadata.
type fakeRoutes struct {
	table map[string]RouteMeta
}

func (f *fakeRoutes) Resolve(r *http.Request) (RouteMeta, bool) {
	meta, ok := f.table[r.URL.Path]
	return meta, ok
}

// scriptedProvider scripts every provider hook and records which ran.
type scriptedProvider struct {
	name         string
	hasToken     bool
	bearerID     *Identity
	bearerErr    error
	authCalls    int
	authBehavior func(w http.ResponseWriter, r *http.Request) error
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) HasToken(*http.Request) bool { return p.hasToken }

func (p *scriptedProvider) AuthenticateRequest(w http.ResponseWriter, r *http.Request) error {
	p.authCalls++
	if p.authBehavior != nil {
		return p.authBehavior(w, r)
	}
	return nil
}

func (p *scriptedProvider) TryAuthenticateBearer(context.Context, *http.Request) (*Identity, error) {
	return p.bearerID, p.bearerErr
}

type gatewayFixture struct {
	gw       *Gateway
	provider *scriptedProvider
	sessions *fakeSessions
	tracker  *fakeTracker
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	provider := &scriptedProvider{name: "test"}
	reg := NewRegistry("test")
	if err := reg.Register("test", provider); err != nil {
		t.Fatalf("registering provider: %v", err)
	}

	sessions := &fakeSessions{err: http.ErrNoCookie}
	tracker := &fakeTracker{}

	return &gatewayFixture{
		gw: &Gateway{
			Enabled:   true,
			Registry:  reg,
			Sessions:  sessions,
			Anonymous: tracker,
			Routes: &fakeRoutes{table: map[string]RouteMeta{
				"/api/open":   {},
				"/api/secure": {Authenticated: true},
			}},
			Classify: DefaultClassifier,
		},
		provider: provider,
		sessions: sessions,
		tracker:  tracker,
	}
}

// capture runs the gateway and returns the identity the handler saw
// (handlerRan false when the gateway terminated the request itself).
func capture(gw *Gateway, r *http.Request) (id *Identity, handlerRan bool, rec *httptest.ResponseRecorder) {
	rec = httptest.NewRecorder()
	h := gw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		handlerRan = true
		id = IdentityFromContext(req.Context())
	}))
	h.ServeHTTP(rec, r)
	return
}

func TestDisabledGatewayInstallsLocalIdentity(t *testing.T) {
	gw := &Gateway{
		Enabled:       false,
		LocalIdentity: Identity{Email: "dev", Issuer: IssuerLocal},
	}

	id, ran, _ := capture(gw, httptest.NewRequest(http.MethodGet, "/anything", nil))
	if !ran {
		t.Fatal("handler did not run")
	}
	if id == nil || id.Email != "dev" || id.Issuer != IssuerLocal {
		t.Errorf("identity = %+v, want the local identity", id)
	}
}

func TestSessionWinsFirst(t *testing.T) {
	f := newGatewayFixture(t)
	f.sessions.id = &Identity{Email: "user@example.com", Issuer: "test"}
	f.sessions.err = nil
	f.provider.hasToken = true // must be ignored

	id, ran, _ := capture(f.gw, httptest.NewRequest(http.MethodGet, "/api/secure", nil))
	if !ran {
		t.Fatal("handler did not run")
	}
	if id == nil || id.Email != "user@example.com" {
		t.Errorf("identity = %+v, want the session identity", id)
	}
	if f.provider.authCalls != 0 {
		t.Error("provider invoked although the session authenticated")
	}
}

func TestBearerOnPortalSurface(t *testing.T) {
	f := newGatewayFixture(t)
	f.provider.bearerID = &Identity{Email: "api@example.com", Issuer: "test"}

	// Non-browser request under /api/.
	r := httptest.NewRequest(http.MethodGet, "/api/open", nil)
	id, ran, _ := capture(f.gw, r)
	if !ran {
		t.Fatal("handler did not run")
	}
	if id == nil || id.Email != "api@example.com" {
		t.Errorf("identity = %+v, want the bearer identity", id)
	}
}

func TestBearerSkippedForBrowsers(t *testing.T) {
	f := newGatewayFixture(t)
	f.provider.bearerID = &Identity{Email: "api@example.com", Issuer: "test"}

	r := httptest.NewRequest(http.MethodGet, "/api/open", nil)
	r.Header.Set("Accept", "text/html")
	id, ran, _ := capture(f.gw, r)
	if !ran {
		t.Fatal("handler did not run")
	}
	// Browser path: anonymous step instead of bearer.
	if id != nil && id.Email == "api@example.com" {
		t.Error("bearer identity installed for a browser request")
	}
}

func TestBearerFailureDegrades(t *testing.T) {
	f := newGatewayFixture(t)
	f.provider.bearerErr = ErrProvider

	id, ran, rec := capture(f.gw, httptest.NewRequest(http.MethodGet, "/api/open", nil))
	if !ran {
		t.Fatalf("handler did not run, status %d", rec.Code)
	}
	if id != nil {
		t.Errorf("identity = %+v, want unauthenticated after bearer failure", id)
	}
}

func TestBearerRateLimitTerminates(t *testing.T) {
	f := newGatewayFixture(t)
	f.provider.bearerID = &Identity{Email: "api@example.com", Issuer: "test"}
	f.gw.Limiter = NewInProcessLimiter(1)

	r := httptest.NewRequest(http.MethodGet, "/api/open", nil)
	if _, ran, _ := capture(f.gw, r); !ran {
		t.Fatal("first request should pass")
	}

	r = httptest.NewRequest(http.MethodGet, "/api/open", nil)
	_, ran, rec := capture(f.gw, r)
	if ran {
		t.Error("handler ran although the caller was rate limited")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestCallbackDelegatesAndReturns(t *testing.T) {
	f := newGatewayFixture(t)
	f.provider.hasToken = true
	f.provider.authBehavior = func(w http.ResponseWriter, r *http.Request) error {
		http.Redirect(w, r, "/", http.StatusFound)
		return nil
	}

	_, ran, rec := capture(f.gw, httptest.NewRequest(http.MethodGet, "/api/open?code=x", nil))
	if ran {
		t.Error("handler ran during a login callback")
	}
	if f.provider.authCalls != 1 {
		t.Errorf("AuthenticateRequest calls = %d, want exactly 1", f.provider.authCalls)
	}
	if rec.Code != http.StatusFound {
		t.Errorf("status = %d, want the provider's redirect", rec.Code)
	}
}

func TestProtectedRouteTriggersLogin(t *testing.T) {
	f := newGatewayFixture(t)
	f.provider.authBehavior = func(w http.ResponseWriter, r *http.Request) error {
		w.Header().Set("LoginUrl", "https://login.example.com")
		w.WriteHeader(http.StatusForbidden)
		return nil
	}

	_, ran, rec := capture(f.gw, httptest.NewRequest(http.MethodGet, "/api/secure", nil))
	if ran {
		t.Error("handler ran without authentication on a protected route")
	}
	if rec.Code != http.StatusForbidden || rec.Header().Get("LoginUrl") == "" {
		t.Errorf("status = %d, LoginUrl = %q; want the login redirect", rec.Code, rec.Header().Get("LoginUrl"))
	}
}

func TestUnmatchedRouteNeverRequiresAuth(t *testing.T) {
	f := newGatewayFixture(t)

	_, ran, _ := capture(f.gw, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	if !ran {
		t.Fatal("handler did not run for an unmatched route")
	}
	if f.provider.authCalls != 0 {
		t.Error("login triggered for an unmatched route")
	}
}

func TestBrowserGetsAnonymous(t *testing.T) {
	f := newGatewayFixture(t)
	f.tracker.id = &Identity{Email: "anon-1", Issuer: IssuerAnonymous}

	r := httptest.NewRequest(http.MethodGet, "/api/open", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0")
	id, ran, _ := capture(f.gw, r)
	if !ran {
		t.Fatal("handler did not run")
	}
	if !id.Anonymous() {
		t.Errorf("identity = %+v, want anonymous", id)
	}
	if f.tracker.calls != 1 {
		t.Errorf("tracker calls = %d, want 1", f.tracker.calls)
	}
}

func TestNonBrowserSkipsAnonymous(t *testing.T) {
	f := newGatewayFixture(t)
	f.tracker.id = &Identity{Email: "anon-1", Issuer: IssuerAnonymous}

	id, ran, _ := capture(f.gw, httptest.NewRequest(http.MethodGet, "/other", nil))
	if !ran {
		t.Fatal("handler did not run")
	}
	if id != nil {
		t.Errorf("identity = %+v, want unauthenticated for non-browser", id)
	}
	if f.tracker.calls != 0 {
		t.Error("anonymous tracker invoked for a non-browser request")
	}
}

func TestPanicDoesNotEscape(t *testing.T) {
	f := newGatewayFixture(t)
	f.sessions.err = nil
	f.sessions.id = &Identity{Email: "user@example.com", Issuer: "test"}

	rec := httptest.NewRecorder()
	h := f.gw.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/open", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 after recovered panic", rec.Code)
	}
}

func TestMemoAttachedToRequest(t *testing.T) {
	f := newGatewayFixture(t)

	var memo *AnonymousMemo
	h := f.gw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		memo = MemoFromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/open", nil))

	if memo == nil {
		t.Error("no anonymous memo attached to the request context")
	}
}
