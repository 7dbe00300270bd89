package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/trygate-dev/trygate/pkg/analytics"
	"github.com/trygate-dev/trygate/pkg/api"
	"github.com/trygate-dev/trygate/pkg/auth"
	"github.com/trygate-dev/trygate/pkg/observability"
	"github.com/trygate-dev/trygate/pkg/transport"
)

// RoutingCookieName is the slot-routing cookie promoted from a query
// parameter so that test-in-production traffic sticks to its slot.
const RoutingCookieName = "x-ms-routing-name"

// ResourceTTL is how long a trial resource lives after creation.
const ResourceTTL = time.Hour

// Adapter serves the trygate API over HTTP. Every request passes through
// the authentication gateway before reaching a handler; admin routes are
// additionally wrapped by the admin gate.
type Adapter struct {
	gateway *auth.Gateway
	gate    *auth.Gate
	events  analytics.Store
	config  Config
	mux     *http.ServeMux
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	templates []api.Template
	resources map[string]*api.Resource // keyed by owner name
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	Logger      *slog.Logger
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 1 << 20, // 1 MB
	}
}

// DefaultTemplates is the built-in template catalog served when no
// custom catalog is configured.
var DefaultTemplates = []api.Template{
	{Name: "Hello World", Language: "C#", AppService: "Web", SpriteName: "sprite-Large"},
	{Name: "ASP.NET Starter", Language: "C#", AppService: "Web", SpriteName: "sprite-ASPNETEmptySite"},
	{Name: "Node.js Express", Language: "JavaScript", AppService: "Web", SpriteName: "sprite-NodeJSEmptySite"},
	{Name: "Static HTML", Language: "HTML", AppService: "Web", SpriteName: "sprite-HTML5EmptySite"},
	{Name: "Todo List", Language: "JavaScript", AppService: "Mobile", SpriteName: "sprite-MobileTodoList"},
}

// NewAdapter creates an HTTP adapter wired to the gateway, admin gate,
// and analytics store. A nil events store disables the admin event list.
func NewAdapter(gateway *auth.Gateway, gate *auth.Gate, events analytics.Store, cfg Config) *Adapter {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Adapter{
		gateway:   gateway,
		gate:      gate,
		events:    events,
		config:    cfg,
		mux:       http.NewServeMux(),
		logger:    cfg.Logger,
		now:       time.Now,
		templates: DefaultTemplates,
		resources: make(map[string]*api.Resource),
	}

	a.mux.HandleFunc("GET /api/templates", a.handleTemplates)
	a.mux.HandleFunc("POST /api/telemetry/{event}", a.handleTelemetry)
	a.mux.HandleFunc("GET /api/user", a.handleUser)

	a.mux.HandleFunc("GET /api/resource", a.handleGetResource)
	a.mux.HandleFunc("POST /api/resource", a.handleCreateResource)
	a.mux.HandleFunc("DELETE /api/resource", a.handleDeleteResource)
	a.mux.HandleFunc("GET /api/resource/getpublishingprofile", a.handlePublishingProfile)
	a.mux.HandleFunc("GET /api/resource/mobileclient/{platform}", a.handleMobileClient)

	a.mux.Handle("GET /api/resource/all", gate.Middleware(http.HandlerFunc(a.handleAllResources)))
	a.mux.Handle("GET /api/resource/reset", gate.Middleware(http.HandlerFunc(a.handleReset)))
	a.mux.Handle("GET /api/resource/reload", gate.Middleware(http.HandlerFunc(a.handleReload)))
	a.mux.Handle("GET /api/events", gate.Middleware(http.HandlerFunc(a.handleListEvents)))

	return a
}

// Handler returns the http.Handler for this adapter: the full middleware
// chain around the mux. The authentication gateway runs innermost so
// every earlier middleware sees unauthenticated requests too.
func (a *Adapter) Handler() http.Handler {
	return transport.Chain(
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(a.logger),
		observability.MetricsMiddleware,
		routingCookieMiddleware,
		a.gateway.Middleware,
	)(a.mux)
}

// routingCookieMiddleware promotes the slot-routing query parameter to a
// cookie so later requests from the same browser stay on the slot.
func routingCookieMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie(RoutingCookieName); errors.Is(err, http.ErrNoCookie) {
			if v := r.URL.Query().Get(RoutingCookieName); v != "" {
				http.SetCookie(w, &http.Cookie{
					Name:  RoutingCookieName,
					Value: v,
					Path:  "/",
				})
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Adapter) handleTemplates(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	templates := make([]api.Template, len(a.templates))
	copy(templates, a.templates)
	a.mu.Unlock()

	transport.WriteJSON(w, http.StatusOK, templates)
}

func (a *Adapter) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	event := api.TelemetryEvent{Name: r.PathValue("event")}

	// Telemetry is fire-and-forget; a missing or bad body is not worth a 400.
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&event.Properties); err != nil {
		event.Properties = nil
	}

	a.logger.Info("telemetry event",
		"event", event.Name,
		"subject", auth.IdentityFromContext(r.Context()).Name(),
		"properties", len(event.Properties))

	w.WriteHeader(http.StatusNoContent)
}

func (a *Adapter) handleUser(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		transport.WriteAPIError(w, api.NewUnauthorizedError("no identity"))
		return
	}
	transport.WriteJSON(w, http.StatusOK, api.UserInfo{
		Name:   id.Name(),
		Issuer: id.Issuer,
		Admin:  a.gate.IsAdmin(id),
	})
}

func (a *Adapter) handleGetResource(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		transport.WriteAPIError(w, api.NewUnauthorizedError("login required"))
		return
	}

	a.mu.Lock()
	res := a.lookupLocked(id.Name())
	a.mu.Unlock()

	if res == nil {
		transport.WriteAPIError(w, api.NewNotFoundError("no resource for user"))
		return
	}
	transport.WriteJSON(w, http.StatusOK, res)
}

func (a *Adapter) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		transport.WriteAPIError(w, api.NewUnauthorizedError("login required"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	var req api.CreateResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return
	}
	if !a.knownTemplate(req.Template) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("template", fmt.Sprintf("unknown template %q", req.Template)))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// One live resource per user; a second create returns the existing one.
	if existing := a.lookupLocked(id.Name()); existing != nil {
		transport.WriteJSON(w, http.StatusOK, existing)
		return
	}

	now := a.now().UTC()
	res := &api.Resource{
		ID:        api.NewResourceID(),
		Owner:     id.Name(),
		Template:  req.Template,
		Status:    api.ResourceStatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(ResourceTTL),
	}
	res.URL = fmt.Sprintf("https://%s.trygate.dev", res.ID)
	a.resources[id.Name()] = res

	a.logger.Info("resource created",
		"resource", res.ID,
		"template", res.Template,
		"owner", res.Owner)

	transport.WriteJSON(w, http.StatusCreated, res)
}

func (a *Adapter) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		transport.WriteAPIError(w, api.NewUnauthorizedError("login required"))
		return
	}

	a.mu.Lock()
	_, had := a.resources[id.Name()]
	delete(a.resources, id.Name())
	a.mu.Unlock()

	if !had {
		transport.WriteAPIError(w, api.NewNotFoundError("no resource for user"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Adapter) handlePublishingProfile(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		transport.WriteAPIError(w, api.NewUnauthorizedError("login required"))
		return
	}

	a.mu.Lock()
	res := a.lookupLocked(id.Name())
	a.mu.Unlock()

	if res == nil {
		transport.WriteAPIError(w, api.NewNotFoundError("no resource for user"))
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]string{
		"resource":   res.ID,
		"profileUrl": res.URL + "/publish",
	})
}

func (a *Adapter) handleMobileClient(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		transport.WriteAPIError(w, api.NewUnauthorizedError("login required"))
		return
	}

	platform := r.PathValue("platform")
	switch platform {
	case "windows", "ios", "android":
	default:
		transport.WriteAPIError(w, api.NewInvalidRequestError("platform", fmt.Sprintf("unsupported platform %q", platform)))
		return
	}

	a.mu.Lock()
	res := a.lookupLocked(id.Name())
	a.mu.Unlock()

	if res == nil {
		transport.WriteAPIError(w, api.NewNotFoundError("no resource for user"))
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]string{
		"resource":    res.ID,
		"platform":    platform,
		"downloadUrl": fmt.Sprintf("%s/client/%s.zip", res.URL, platform),
	})
}

func (a *Adapter) handleAllResources(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	all := make([]*api.Resource, 0, len(a.resources))
	for _, res := range a.resources {
		all = append(all, res)
	}
	a.mu.Unlock()

	transport.WriteJSON(w, http.StatusOK, all)
}

func (a *Adapter) handleReset(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	dropped := len(a.resources)
	a.resources = make(map[string]*api.Resource)
	a.mu.Unlock()

	a.logger.Info("all resources reset",
		"dropped", dropped,
		"admin", auth.IdentityFromContext(r.Context()).Name())

	transport.WriteJSON(w, http.StatusOK, map[string]int{"dropped": dropped})
}

func (a *Adapter) handleReload(w http.ResponseWriter, r *http.Request) {
	// Expired resources are dropped; live ones survive the reload.
	now := a.now().UTC()

	a.mu.Lock()
	dropped := 0
	for owner, res := range a.resources {
		if !res.ExpiresAt.After(now) {
			delete(a.resources, owner)
			dropped++
		}
	}
	kept := len(a.resources)
	a.mu.Unlock()

	transport.WriteJSON(w, http.StatusOK, map[string]int{"kept": kept, "dropped": dropped})
}

func (a *Adapter) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		transport.WriteAPIError(w, api.NewNotFoundError("analytics store not configured"))
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil || limit <= 0 {
			transport.WriteAPIError(w, api.NewInvalidRequestError("limit", "limit must be a positive integer"))
			return
		}
	}

	events, err := a.events.ListEvents(r.Context(), limit)
	if err != nil {
		a.logger.Error("listing events failed", "error", err)
		transport.WriteAPIError(w, api.NewServerError("listing events failed"))
		return
	}
	transport.WriteJSON(w, http.StatusOK, events)
}

// lookupLocked returns the owner's resource, dropping it when expired.
// Caller holds a.mu.
func (a *Adapter) lookupLocked(owner string) *api.Resource {
	res, ok := a.resources[owner]
	if !ok {
		return nil
	}
	if !res.ExpiresAt.After(a.now().UTC()) {
		delete(a.resources, owner)
		return nil
	}
	return res
}

func (a *Adapter) knownTemplate(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.templates {
		if t.Name == name {
			return true
		}
	}
	return false
}
