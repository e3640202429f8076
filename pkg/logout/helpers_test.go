package logout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/ssohub/pkg/events"
	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/platinummonkey/ssohub/pkg/services"
	"github.com/platinummonkey/ssohub/pkg/tickets"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// relyingParty is a back-channel logout endpoint that records what it receives
type relyingParty struct {
	server *httptest.Server
	status atomic.Int32
	hits   atomic.Int32

	mu    sync.Mutex
	forms []url.Values
}

func newRelyingParty(t *testing.T, status int) *relyingParty {
	t.Helper()
	rp := &relyingParty{}
	rp.status.Store(int32(status))
	rp.server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rp.hits.Add(1)
		_ = r.ParseForm()
		rp.mu.Lock()
		rp.forms = append(rp.forms, r.PostForm)
		rp.mu.Unlock()
		rw.WriteHeader(int(rp.status.Load()))
	}))
	t.Cleanup(rp.server.Close)
	return rp
}

func (rp *relyingParty) URL() string { return rp.server.URL + "/logout" }

func (rp *relyingParty) lastForm() url.Values {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if len(rp.forms) == 0 {
		return nil
	}
	return rp.forms[len(rp.forms)-1]
}

type engine struct {
	orchestrator *Orchestrator
	dispatcher   *DefaultDispatcher
	registry     *tickets.MemoryRegistry
	directory    *services.MemoryDirectory
	metrics      *observability.Metrics
	published    *publishedEvents
}

type publishedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *publishedEvents) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *publishedEvents) all() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func newEngine(t *testing.T, cfg OrchestratorConfig, svcs ...*services.RegisteredService) *engine {
	t.Helper()
	dir, err := services.NewMemoryDirectory(svcs...)
	require.NoError(t, err)

	logger := observability.NopLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	resolver := NewChainingURLResolver(NewDefaultURLResolver(NewDefaultURLValidator(), logger))
	d, err := NewDispatcher(DispatcherConfig{
		Name:      "cas",
		Directory: dir,
		Resolver:  resolver,
		Builder:   NewSAMLMessageBuilder("https://sso.example.com", nil),
		Sender:    NewHTTPSender(HTTPSenderConfig{Timeout: 2 * time.Second}, logger),
		Logger:    logger,
		Metrics:   metrics,
	})
	require.NoError(t, err)

	registry := tickets.NewMemoryRegistry()
	published := &publishedEvents{}
	return &engine{
		orchestrator: NewOrchestrator(registry, NewChainingDispatcher(d), published, logger, metrics, cfg),
		dispatcher:   d,
		registry:     registry,
		directory:    dir,
		metrics:      metrics,
		published:    published,
	}
}

func backChannel(name, pattern, logoutURL string) *services.RegisteredService {
	return &services.RegisteredService{
		Name:       name,
		ServiceID:  pattern,
		LogoutURL:  logoutURL,
		LogoutType: services.LogoutTypeBackChannel,
		Access:     services.AccessStrategy{Enabled: true},
	}
}

// addSession stores a ticket-granting session with one service per id
func (e *engine) addSession(t *testing.T, id string, svcs ...*tickets.SessionService) *tickets.Session {
	t.Helper()
	now := time.Now()
	s := tickets.NewSession(id, tickets.KindTicketGranting, "alice", now, now.Add(time.Hour))
	for _, svc := range svcs {
		s.Grant(svc)
	}
	require.NoError(t, e.registry.Add(context.Background(), s))
	return s
}

func statuses(contexts []*RequestContext) []Status {
	out := make([]Status, len(contexts))
	for i, rc := range contexts {
		out[i] = rc.Status()
	}
	return out
}
