package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/pipeflow/internal/runtime/config"
	"github.com/drblury/pipeflow/internal/runtime/jsoncodec"
	transportpkg "github.com/drblury/pipeflow/transport"
)

func webUIMux(t *testing.T, p *Pipeline) *http.ServeMux {
	t.Helper()
	port := p.Conf.WebUIPort
	if port == 0 {
		port = configpkg.DefaultWebUIPort
	}
	p.httpServersMu.Lock()
	defer p.httpServersMu.Unlock()
	mux := p.httpServers[port]
	require.NotNil(t, mux, "web UI not registered on port %d", port)
	return mux
}

func getJSON(t *testing.T, mux http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, jsoncodec.ContentType, rec.Header().Get("Content-Type"))
	if out != nil {
		require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestWebUITypes(t *testing.T) {
	p := newTestPipeline(t, nil, withConfig(func(c *configpkg.Config) { c.WebUIEnabled = true }))
	require.NoError(t, RegisterHandler(p, HandlerRegistration[Order]{Handler: HandlerFuncs[Order]{}}))
	require.NoError(t, RegisterSubscriber(p, SubscriberRegistration[Order]{
		Name:       "audit",
		Subscriber: SubscriberFunc[Order](func(context.Context, Order) error { return nil }),
	}))
	_, err := p.Process(context.Background(), Order{})
	require.NoError(t, err)
	waitFanout(t, p)

	var body typesResponse
	getJSON(t, webUIMux(t, p), "/api/types", &body)

	require.Len(t, body.Types, 1)
	assert.Equal(t, "runtime.Order", body.Types[0].MessageType)
	assert.Equal(t, []string{"handler:runtime.Order"}, body.Types[0].Handlers)
	assert.Equal(t, []string{"audit"}, body.Types[0].Subscribers)
	assert.Equal(t, uint64(1), body.Types[0].MessagesProcessed)
	assert.Equal(t, uint64(1), body.Types[0].Notifications)
	assert.NotZero(t, body.Resource.Goroutines)
}

func TestWebUIChains(t *testing.T) {
	p := newTestPipeline(t, nil,
		withConfig(func(c *configpkg.Config) { c.WebUIEnabled = true; c.WebUIPort = 9123 }),
		withDeps(func(d *PipelineDependencies) {
			d.Middlewares = []MiddlewareRegistration{TimingMiddleware(nil)}
		}),
	)

	var body chainsResponse
	getJSON(t, webUIMux(t, p), "/api/chains", &body)

	assert.Equal(t, []string{"recoverer", "metrics", "tracer", "correlation_id", "timing"}, body.Process)
	assert.Equal(t, []string{"error_logging"}, body.Error)
	assert.Len(t, body.Subscription, 3)
}

func TestWebUITransport(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		p := newTestPipeline(t, nil, withConfig(func(c *configpkg.Config) { c.WebUIEnabled = true }))

		var body transportResponse
		getJSON(t, webUIMux(t, p), "/api/transport", &body)
		assert.False(t, body.Enabled)
		assert.Empty(t, body.Name)
	})

	t.Run("custom publisher", func(t *testing.T) {
		p := newTestPipeline(t, nil,
			withConfig(func(c *configpkg.Config) { c.WebUIEnabled = true }),
			withDeps(func(d *PipelineDependencies) { d.Publisher = &testPublisher{} }),
		)

		var body transportResponse
		getJSON(t, webUIMux(t, p), "/api/transport", &body)
		assert.True(t, body.Enabled)
		assert.Equal(t, "custom", body.Name)
		assert.Equal(t, transportpkg.Capabilities{Name: "custom"}, body.Capabilities)
	})
}

func TestWebUIMethodsAndCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{name: "get without cors", method: http.MethodGet, origin: "https://ui.example", wantStatus: http.StatusOK},
		{name: "wildcard", origins: []string{"*"}, method: http.MethodGet, origin: "https://ui.example", wantStatus: http.StatusOK, wantAllow: "*"},
		{name: "matching origin", origins: []string{"https://UI.example"}, method: http.MethodGet, origin: "https://ui.example", wantStatus: http.StatusOK, wantAllow: "https://ui.example"},
		{name: "foreign origin", origins: []string{"https://ui.example"}, method: http.MethodGet, origin: "https://evil.example", wantStatus: http.StatusOK},
		{name: "preflight", origins: []string{"*"}, method: http.MethodOptions, origin: "https://ui.example", wantStatus: http.StatusNoContent, wantAllow: "*"},
		{name: "post rejected", method: http.MethodPost, wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(t, nil, withConfig(func(c *configpkg.Config) {
				c.WebUIEnabled = true
				c.WebUICORSAllowedOrigins = tt.origins
			}))

			req := httptest.NewRequest(tt.method, "/api/types", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			webUIMux(t, p).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestWebUIDisabledRegistersNothing(t *testing.T) {
	p := newTestPipeline(t, nil)
	p.httpServersMu.Lock()
	defer p.httpServersMu.Unlock()
	assert.Empty(t, p.httpServers)
}
