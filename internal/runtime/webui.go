package runtime

import (
	"net/http"
	"strings"

	configpkg "github.com/drblury/pipeflow/internal/runtime/config"
	"github.com/drblury/pipeflow/internal/runtime/jsoncodec"
	transportpkg "github.com/drblury/pipeflow/transport"
)

type typesResponse struct {
	Types    []TypeStatsSnapshot `json:"types"`
	Resource ResourceUsage       `json:"resource"`
}

type chainsResponse struct {
	Process      []string `json:"process"`
	Error        []string `json:"error"`
	Subscription []string `json:"subscription"`
}

type transportResponse struct {
	Enabled      bool                      `json:"enabled"`
	Name         string                    `json:"name,omitempty"`
	Capabilities transportpkg.Capabilities `json:"capabilities"`
	Registered   []string                  `json:"registered"`
}

func (p *Pipeline) registerWebUI() {
	port := p.Conf.WebUIPort
	if port == 0 {
		port = configpkg.DefaultWebUIPort
	}

	p.RegisterHTTPHandler(port, "/api/types", http.HandlerFunc(p.handleGetTypes))
	p.RegisterHTTPHandler(port, "/api/chains", http.HandlerFunc(p.handleGetChains))
	p.RegisterHTTPHandler(port, "/api/transport", http.HandlerFunc(p.handleGetTransport))
}

func (p *Pipeline) handleGetTypes(w http.ResponseWriter, r *http.Request) {
	p.writeJSON(w, r, typesResponse{
		Types:    p.stats.snapshots(),
		Resource: p.resourceTracker.Snapshot(p.dispatcher.InFlight()),
	})
}

func (p *Pipeline) handleGetChains(w http.ResponseWriter, r *http.Request) {
	p.writeJSON(w, r, chainsResponse{
		Process:      p.chains.Names(ChainProcess),
		Error:        p.chains.Names(ChainError),
		Subscription: p.chains.Names(ChainSubscription),
	})
}

func (p *Pipeline) handleGetTransport(w http.ResponseWriter, r *http.Request) {
	p.writeJSON(w, r, transportResponse{
		Enabled:      p.publisher != nil,
		Name:         p.transportName,
		Capabilities: p.transportCaps,
		Registered:   transportpkg.DefaultRegistry.Names(),
	})
}

func (p *Pipeline) writeJSON(w http.ResponseWriter, r *http.Request, body any) {
	w.Header().Set("Content-Type", jsoncodec.ContentType)

	if p.Conf != nil && len(p.Conf.WebUICORSAllowedOrigins) > 0 {
		if allowed := p.getAllowedCORSOrigin(r.Header.Get("Origin")); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := jsoncodec.Encode(w, body); err != nil {
		p.Logger.Error("Failed to encode response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// getAllowedCORSOrigin returns the Access-Control-Allow-Origin value for
// requestOrigin, or "" when it is not allowed.
func (p *Pipeline) getAllowedCORSOrigin(requestOrigin string) string {
	if p.Conf == nil {
		return ""
	}
	for _, allowed := range p.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
