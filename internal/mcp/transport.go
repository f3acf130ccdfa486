package mcp

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPHandlerOptions configures the HTTP transport behavior.
type HTTPHandlerOptions struct {
	// Stateless disables session management. Default: false (stateful).
	Stateless bool

	// Events is reported by /health when set, typically the NATS consumer.
	Events HealthChecker
}

// NewHTTPHandler creates a traced Streamable HTTP handler for the MCP server.
func NewHTTPHandler(server *Server, opts *HTTPHandlerOptions) http.Handler {
	if opts == nil {
		opts = &HTTPHandlerOptions{}
	}

	handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server.MCPServer()
	}, &mcp.StreamableHTTPOptions{
		Stateless: opts.Stateless,
	})
	return otelhttp.NewHandler(handler, "mcp")
}

// NewMux mounts the MCP endpoint at /mcp and the health check at /health.
func NewMux(server *Server, store HealthChecker, opts *HTTPHandlerOptions) *http.ServeMux {
	if opts == nil {
		opts = &HTTPHandlerOptions{}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", NewHealthHandler(store, opts.Events))
	mux.Handle("/mcp", NewHTTPHandler(server, opts))
	return mux
}
