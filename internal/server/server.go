package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-waf/internal/alias"
	"github.com/tributary-ai/llm-router-waf/internal/costtable"
	"github.com/tributary-ai/llm-router-waf/internal/failover"
	"github.com/tributary-ai/llm-router-waf/internal/gatewayerr"
	"github.com/tributary-ai/llm-router-waf/internal/middleware"
	"github.com/tributary-ai/llm-router-waf/internal/overflow"
	"github.com/tributary-ai/llm-router-waf/internal/routing"
	"github.com/tributary-ai/llm-router-waf/internal/security"
	"github.com/tributary-ai/llm-router-waf/internal/stream"
	"github.com/tributary-ai/llm-router-waf/internal/telemetry"
	"github.com/tributary-ai/llm-router-waf/internal/types"
)

// chatCompletionsService is the failover group name chat/legacy-completion
// requests route through.
const chatCompletionsService = "chat-completions"

// Server represents the HTTP server
type Server struct {
	router               *routing.Router
	failover             *failover.Manager
	aliases              *alias.Store
	telemetry            *telemetry.Bus
	httpServer           *http.Server
	logger               *logrus.Logger
	config               *ServerConfig
	securityMiddleware   *middleware.SecurityMiddleware
	validationMiddleware *middleware.ValidationMiddleware
	streamRelay          *stream.Relay
	overflow             *overflow.Queue
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string                                `yaml:"port"`
	ReadTimeout    time.Duration                         `yaml:"read_timeout"`
	WriteTimeout   time.Duration                         `yaml:"write_timeout"`
	MaxHeaderBytes int                                   `yaml:"max_header_bytes"`
	Security       *middleware.SecurityMiddlewareConfig  `yaml:"security"`
	Validation     *middleware.ValidationConfig          `yaml:"validation"`
}

// NewServer creates a new server instance
func NewServer(router *routing.Router, fo *failover.Manager, aliases *alias.Store, bus *telemetry.Bus, keys *security.ApiKeyStore, costs *costtable.Table, overflowQueue *overflow.Queue, config *ServerConfig, logger *logrus.Logger) (*Server, error) {
	server := &Server{
		router:    router,
		failover:  fo,
		aliases:   aliases,
		telemetry: bus,
		overflow:  overflowQueue,
		logger:    logger,
		config:    config,
	}

	if config.Security != nil {
		securityMiddleware, err := middleware.NewSecurityMiddleware(config.Security, keys, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize security middleware: %w", err)
		}
		server.securityMiddleware = securityMiddleware
	}

	if config.Validation != nil {
		validationMiddleware, err := middleware.NewValidationMiddleware(config.Validation, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize validation middleware: %w", err)
		}
		server.validationMiddleware = validationMiddleware
	}

	var rateLimiter *security.GatewayRateLimiter
	if server.securityMiddleware != nil {
		rateLimiter = server.securityMiddleware.RateLimiter()
	}
	server.streamRelay = stream.NewRelay(bus, rateLimiter, costs, logger)

	return server, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	r := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           ":" + s.config.Port,
		Handler:        r,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.WithField("port", s.config.Port).Info("Starting LLM Router server")
	return s.httpServer.ListenAndServe()
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping LLM Router server")

	if s.securityMiddleware != nil {
		s.securityMiddleware.Stop()
	}
	if s.aliases != nil {
		s.aliases.Stop()
	}

	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	if s.securityMiddleware != nil {
		r.Use(s.securityMiddleware.Handler())
	}
	if s.validationMiddleware != nil {
		r.Use(s.validationMiddleware.Middleware)
	}

	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.contentTypeMiddleware)

	api := r.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/chat/completions", s.handleChatCompletion).Methods("POST")
	api.HandleFunc("/completions", s.handleCompletion).Methods("POST")
	api.HandleFunc("/embeddings", s.handleEmbeddings).Methods("POST")
	api.HandleFunc("/messages", s.handleMessages).Methods("POST")

	api.HandleFunc("/models", s.handleListModels).Methods("GET")
	api.HandleFunc("/models/{id}", s.handleGetModel).Methods("GET")

	api.HandleFunc("/providers", s.handleListProviders).Methods("GET")
	api.HandleFunc("/providers/{name}", s.handleGetProvider).Methods("GET")
	api.HandleFunc("/health", s.handleHealthCheck).Methods("GET")
	api.HandleFunc("/health/{name}", s.handleProviderHealth).Methods("GET")
	api.HandleFunc("/capabilities", s.handleCapabilities).Methods("GET")
	api.HandleFunc("/routing/decision", s.handleRoutingDecision).Methods("POST")

	r.HandleFunc("/health", s.handleHealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.setupSwaggerRoutes(r)

	return r
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(wrapped, r)
		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"user_agent":  r.UserAgent(),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" || r.Method == "PUT" {
			contentType := r.Header.Get("Content-Type")
			if contentType != "application/json" && contentType != "" {
				s.writeGatewayError(w, gatewayerr.New(gatewayerr.KindValidation, "Content-Type must be application/json"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// resolveAlias rewrites req.Model/req.Provider when req.Model names a
// known alias, per spec §4.1 — alias resolution happens before routing.
func (s *Server) resolveAlias(req *types.ChatRequest) {
	if s.aliases == nil || req.Model == "" {
		return
	}
	spec, err := s.aliases.Resolve(req.Model)
	if err != nil {
		return
	}
	if provider, model, ok := alias.ParseSpec(spec); ok {
		req.Provider = provider
		req.Model = model
	}
}

// handleChatCompletion handles OpenAI-compatible chat completion requests
func (s *Server) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeGatewayError(w, gatewayerr.New(gatewayerr.KindValidation, fmt.Sprintf("invalid JSON: %v", err)))
		return
	}

	if req.ID == "" {
		req.ID = fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
	}
	req.Timestamp = time.Now()

	s.resolveAlias(&req)

	decision, _, err := s.router.Route(&req)
	if err != nil {
		s.writeGatewayError(w, gatewayerr.New(gatewayerr.KindUpstream, fmt.Sprintf("routing failed: %v", err)))
		return
	}

	if decision.MockMode {
		s.writeMockCompletion(w, &req, decision)
		return
	}

	metadata := decisionToMetadata(decision, req.ID, time.Since(start))

	if req.Stream {
		s.handleStreamingCompletion(w, r, &req, decision, metadata)
	} else {
		s.handleNonStreamingCompletion(w, r, &req, decision, metadata)
	}
}

// handleCompletion handles legacy OpenAI completion requests by wrapping
// the prompt as a single user message and delegating to chat completion.
func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var legacy struct {
		Model  string   `json:"model"`
		Prompt string   `json:"prompt"`
		Stream bool     `json:"stream"`
		Stop   []string `json:"stop,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&legacy); err != nil {
		s.writeGatewayError(w, gatewayerr.New(gatewayerr.KindValidation, fmt.Sprintf("invalid JSON: %v", err)))
		return
	}

	req := types.ChatRequest{
		ID:        fmt.Sprintf("cmpl-%d", time.Now().UnixNano()),
		Model:     legacy.Model,
		Messages:  []types.Message{{Role: "user", Content: legacy.Prompt}},
		Stream:    legacy.Stream,
		Stop:      legacy.Stop,
		Timestamp: time.Now(),
	}

	s.resolveAlias(&req)
	start := time.Now()
	decision, _, err := s.router.Route(&req)
	if err != nil {
		s.writeGatewayError(w, gatewayerr.New(gatewayerr.KindUpstream, fmt.Sprintf("routing failed: %v", err)))
		return
	}
	if decision.MockMode {
		s.writeMockCompletion(w, &req, decision)
		return
	}
	metadata := decisionToMetadata(decision, req.ID, time.Since(start))
	if req.Stream {
		s.handleStreamingCompletion(w, r, &req, decision, metadata)
	} else {
		s.handleNonStreamingCompletion(w, r, &req, decision, metadata)
	}
}

// handleMessages handles Anthropic-compatible message requests; the
// Anthropic provider's own request shaping is a transport concern treated
// as an external collaborator, so this reuses the chat completion path.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	s.handleChatCompletion(w, r)
}

// handleEmbeddings handles OpenAI-compatible embedding requests. It always
// answers with deterministic mock vectors (1536 dimensions, never random
// data) and prompt_tokens of ceil(chars/4); no provider is called, even
// when one is registered.
func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string      `json:"model"`
		Input interface{} `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeGatewayError(w, gatewayerr.New(gatewayerr.KindValidation, fmt.Sprintf("invalid JSON: %v", err)))
		return
	}

	inputs := embeddingInputs(req.Input)
	const dimensions = 1536

	data := make([]map[string]interface{}, len(inputs))
	totalChars := 0
	for i, text := range inputs {
		totalChars += len(text)
		data[i] = map[string]interface{}{
			"object":    "embedding",
			"index":     i,
			"embedding": deterministicVector(text, dimensions),
		}
	}

	promptTokens := int(math.Ceil(float64(totalChars) / 4))

	resp := map[string]interface{}{
		"object": "list",
		"data":   data,
		"model":  req.Model,
		"usage": map[string]interface{}{
			"prompt_tokens": promptTokens,
			"total_tokens":  promptTokens,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func embeddingInputs(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// deterministicVector derives a reproducible unit-scale embedding from
// the input text's bytes — deliberately NOT random, so the same input
// always yields the same vector.
func deterministicVector(text string, dims int) []float64 {
	out := make([]float64, dims)
	if len(text) == 0 {
		return out
	}
	for i := 0; i < dims; i++ {
		b := text[i%len(text)]
		out[i] = (float64(b)/255.0)*2 - 1
	}
	return out
}

func decisionToMetadata(d *routing.Decision, requestID string, elapsed time.Duration) *types.RouterMetadata {
	return &types.RouterMetadata{
		Provider:       d.Provider,
		Model:          d.Model,
		RoutingReason:  d.Reasoning,
		ProcessingTime: elapsed,
		RequestID:      requestID,
	}
}

func (s *Server) writeMockCompletion(w http.ResponseWriter, req *types.ChatRequest, d *routing.Decision) {
	resp := &types.ChatResponse{
		ID:      req.ID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []types.Choice{{
			Index:        0,
			Message:      types.Message{Role: "assistant", Content: ""},
			FinishReason: "stop",
		}},
		RouterMetadata: decisionToMetadata(d, req.ID, 0),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleNonStreamingCompletion drives the chat completion through the
// failover manager, which wraps each candidate attempt in the circuit
// breaker and retry policy (spec §4.6).
func (s *Server) handleNonStreamingCompletion(w http.ResponseWriter, r *http.Request, req *types.ChatRequest, decision *routing.Decision, metadata *types.RouterMetadata) {
	var resp *types.ChatResponse

	err := s.failover.WithFailover(r.Context(), chatCompletionsService, func(ctx context.Context, providerName string) error {
		provider, ok := s.router.GetProvider(providerName)
		if !ok {
			provider, ok = s.router.GetProvider(decision.Provider)
			if !ok {
				return gatewayerr.New(gatewayerr.KindNotFound, "provider not registered")
			}
		}
		out, callErr := provider.ChatCompletion(ctx, req)
		if callErr != nil {
			return gatewayerr.Normalize(callErr, providerName, 0, "")
		}
		resp = out
		metadata.Provider = providerName
		return nil
	})

	if err != nil {
		gwErr := gatewayerr.Normalize(err, decision.Provider, 0, "")
		s.telemetry.RecordError(decision.Provider, string(gwErr.Kind))
		s.enqueueOverflow(r.Context(), req, gwErr)
		s.writeGatewayError(w, gwErr)
		return
	}

	resp.RouterMetadata = metadata
	s.telemetry.RecordRequest(metadata.Provider, "chat.completions", "200", metadata.ProcessingTime)
	if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
		s.telemetry.RecordUsage(metadata.Provider, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, 0, req.Model)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// handleStreamingCompletion delegates the full streaming lifecycle — SSE
// framing, the concurrent rate-limit slot, usage accounting, and
// transformation of every provider event into a unified chunk — to the
// stream Relay (spec §4.7). Opening the provider stream still goes through
// the failover manager so a connection failure before the first byte can
// still fail over to the next candidate provider; once bytes start
// flowing to the client the relay commits to that one stream.
func (s *Server) handleStreamingCompletion(w http.ResponseWriter, r *http.Request, req *types.ChatRequest, decision *routing.Decision, metadata *types.RouterMetadata) {
	open := func(ctx context.Context) (<-chan *types.ChatChunk, string, error) {
		var chunks <-chan *types.ChatChunk
		var resolvedProvider string

		err := s.failover.WithFailover(ctx, chatCompletionsService, func(ctx context.Context, providerName string) error {
			provider, ok := s.router.GetProvider(providerName)
			if !ok {
				provider, ok = s.router.GetProvider(decision.Provider)
				if !ok {
					return gatewayerr.New(gatewayerr.KindNotFound, "provider not registered")
				}
			}
			out, callErr := provider.StreamCompletion(ctx, req)
			if callErr != nil {
				return gatewayerr.Normalize(callErr, providerName, 0, "")
			}
			chunks = out
			resolvedProvider = providerName
			return nil
		})
		if err != nil {
			gwErr := gatewayerr.Normalize(err, decision.Provider, 0, "")
			s.enqueueOverflow(ctx, req, gwErr)
			return nil, decision.Provider, err
		}
		return chunks, resolvedProvider, nil
	}

	s.streamRelay.Serve(w, r.Context(), req, metadata, open)
}

// enqueueOverflow durably persists a request whose handling failed with a
// circuit_open or rate_limited gateway error, so a drainer can replay it
// later instead of the caller losing it outright (spec §4.10). Requests
// refused by the gateway's own per-key limiter are answered 429 in
// middleware and never reach this. Best-effort: enqueue failures are logged, never surfaced
// to the caller on top of the original rejection.
func (s *Server) enqueueOverflow(ctx context.Context, req *types.ChatRequest, gwErr *gatewayerr.Error) {
	if s.overflow == nil {
		return
	}
	if gwErr.Kind != gatewayerr.KindCircuitOpen && gwErr.Kind != gatewayerr.KindRateLimited {
		return
	}
	if _, _, err := s.overflow.Enqueue(ctx, req); err != nil {
		s.logger.WithError(err).Warn("failed to enqueue rejected request to overflow queue")
	}
}

// handleListModels lists the models every registered provider supports.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	var data []map[string]interface{}
	for _, name := range s.router.ListProviders() {
		provider, _ := s.router.GetProvider(name)
		for _, m := range provider.GetCapabilities().SupportedModels {
			data = append(data, map[string]interface{}{
				"id":       m.Name,
				"object":   "model",
				"owned_by": name,
			})
		}
	}
	resp := map[string]interface{}{"object": "list", "data": data}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleGetModel looks up a single model by id across all providers.
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for _, name := range s.router.ListProviders() {
		provider, _ := s.router.GetProvider(name)
		for _, m := range provider.GetCapabilities().SupportedModels {
			if m.Name == id {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]interface{}{
					"id": m.Name, "object": "model", "owned_by": name,
				})
				return
			}
		}
	}
	s.writeGatewayError(w, gatewayerr.New(gatewayerr.KindNotFound, fmt.Sprintf("model %s not found", id)))
}

// handleListProviders lists all registered providers
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	names := s.router.ListProviders()
	response := map[string]interface{}{"providers": names, "count": len(names)}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleGetProvider gets information about a specific provider
func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	provider, exists := s.router.GetProvider(name)
	if !exists {
		s.writeGatewayError(w, gatewayerr.New(gatewayerr.KindNotFound, fmt.Sprintf("provider %s not found", name)))
		return
	}
	response := map[string]interface{}{
		"name":         name,
		"provider":     provider.GetProviderName(),
		"capabilities": provider.GetCapabilities(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleHealthCheck returns overall health status from a direct
// HealthCheck probe of each registered provider: 200 "healthy" when every
// probe succeeds, 503 "degraded" when any fails.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	names := s.router.ListProviders()
	statuses := make(map[string]string, len(names))
	overallHealthy := true

	for _, name := range names {
		provider, _ := s.router.GetProvider(name)
		if err := provider.HealthCheck(r.Context()); err != nil {
			statuses[name] = "unhealthy"
			overallHealthy = false
			continue
		}
		statuses[name] = "healthy"
	}

	response := map[string]interface{}{
		"status":    healthLabel(overallHealthy),
		"providers": statuses,
		"timestamp": time.Now().Unix(),
	}

	statusCode := http.StatusOK
	if !overallHealthy {
		statusCode = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

func healthLabel(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "degraded"
}

// handleProviderHealth returns health status for a specific provider
func (s *Server) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	provider, exists := s.router.GetProvider(name)
	if !exists {
		s.writeGatewayError(w, gatewayerr.New(gatewayerr.KindNotFound, fmt.Sprintf("provider %s not found", name)))
		return
	}

	status := "healthy"
	if err := provider.HealthCheck(r.Context()); err != nil {
		status = "unhealthy"
	}

	response := map[string]interface{}{
		"provider":  name,
		"status":    status,
		"timestamp": time.Now().Unix(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleCapabilities returns capabilities of all providers
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	capabilities := make(map[string]types.ProviderCapabilities)
	for _, name := range s.router.ListProviders() {
		provider, _ := s.router.GetProvider(name)
		capabilities[name] = provider.GetCapabilities()
	}
	response := map[string]interface{}{"capabilities": capabilities, "timestamp": time.Now().Unix()}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleRoutingDecision returns the routing decision without executing it
func (s *Server) handleRoutingDecision(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeGatewayError(w, gatewayerr.New(gatewayerr.KindValidation, fmt.Sprintf("invalid JSON: %v", err)))
		return
	}
	if req.ID == "" {
		req.ID = fmt.Sprintf("routing-%d", time.Now().UnixNano())
	}
	req.Timestamp = time.Now()
	s.resolveAlias(&req)

	decision, _, err := s.router.Route(&req)
	if err != nil {
		s.writeGatewayError(w, gatewayerr.New(gatewayerr.KindUpstream, fmt.Sprintf("routing failed: %v", err)))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(decision)
}

// writeGatewayError renders any error through the Error Normalizer so
// every handler returns the same envelope shape regardless of origin.
func (s *Server) writeGatewayError(w http.ResponseWriter, err *gatewayerr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	json.NewEncoder(w).Encode(err.ToEnvelope())
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher interface for streaming support
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
