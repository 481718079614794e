package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Natooz/MIDITok/internal/config"
	"github.com/Natooz/MIDITok/internal/event"
	"github.com/Natooz/MIDITok/internal/tokenizer"
	"github.com/Natooz/MIDITok/internal/vocab"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Codec is the tokenization engine surface the handler depends on.
type Codec interface {
	Encode(p *event.Performance) (tokenizer.Sequence, []tokenizer.Diagnostic, error)
	Decode(seq tokenizer.Sequence) (*event.Performance, []tokenizer.Diagnostic, error)
	Config() tokenizer.Config
	Vocabulary() *vocab.Vocabulary
}

// newCodec builds a codec for a request-supplied configuration.
// Swappable in tests.
var newCodec = func(cfg tokenizer.Config) (Codec, error) {
	return tokenizer.New(cfg)
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxBodyBytes   int64
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxBodyBytes:   4 << 20,
		workers:        2,
		requestTimeout: 60 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxBodyBytes sets the maximum allowed request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) { o.maxBodyBytes = n }
}

// WithWorkers sets the maximum number of concurrent codec calls.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	codec Codec
	opts  options
	sem   chan struct{} // semaphore for worker pool
	log   *slog.Logger
}

// NewHandler returns an http.Handler serving /health, /vocab,
// POST /tokenize, and POST /detokenize.
func NewHandler(codec Codec, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		codec: codec,
		opts:  opts,
		log:   opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/vocab", h.handleVocab)
	mux.HandleFunc("/tokenize", h.handleTokenize)
	mux.HandleFunc("/detokenize", h.handleDetokenize)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

type vocabEntry struct {
	ID    int    `json:"id"`
	Token string `json:"token"`
}

func (h *handler) handleVocab(w http.ResponseWriter, _ *http.Request) {
	voc := h.codec.Vocabulary()
	entries := make([]vocabEntry, voc.Len())
	for id := 0; id < voc.Len(); id++ {
		tok, _ := voc.TokenAt(id)
		entries[id] = vocabEntry{ID: id, Token: tok.String()}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"size":     voc.Len(),
		"strategy": h.codec.Config().StrategyName,
		"tokens":   entries,
	})
}

type tokenizeResponse struct {
	Sequence    tokenizer.Sequence     `json:"sequence"`
	Diagnostics []tokenizer.Diagnostic `json:"diagnostics"`
}

func (h *handler) handleTokenize(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r) {
		return
	}
	defer h.release()

	var perf event.Performance
	if !decodeBody(w, r, h.opts.maxBodyBytes, &perf) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	var (
		seq   tokenizer.Sequence
		diags []tokenizer.Diagnostic
		err   error
	)
	timedOut := runWithDeadline(ctx, func() {
		seq, diags, err = h.codec.Encode(&perf)
	})
	durationMS := time.Since(start).Milliseconds()

	if timedOut {
		h.log.WarnContext(r.Context(), "tokenize timed out",
			slog.Int("notes", perf.NoteCount()),
			slog.Int64("duration_ms", durationMS),
		)
		writeError(w, http.StatusGatewayTimeout, "tokenize timed out")
		return
	}

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, tokenizer.ErrMalformedPerformance) || errors.Is(err, tokenizer.ErrInvalidConfig) {
			status = http.StatusBadRequest
		}
		h.log.ErrorContext(ctx, "tokenize failed",
			slog.Int("notes", perf.NoteCount()),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		writeError(w, status, err.Error())
		return
	}

	h.log.InfoContext(ctx, "tokenize complete",
		slog.Int("notes", perf.NoteCount()),
		slog.Int("tokens", seq.Len()),
		slog.Int("diagnostics", len(diags)),
		slog.Int64("duration_ms", durationMS),
	)

	writeJSON(w, http.StatusOK, tokenizeResponse{Sequence: seq, Diagnostics: emptyIfNil(diags)})
}

type detokenizeResponse struct {
	Performance *event.Performance     `json:"performance"`
	Diagnostics []tokenizer.Diagnostic `json:"diagnostics"`
}

func (h *handler) handleDetokenize(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r) {
		return
	}
	defer h.release()

	var seq tokenizer.Sequence
	if !decodeBody(w, r, h.opts.maxBodyBytes, &seq) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	codec, err := h.codecFor(seq)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	var (
		perf  *event.Performance
		diags []tokenizer.Diagnostic
	)
	timedOut := runWithDeadline(ctx, func() {
		perf, diags, err = codec.Decode(seq)
	})
	durationMS := time.Since(start).Milliseconds()

	if timedOut {
		h.log.WarnContext(r.Context(), "detokenize timed out",
			slog.Int("tokens", seq.Len()),
			slog.Int64("duration_ms", durationMS),
		)
		writeError(w, http.StatusGatewayTimeout, "detokenize timed out")
		return
	}

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, tokenizer.ErrTransitionViolation) || errors.Is(err, tokenizer.ErrInvalidConfig) {
			status = http.StatusBadRequest
		}
		h.log.ErrorContext(ctx, "detokenize failed",
			slog.Int("tokens", seq.Len()),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		writeError(w, status, err.Error())
		return
	}

	h.log.InfoContext(ctx, "detokenize complete",
		slog.Int("tokens", seq.Len()),
		slog.Int("notes", perf.NoteCount()),
		slog.Int("diagnostics", len(diags)),
		slog.Int64("duration_ms", durationMS),
	)

	writeJSON(w, http.StatusOK, detokenizeResponse{Performance: perf, Diagnostics: emptyIfNil(diags)})
}

// codecFor picks the codec for a decode request. A sequence carrying
// its own configuration always decodes with a tokenizer built from it,
// so the vocabulary is exactly the one that produced the ids; a bare
// sequence falls back to the server's codec. Matching only the strategy
// name would not be enough: every vocabulary-shaping field (bin counts,
// ranges, special tokens) moves the id assignment.
func (h *handler) codecFor(seq tokenizer.Sequence) (Codec, error) {
	if seq.Config.StrategyName == "" {
		return h.codec, nil
	}
	codec, err := newCodec(seq.Config)
	if err != nil {
		return nil, fmt.Errorf("sequence config: %w", err)
	}
	return codec, nil
}

// admit enforces method and acquires a worker slot, honouring context
// cancellation while waiting.
func (h *handler) admit(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return false
		}
	}
	return true
}

func (h *handler) release() {
	if h.sem != nil {
		<-h.sem
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return false
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("body exceeds maximum size of %d bytes", limit))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// runWithDeadline runs fn on its own goroutine and reports whether the
// context expired first. The codec call itself cannot be interrupted;
// a timed-out request abandons its result.
func runWithDeadline(ctx context.Context, fn func()) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
		return false
	case <-ctx.Done():
		return true
	}
}

func emptyIfNil(diags []tokenizer.Diagnostic) []tokenizer.Diagnostic {
	if diags == nil {
		return []tokenizer.Diagnostic{}
	}
	return diags
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server — wires handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	codec           Codec
	shutdownTimeout time.Duration
}

func New(cfg config.Config, codec Codec) *Server {
	return &Server{
		cfg:             cfg,
		codec:           codec,
		shutdownTimeout: 30 * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

func (s *Server) Start(ctx context.Context) error {
	codec := s.codec
	if codec == nil {
		engineCfg, err := s.cfg.Tokenizer.ToEngine()
		if err != nil {
			return err
		}
		codec, err = newCodec(engineCfg)
		if err != nil {
			return err
		}
	}

	handlerOpts := []Option{
		WithWorkers(s.cfg.Server.Workers),
		WithMaxBodyBytes(s.cfg.Server.MaxBodyBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second),
	}

	h := NewHandler(codec, handlerOpts...)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
