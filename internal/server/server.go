// Package server exposes the connector's HTTP surface. Handlers stay thin:
// parse, resolve the adapter, delegate, translate the result.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/crosstide/connector/errs"
	"github.com/crosstide/connector/internal/observability"
	"github.com/crosstide/connector/internal/router"
	"github.com/crosstide/connector/internal/schema"
)

const maxJSONBodyBytes = 1 << 20

// Server routes order and stream requests to the registered adapters.
type Server struct {
	registry *router.Registry
	mux      *http.ServeMux
}

// New builds the HTTP surface over the adapter registry.
func New(registry *router.Registry) *Server {
	s := &Server{
		registry: registry,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /api/orders/place/{exchange}", s.handlePlace)
	s.mux.HandleFunc("DELETE /api/orders/cancel/{exchange}/{orderId}", s.handleCancel)
	s.mux.HandleFunc("GET /api/orders/listen-trades/{exchange}", s.handleListenTrades)
	s.mux.HandleFunc("GET /api/orders/listen-orders/{exchange}", s.handleListenOrders)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type placeResponse struct {
	OrderID string `json:"orderId"`
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	adapter, err := s.registry.Resolve(r.PathValue("exchange"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req schema.OrderRequest
	body := io.LimitReader(r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, errs.New(adapter.Name(), errs.CodeInvalid, errs.WithMessage("malformed order request"), errs.WithCause(err)))
		return
	}

	orderID, err := adapter.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, placeResponse{OrderID: orderID})
}

type cancelResponse struct {
	Canceled bool `json:"canceled"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	adapter, err := s.registry.Resolve(r.PathValue("exchange"))
	if err != nil {
		writeError(w, err)
		return
	}

	canceled, err := adapter.CancelOrder(r.Context(), r.PathValue("orderId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{Canceled: canceled})
}

// handleListenTrades streams canonical trade ticks as newline-delimited JSON
// until the client disconnects or the stream terminates.
func (s *Server) handleListenTrades(w http.ResponseWriter, r *http.Request) {
	adapter, err := s.registry.Resolve(r.PathValue("exchange"))
	if err != nil {
		writeError(w, err)
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, errs.New(adapter.Name(), errs.CodeInvalid, errs.WithMessage("symbol query parameter required")))
		return
	}

	streamNDJSON(w, r, func(ctx context.Context, emit func(any), fail func(error)) (interface{ Close() }, error) {
		return adapter.StreamTrades(ctx, symbol,
			func(update schema.TradeUpdate) { emit(update) },
			func(err error) { fail(err) })
	})
}

// handleListenOrders streams order updates the same way.
func (s *Server) handleListenOrders(w http.ResponseWriter, r *http.Request) {
	adapter, err := s.registry.Resolve(r.PathValue("exchange"))
	if err != nil {
		writeError(w, err)
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, errs.New(adapter.Name(), errs.CodeInvalid, errs.WithMessage("symbol query parameter required")))
		return
	}

	streamNDJSON(w, r, func(ctx context.Context, emit func(any), fail func(error)) (interface{ Close() }, error) {
		return adapter.StreamOrders(ctx, symbol,
			func(update schema.OrderUpdate) { emit(update) },
			func(err error) { fail(err) })
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"exchanges": s.registry.Names()})
}

// streamNDJSON bridges a push subscription onto a chunked HTTP response.
// Updates and errors funnel through one channel so writes stay ordered and
// single-writer; the subscription is closed when the client goes away.
func streamNDJSON(w http.ResponseWriter, r *http.Request, open func(ctx context.Context, emit func(any), fail func(error)) (interface{ Close() }, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errs.New("", errs.CodeInvalid, errs.WithMessage("streaming unsupported by transport")))
		return
	}

	type event struct {
		payload any
		err     error
	}
	events := make(chan event, 64)
	emit := func(payload any) {
		select {
		case events <- event{payload: payload}:
		case <-r.Context().Done():
		}
	}
	fail := func(err error) {
		select {
		case events <- event{err: err}:
		case <-r.Context().Done():
		}
	}

	sub, err := open(r.Context(), emit, fail)
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	encoder := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if ev.err != nil {
				_ = encoder.Encode(errorBody(ev.err))
				flusher.Flush()
				if isTerminal(ev.err) {
					return
				}
				continue
			}
			if err := encoder.Encode(ev.payload); err != nil {
				observability.Log().Debug("stream write failed",
					observability.F("error", err))
				return
			}
			flusher.Flush()
		}
	}
}

// isTerminal reports whether a stream error ends the response. Decode
// failures are per-frame noise; everything else means the subscription died.
func isTerminal(err error) bool {
	return errs.CodeOf(err) != errs.CodeDecode
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		observability.Log().Debug("response write failed",
			observability.F("error", err))
	}
}

func errorBody(err error) schema.ErrorResponse {
	return schema.ErrorResponse{
		Message: err.Error(),
		Code:    statusFor(err),
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody(err))
}

// statusFor maps taxonomy codes onto HTTP statuses. A venue rejection keeps
// the venue's status when one was recorded.
func statusFor(err error) int {
	var e *errs.E
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case errs.CodeInvalid:
		return http.StatusBadRequest
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeNotImplemented:
		return http.StatusNotImplemented
	case errs.CodeAuth:
		return http.StatusBadGateway
	case errs.CodeRejected:
		if e.HTTP > 0 {
			return e.HTTP
		}
		return http.StatusBadGateway
	case errs.CodeTransport, errs.CodeDecode:
		return http.StatusBadGateway
	case errs.CodeSigning:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
