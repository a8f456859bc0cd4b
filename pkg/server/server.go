package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"walletd/pkg/ledger"
	"walletd/pkg/metrics"
	"walletd/pkg/models"
	"walletd/pkg/provider"
	"walletd/pkg/session"
	"walletd/pkg/submit"

	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	manager *session.Manager
	metrics *metrics.Metrics
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	mux     *http.ServeMux
	logger  *slog.Logger
}

type sendRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Note   string `json:"note,omitempty"`
}

type sessionResponse struct {
	State    string         `json:"state"`
	Session  models.Session `json:"session"`
	Restored string         `json:"restored_address,omitempty"`
}

func NewServer(m *session.Manager, met *metrics.Metrics) *Server {
	s := &Server{
		manager: m,
		metrics: met,
		clients: make(map[*websocket.Conn]bool),
		mux:     http.NewServeMux(),
		logger:  slog.Default().With("component", "server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/session", s.handleSession)
	s.mux.HandleFunc("POST /api/connect", s.handleConnect)
	s.mux.HandleFunc("POST /api/disconnect", s.handleDisconnect)
	s.mux.HandleFunc("POST /api/send", s.handleSend)
	s.mux.HandleFunc("POST /api/balance/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /api/cache/clear", s.handleClearCache)
	s.mux.HandleFunc("GET /api/transactions", s.handleTransactions)
	s.mux.HandleFunc("GET /api/receive/qr", s.handleReceiveQR)
	s.mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	s.mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) Start(port int) error {
	go s.forward(s.manager.Subscribe())

	fmt.Printf("API Server listening on :%d\n", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s.mux)
}

func (s *Server) snapshot() sessionResponse {
	return sessionResponse{
		State:    s.manager.State().String(),
		Session:  s.manager.Session(),
		Restored: s.manager.Restored().Address,
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Connect(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.manager.Disconnect()
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	hash, err := s.manager.SendTransaction(r.Context(), req.To, req.Amount, req.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"hash":     hash,
		"explorer": s.manager.ExplorerURL(hash),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.RefreshBalance(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.ClearCache(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	filter := ledger.Filter(r.URL.Query().Get("filter"))
	switch filter {
	case "":
		filter = ledger.FilterAll
	case ledger.FilterAll, ledger.FilterIn, ledger.FilterOut:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "filter must be all, in or out"})
		return
	}
	writeJSON(w, http.StatusOK, s.manager.FilteredTransactions(filter))
}

func (s *Server) handleReceiveQR(w http.ResponseWriter, r *http.Request) {
	sess := s.manager.Session()
	if !sess.Connected {
		s.writeError(w, submit.ErrNotConnected)
		return
	}
	png, err := qrcode.Encode(models.ReceiveURI(sess.Address), qrcode.Medium, qrSize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.metrics.WriteJSON(w)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	s.mu.Lock()
	s.clients[conn] = true
	// Send initial state
	initialData := map[string]interface{}{
		"type": "initial",
		"data": s.snapshot(),
	}
	_ = conn.WriteJSON(initialData)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) forward(sub session.Subscriber) {
	defer s.manager.Unsubscribe(sub)

	for event := range sub {
		s.broadcast(event)
	}
}

func (s *Server) broadcast(event session.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": provider.Describe(err)})
}

func statusFor(err error) int {
	var subErr *submit.SubmissionError
	switch {
	case errors.Is(err, submit.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrUserRejected):
		return http.StatusForbidden
	case errors.Is(err, submit.ErrNotConnected),
		errors.Is(err, provider.ErrStaleSession),
		errors.Is(err, provider.ErrProviderBusy),
		errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, provider.ErrInvalidAddress):
		return http.StatusUnprocessableEntity
	case errors.Is(err, provider.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &subErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
