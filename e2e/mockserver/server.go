// Package mockserver provides a mock OANDA v20 server for testing. It
// implements the pricing stream plus the REST endpoints the trading engine
// touches: account summary, pricing, order placement, and open trades.
package mockserver

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// ServerConfig configures the initial state of the mock server.
type ServerConfig struct {
	// AccountID is the account the server answers for.
	AccountID string

	// Currency and Balance seed the account summary.
	Currency string
	Balance  float64

	// MarginAvailable defaults to Balance when zero.
	MarginAvailable float64

	// StreamInterval is the delay between streamed lines. Zero streams as
	// fast as possible.
	StreamInterval time.Duration

	// SSEFraming prefixes each streamed line with "data: ", the framing the
	// original mock feed used.
	SSEFraming bool
}

// OpenTrade is one open position reported by the openTrades endpoint.
type OpenTrade struct {
	Instrument   string
	CurrentUnits int64
	Price        float64
}

// ReceivedOrder is a recorded order placement request.
type ReceivedOrder struct {
	Instrument      string
	Units           int64
	Type            string
	TimeInForce     string
	StopLossPrice   string
	TakeProfitPrice string
	ClientID        string
	ReceivedAt      time.Time
}

// MockOandaServer provides a mock OANDA v20 server for testing.
type MockOandaServer struct {
	mu sync.RWMutex

	httpServer *http.Server
	listener   net.Listener

	config ServerConfig

	// script holds the raw stream lines, in order.
	script []string

	// currentPrices backs the pricing endpoint.
	currentPrices map[string][2]float64

	openTrades []OpenTrade
	orders     []ReceivedOrder
}

// NewMockOandaServer creates a mock server with the given configuration.
func NewMockOandaServer(config ServerConfig) *MockOandaServer {
	if config.MarginAvailable == 0 {
		config.MarginAvailable = config.Balance
	}

	return &MockOandaServer{
		config:        config,
		currentPrices: make(map[string][2]float64),
	}
}

// PriceLine builds one pricing stream message in the v20 wire shape.
func PriceLine(instrument string, bid, ask float64, at time.Time) string {
	return fmt.Sprintf(
		`{"type":"PRICE","time":"%s","instrument":"%s","bids":[{"price":"%.5f","liquidity":1000000}],"asks":[{"price":"%.5f","liquidity":1000000}],"status":"tradeable","tradeable":true}`,
		at.UTC().Format(time.RFC3339Nano), instrument, bid, ask)
}

// HeartbeatLine builds one heartbeat message.
func HeartbeatLine(at time.Time) string {
	return fmt.Sprintf(`{"type":"HEARTBEAT","time":"%s"}`, at.UTC().Format(time.RFC3339Nano))
}

// AddStreamLine appends a raw line to the stream script. Use PriceLine and
// HeartbeatLine for well-formed messages, or any string to inject a
// malformed one.
func (s *MockOandaServer) AddStreamLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.script = append(s.script, line)
}

// SetPrice sets the bid/ask the pricing endpoint reports for an instrument.
func (s *MockOandaServer) SetPrice(instrument string, bid, ask float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentPrices[instrument] = [2]float64{bid, ask}
}

// SetOpenTrades replaces the open trades list.
func (s *MockOandaServer) SetOpenTrades(trades ...OpenTrade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.openTrades = append([]OpenTrade(nil), trades...)
}

// Orders returns the recorded order placements.
func (s *MockOandaServer) Orders() []ReceivedOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]ReceivedOrder(nil), s.orders...)
}

// Start begins serving on the given address. Pass "" for a random port.
func (s *MockOandaServer) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.listener = listener

	router := mux.NewRouter()

	router.HandleFunc("/v3/accounts/{accountID}/pricing/stream", s.handleStream).Methods("GET")
	router.HandleFunc("/v3/accounts/{accountID}/pricing", s.handlePricing).Methods("GET")
	router.HandleFunc("/v3/accounts/{accountID}/orders", s.handleCreateOrder).Methods("POST")
	router.HandleFunc("/v3/accounts/{accountID}/openTrades", s.handleOpenTrades).Methods("GET")
	router.HandleFunc("/v3/accounts/{accountID}", s.handleAccount).Methods("GET")

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			fmt.Printf("mock server error: %v\n", err)
		}
	}()

	return nil
}

// Stop stops the mock server.
func (s *MockOandaServer) Stop() error {
	if s.httpServer != nil {
		return s.httpServer.Close()
	}

	return nil
}

// BaseURL returns the server's base URL.
func (s *MockOandaServer) BaseURL() string {
	return "http://" + s.listener.Addr().String()
}

// StreamURL returns the pricing stream URL for the configured account.
func (s *MockOandaServer) StreamURL() string {
	return fmt.Sprintf("%s/v3/accounts/%s/pricing/stream", s.BaseURL(), s.config.AccountID)
}

func (s *MockOandaServer) checkAccount(w http.ResponseWriter, r *http.Request) bool {
	if mux.Vars(r)["accountID"] != s.config.AccountID {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"errorMessage":"Account not found"}`)

		return false
	}

	return true
}

func (s *MockOandaServer) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.checkAccount(w, r) {
		return
	}

	s.mu.RLock()
	script := append([]string(nil), s.script...)
	interval := s.config.StreamInterval
	sse := s.config.SSEFraming
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}

	for _, line := range script {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		if sse {
			fmt.Fprintf(w, "data: %s\n\n", line)
		} else {
			fmt.Fprintf(w, "%s\n", line)
		}

		flusher.Flush()

		if interval > 0 {
			time.Sleep(interval)
		}
	}
}

func (s *MockOandaServer) handleAccount(w http.ResponseWriter, r *http.Request) {
	if !s.checkAccount(w, r) {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	response := map[string]any{
		"account": map[string]any{
			"id":              s.config.AccountID,
			"currency":        s.config.Currency,
			"balance":         fmt.Sprintf("%.2f", s.config.Balance),
			"marginAvailable": fmt.Sprintf("%.2f", s.config.MarginAvailable),
			"openTradeCount":  len(s.openTrades),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *MockOandaServer) handlePricing(w http.ResponseWriter, r *http.Request) {
	if !s.checkAccount(w, r) {
		return
	}

	instrument := r.URL.Query().Get("instruments")

	s.mu.RLock()
	price, ok := s.currentPrices[instrument]
	s.mu.RUnlock()

	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"errorMessage":"Invalid instrument"}`)

		return
	}

	response := map[string]any{
		"prices": []map[string]any{
			{
				"type":       "PRICE",
				"instrument": instrument,
				"time":       time.Now().UTC().Format(time.RFC3339Nano),
				"bids":       []map[string]string{{"price": fmt.Sprintf("%.5f", price[0])}},
				"asks":       []map[string]string{{"price": fmt.Sprintf("%.5f", price[1])}},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *MockOandaServer) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	if !s.checkAccount(w, r) {
		return
	}

	var request struct {
		Order struct {
			Type             string `json:"type"`
			Instrument       string `json:"instrument"`
			Units            string `json:"units"`
			TimeInForce      string `json:"timeInForce"`
			ClientExtensions struct {
				ID string `json:"id"`
			} `json:"clientExtensions"`
			StopLossOnFill *struct {
				Price string `json:"price"`
			} `json:"stopLossOnFill"`
			TakeProfitOnFill *struct {
				Price string `json:"price"`
			} `json:"takeProfitOnFill"`
		} `json:"order"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"errorMessage":"Invalid order request"}`)

		return
	}

	units, err := strconv.ParseInt(request.Order.Units, 10, 64)
	if err != nil || units == 0 {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"errorMessage":"Invalid units"}`)

		return
	}

	received := ReceivedOrder{
		Instrument:  request.Order.Instrument,
		Units:       units,
		Type:        request.Order.Type,
		TimeInForce: request.Order.TimeInForce,
		ClientID:    request.Order.ClientExtensions.ID,
		ReceivedAt:  time.Now(),
	}

	if request.Order.StopLossOnFill != nil {
		received.StopLossPrice = request.Order.StopLossOnFill.Price
	}

	if request.Order.TakeProfitOnFill != nil {
		received.TakeProfitPrice = request.Order.TakeProfitOnFill.Price
	}

	s.mu.Lock()
	s.orders = append(s.orders, received)
	s.mu.Unlock()

	response := map[string]any{
		"orderFillTransaction": map[string]any{
			"id":         uuid.New().String(),
			"instrument": received.Instrument,
			"units":      request.Order.Units,
			"time":       time.Now().UTC().Format(time.RFC3339Nano),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

func (s *MockOandaServer) handleOpenTrades(w http.ResponseWriter, r *http.Request) {
	if !s.checkAccount(w, r) {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := make([]map[string]any, 0, len(s.openTrades))
	for _, trade := range s.openTrades {
		trades = append(trades, map[string]any{
			"id":           uuid.New().String(),
			"instrument":   trade.Instrument,
			"currentUnits": strconv.FormatInt(trade.CurrentUnits, 10),
			"price":        fmt.Sprintf("%.5f", trade.Price),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"trades": trades})
}
