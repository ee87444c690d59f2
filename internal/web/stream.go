package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/vadiminshakov/tbills/internal/domain"
	"go.uber.org/zap"
)

var errInvalidCursor = domain.NewValidationError("invalid stream cursor")

// handleTransactionStream pushes the caller's ledger entries as server-sent events.
// Entries start at ?from= (or after Last-Event-ID) and new ones are polled.
func (s *Server) handleTransactionStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	next, err := streamCursor(r)
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	caller := Caller(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// send a comment heartbeat every 30s so proxies keep connection
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(s.pollTick)
	defer pollTicker.Stop()

	// sent turns true once an event reaches the client; errors after that cannot become a response
	sent := false
	sendTransactions := func() error {
		txs, err := s.trading.TransactionsFrom(r.Context(), caller, next)
		if err != nil {
			return err
		}
		for _, tx := range txs {
			payload, err := json.Marshal(tx)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: transaction\ndata: %s\n\n", tx.ID, payload); err != nil {
				return err
			}
			sent = true
			flusher.Flush()
			next = tx.ID + 1
		}
		return nil
	}

	if err := sendTransactions(); err != nil {
		if sent {
			s.logger.Warn("transaction stream", zap.String("caller", caller), zap.Error(err))
			return
		}
		s.respondWithError(w, err)
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendTransactions(); err != nil {
				s.logger.Warn("transaction stream poll", zap.String("caller", caller), zap.Error(err))
			}
		}
	}
}

func streamCursor(r *http.Request) (uint64, error) {
	if raw := r.URL.Query().Get("from"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, errInvalidCursor
		}
		return v, nil
	}
	if raw := r.Header.Get("Last-Event-ID"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, errInvalidCursor
		}
		return v + 1, nil
	}

	return 0, nil
}
