// Package web serves a minimal status page: a live portfolio summary and the
// stream of trade decisions, both over SSE.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/penny/internal/domain"
	"github.com/vadiminshakov/penny/internal/storage/decisions"
	"go.uber.org/zap"
)

const streamPollInterval = 2 * time.Second

type summaryProvider interface {
	Summary(currentPrices map[string]decimal.Decimal) domain.Summary
}

type decisionReader interface {
	EventsAfter(index uint64) ([]decisions.Record, error)
}

// Server exposes the HTML page and the SSE streams.
type Server struct {
	addr    string
	logger  *zap.Logger
	book    summaryProvider
	journal decisionReader
}

// NewServer creates a status server. journal may be nil; the decision stream
// then reports unavailable.
func NewServer(addr string, logger *zap.Logger, book summaryProvider, journal decisionReader) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{addr: addr, logger: logger, book: book, journal: journal}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/portfolio/stream", s.handlePortfolioStream)
	mux.HandleFunc("/decisions/stream", s.handleDecisionStream)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handlePortfolioStream(w http.ResponseWriter, r *http.Request) {
	if s.book == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "portfolio not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	pollTicker := time.NewTicker(streamPollInterval)
	defer pollTicker.Stop()

	sendSummary := func() {
		payload, err := json.Marshal(s.book.Summary(nil))
		if err != nil {
			s.logger.Warn("summary stream encode failed", zap.Error(err))
			return
		}
		fmt.Fprintf(w, "event: summary\n")
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	sendSummary()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-pollTicker.C:
			sendSummary()
		}
	}
}

func (s *Server) handleDecisionStream(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "decision journal not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// comment heartbeat every 30s so proxies keep the connection
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(streamPollInterval)
	defer pollTicker.Stop()

	lastIndex := uint64(0)
	sendDecisions := func() error {
		records, err := s.journal.EventsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Event)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "event: decision\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendDecisions(); err != nil {
		http.Error(w, "failed to load decisions", http.StatusInternalServerError)
		s.logger.Warn("decision stream initial load failed", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendDecisions(); err != nil {
				s.logger.Warn("decision stream poll failed", zap.Error(err))
			}
		}
	}
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Penny</title>
  <style>
    body {
      margin:0;
      padding:2rem;
      background:#ffffff;
      color:#111111;
      font-family:'Space Mono','JetBrains Mono',monospace;
    }
    #app {
      max-width:1100px;
      margin:0 auto;
      display:grid;
      grid-template-columns:1fr 380px;
      gap:2rem;
    }
    h1 { font-size:.9rem; text-transform:uppercase; letter-spacing:.2em; }
    .panel {
      border:3px solid #111;
      padding:1.5rem;
      box-shadow:8px 8px 0 rgba(0,0,0,.15);
      background:#f6f6f6;
    }
    .stat { display:flex; justify-content:space-between; padding:.4rem 0;
      border-bottom:1px dashed #9c9c9c; font-size:.8rem; }
    .stat .label { text-transform:uppercase; letter-spacing:.1em; color:#4d4d4d; }
    .decision {
      border:2px solid #111;
      background:#fff;
      padding:.8rem;
      margin-bottom:.8rem;
      font-size:.7rem;
      box-shadow:4px 4px 0 rgba(0,0,0,.12);
    }
    .decision .kind { font-weight:700; text-transform:uppercase; letter-spacing:.1em; }
    .decision .kind.entry { color:#1b9aaa; }
    .decision .kind.exit { color:#d7263d; }
    .decision .kind.skip { color:#9c9c9c; }
    .decision .reason { margin-top:.4rem; color:#4d4d4d; }
    #status { font-size:.65rem; text-transform:uppercase; letter-spacing:.1em; }
    @media (max-width:760px) { #app { grid-template-columns:1fr; } }
  </style>
</head>
<body>
  <div id="app">
    <div>
      <h1>penny paper trader</h1>
      <div id="status">Connecting…</div>
      <div class="panel" id="summary"></div>
    </div>
    <div>
      <h1>decisions</h1>
      <div id="decisions"></div>
    </div>
  </div>
<script>
const statusEl = document.getElementById('status');
const summaryEl = document.getElementById('summary');
const decisionsEl = document.getElementById('decisions');
const MAX_DECISIONS = 50;

const rows = [
  ['cash', 'Cash'],
  ['total_value', 'Total value'],
  ['open_positions', 'Open positions'],
  ['total_trades', 'Trades'],
  ['win_rate', 'Win rate %'],
  ['total_net_profit', 'Net profit'],
  ['total_fees', 'Fees paid'],
  ['roi_percent', 'ROI %']
];

function renderSummary(summary){
  summaryEl.innerHTML = '';
  for(const [key, label] of rows){
    const row = document.createElement('div');
    row.className = 'stat';
    const l = document.createElement('span');
    l.className = 'label';
    l.textContent = label;
    const v = document.createElement('span');
    v.textContent = summary[key];
    row.append(l, v);
    summaryEl.appendChild(row);
  }
}

function renderDecision(event){
  const card = document.createElement('div');
  card.className = 'decision';
  const kind = document.createElement('div');
  kind.className = 'kind ' + event.kind;
  kind.textContent = event.kind + ' · ' + event.symbol +
    (event.grade ? ' · ' + event.grade : '');
  const reason = document.createElement('div');
  reason.className = 'reason';
  reason.textContent = event.reason;
  card.append(kind, reason);
  decisionsEl.insertBefore(card, decisionsEl.firstChild);
  while(decisionsEl.children.length > MAX_DECISIONS){
    decisionsEl.removeChild(decisionsEl.lastChild);
  }
}

function connectSummary(){
  const source = new EventSource('/portfolio/stream');
  source.addEventListener('summary', (event) => {
    statusEl.textContent = 'Live';
    try{ renderSummary(JSON.parse(event.data)); }catch(err){ console.error(err); }
  });
  source.addEventListener('error', () => {
    statusEl.textContent = 'Reconnecting…';
    source.close();
    setTimeout(connectSummary, 2000);
  });
}

function connectDecisions(){
  const source = new EventSource('/decisions/stream');
  source.addEventListener('decision', (event) => {
    try{ renderDecision(JSON.parse(event.data)); }catch(err){ console.error(err); }
  });
  source.addEventListener('error', () => {
    source.close();
    setTimeout(connectDecisions, 2000);
  });
}

connectSummary();
connectDecisions();
</script>
</body>
</html>`
