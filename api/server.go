// Package api exposes the election over HTTP: read-only views of the
// election, the ledger and the results, plus a single endpoint that accepts
// signed transactions and waits for them to commit.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"election-ledger/blockchain/ledger"
	"election-ledger/election"
	"election-ledger/logging"
	"election-ledger/models"
	"election-ledger/service"
)

const (
	submitTimeout    = 30 * time.Second
	eventBuffer      = 16
	maxRequestBody   = 1 << 20
	defaultPageLimit = 100
)

type Server struct {
	svc       *service.ElectionService
	queue     *service.TxQueue
	validator *service.Validator
	log       logging.Logger
}

func NewServer(svc *service.ElectionService, queue *service.TxQueue, log logging.Logger) *Server {
	return &Server{
		svc:       svc,
		queue:     queue,
		validator: service.NewValidator(),
		log:       log,
	}
}

type ElectionResponse struct {
	Admin             common.Address `json:"admin"`
	StartTime         uint64         `json:"startTime"`
	EndTime           uint64         `json:"endTime"`
	Now               uint64         `json:"now"`
	Status            models.Phase   `json:"status"`
	ProposalsCount    uint64         `json:"proposalsCount"`
	ShareholdersCount uint64         `json:"shareholdersCount"`
	Height            uint64         `json:"height"`
}

type StatusResponse struct {
	Timestamp uint64       `json:"timestamp"`
	Status    models.Phase `json:"status"`
}

type CountResponse struct {
	Count uint64 `json:"count"`
}

type ShareholderIndexResponse struct {
	Index       uint64             `json:"index"`
	Address     common.Address     `json:"address"`
	Shareholder models.Shareholder `json:"shareholder"`
	Exists      bool               `json:"exists"`
}

type NonceResponse struct {
	Address common.Address `json:"address"`
	Nonce   uint64         `json:"nonce"`
}

type LedgerResponse struct {
	Height   uint64          `json:"height"`
	HeadHash string          `json:"head_hash"`
	Genesis  models.Genesis  `json:"genesis"`
	Blocks   []*models.Block `json:"blocks"`
}

type BlockResponse struct {
	Block   *models.Block   `json:"block"`
	Genesis *models.Genesis `json:"genesis,omitempty"`
	Receipt *models.Receipt `json:"receipt,omitempty"`
	IsValid bool            `json:"is_valid"`
}

type ValidationResponse struct {
	IsValid bool   `json:"is_valid"`
	Height  uint64 `json:"height"`
	Error   string `json:"error,omitempty"`
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(WithLogging(s.log))

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.svc.Metrics().Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/election", s.handleElection).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	// Candidates are the same records under a second name.
	for _, prefix := range []string{"/proposals", "/candidates"} {
		api.HandleFunc(prefix, s.handleProposals).Methods(http.MethodGet)
		api.HandleFunc(prefix+"/count", s.handleProposalsCount).Methods(http.MethodGet)
		api.HandleFunc(prefix+"/{id:[0-9]+}", s.handleProposal).Methods(http.MethodGet)
	}

	api.HandleFunc("/shareholders", s.handleShareholders).Methods(http.MethodGet)
	api.HandleFunc("/shareholders/index/{index:[0-9]+}", s.handleShareholderIndex).Methods(http.MethodGet)
	api.HandleFunc("/shareholders/{address}", s.handleShareholder).Methods(http.MethodGet)
	api.HandleFunc("/shareholders/{address}/voted", s.handleHasVoted).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{address}/nonce", s.handleNonce).Methods(http.MethodGet)

	api.HandleFunc("/transactions", s.handleSubmit).Methods(http.MethodPost)

	api.HandleFunc("/results", s.handleResults).Methods(http.MethodGet)
	api.HandleFunc("/results/verify", s.handleVerify).Methods(http.MethodGet)

	api.HandleFunc("/ledger", s.handleLedger).Methods(http.MethodGet)
	api.HandleFunc("/ledger/blocks/{index:[0-9]+}", s.handleBlock).Methods(http.MethodGet)
	api.HandleFunc("/ledger/validate", s.handleValidate).Methods(http.MethodGet)

	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleElection(w http.ResponseWriter, r *http.Request) {
	e := s.svc.Election()
	now := s.svc.Now()
	JSONResponse(w, http.StatusOK, ElectionResponse{
		Admin:             e.Admin(),
		StartTime:         e.StartTime(),
		EndTime:           e.EndTime(),
		Now:               now,
		Status:            e.Status(now),
		ProposalsCount:    e.ProposalsCount(),
		ShareholdersCount: e.ShareholdersCount(),
		Height:            s.svc.Ledger().Height(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ts := s.svc.Now()
	if raw := r.URL.Query().Get("timestamp"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			ErrorResponse(w, http.StatusBadRequest, "timestamp must be an unsigned integer")
			return
		}
		ts = v
	}
	JSONResponse(w, http.StatusOK, StatusResponse{
		Timestamp: ts,
		Status:    s.svc.Election().Status(ts),
	})
}

func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, s.svc.Election().Proposals())
}

func (s *Server) handleProposalsCount(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, CountResponse{Count: s.svc.Election().ProposalsCount()})
}

func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid proposal id")
		return
	}
	p := s.svc.Election().Proposal(id)
	if !p.Exists() {
		WriteError(w, election.ErrProposalNotFound)
		return
	}
	JSONResponse(w, http.StatusOK, p)
}

func (s *Server) handleShareholders(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, s.svc.Election().Shareholders())
}

func (s *Server) handleShareholder(w http.ResponseWriter, r *http.Request) {
	addr, err := s.validator.Address(mux.Vars(r)["address"])
	if err != nil {
		WriteError(w, err)
		return
	}
	sh := s.svc.Election().Shareholder(addr)
	if !sh.Exists() {
		WriteError(w, election.ErrShareholderNotRegistered)
		return
	}
	JSONResponse(w, http.StatusOK, sh)
}

func (s *Server) handleHasVoted(w http.ResponseWriter, r *http.Request) {
	addr, err := s.validator.Address(mux.Vars(r)["address"])
	if err != nil {
		WriteError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, map[string]bool{"voted": s.svc.Election().HasVoted(addr)})
}

func (s *Server) handleShareholderIndex(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid index")
		return
	}
	e := s.svc.Election()
	addr, err := e.ShareholderAddress(index)
	if err != nil {
		WriteError(w, err)
		return
	}
	sh := e.Shareholder(addr)
	JSONResponse(w, http.StatusOK, ShareholderIndexResponse{
		Index:       index,
		Address:     addr,
		Shareholder: sh,
		Exists:      sh.Exists(),
	})
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	addr, err := s.validator.Address(mux.Vars(r)["address"])
	if err != nil {
		WriteError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, NonceResponse{Address: addr, Nonce: s.svc.NextNonce(addr)})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var tx models.Transaction
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tx); err != nil {
		ErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid transaction body: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()

	commit, err := s.queue.Submit(ctx, &tx)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, commit)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, s.svc.Results())
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.VerifyTally()
	if err != nil {
		WriteError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, v)
}

// handleLedger lists blocks starting at ?from= (default 0), at most ?limit=.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	from, err := queryUint(r, "from", 0)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryUint(r, "limit", defaultPageLimit)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	l := s.svc.Ledger()
	blocks := l.Blocks(from)
	if uint64(len(blocks)) > limit {
		blocks = blocks[:limit]
	}
	JSONResponse(w, http.StatusOK, LedgerResponse{
		Height:   l.Height(),
		HeadHash: l.Head().Hash.String(),
		Genesis:  l.Genesis(),
		Blocks:   blocks,
	})
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid block index")
		return
	}
	l := s.svc.Ledger()
	block, err := l.Block(index)
	if err != nil {
		WriteError(w, err)
		return
	}

	resp := BlockResponse{Block: block, IsValid: block.Validate()}
	if index == 0 {
		g := l.Genesis()
		resp.Genesis = &g
	} else {
		receipt, err := ledger.Receipt(block)
		if err != nil {
			WriteError(w, err)
			return
		}
		resp.Receipt = &receipt
	}
	JSONResponse(w, http.StatusOK, resp)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	l := s.svc.Ledger()
	resp := ValidationResponse{IsValid: true, Height: l.Height()}
	if err := l.Validate(); err != nil {
		resp.IsValid = false
		resp.Error = err.Error()
	}
	JSONResponse(w, http.StatusOK, resp)
}

// handleEvents streams committed vote-cast events as server-sent events
// until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		ErrorResponse(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	ch := make(chan election.VoteCast, eventBuffer)
	sub := s.svc.SubscribeVoteCast(ch)
	defer sub.Unsubscribe()

	// The relay keeps ch drained so a slow client only loses its own oldest
	// events and never holds up delivery to other subscribers.
	pending := make(chan election.VoteCast, eventBuffer)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				if pushLatest(pending, ev) {
					s.log.Debugf("Event stream for %s lagging, dropped oldest vote event", r.RemoteAddr)
				}
			}
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				s.log.Warnf("Vote event subscription failed: %v", err)
			}
			return
		case ev := <-pending:
			data, err := json.Marshal(ev)
			if err != nil {
				s.log.Errorf("Failed to encode vote event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: voteCast\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// pushLatest queues ev on ch, evicting the oldest queued event when ch is
// full. It reports whether an event was evicted. ch must have a single
// sender.
func pushLatest(ch chan election.VoteCast, ev election.VoteCast) bool {
	select {
	case ch <- ev:
		return false
	default:
	}
	dropped := false
	select {
	case <-ch:
		dropped = true
	default:
	}
	ch <- ev
	return dropped
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, s.svc.Metrics().GetMetrics())
}

func queryUint(r *http.Request, key string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an unsigned integer", key)
	}
	return v, nil
}
