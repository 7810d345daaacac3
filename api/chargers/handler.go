// Package chargers exposes the charger HTTP endpoints: registration,
// actions, manual deposits, the detailed fleet view and the activity log.
package chargers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kilianp07/dobi/core/actions"
	"github.com/kilianp07/dobi/core/chain"
	"github.com/kilianp07/dobi/core/clock"
	"github.com/kilianp07/dobi/core/economics"
	"github.com/kilianp07/dobi/core/fleet"
	"github.com/kilianp07/dobi/core/ledger"
	"github.com/kilianp07/dobi/core/logger"
	"github.com/kilianp07/dobi/core/model"
	"github.com/kilianp07/dobi/core/registry"
	"github.com/kilianp07/dobi/core/scheduler"
)

const (
	maxBody        = 1 << 20
	recentActivity = 5
)

// Schedule is the scheduler state read by the detailed view.
type Schedule interface {
	Info(chargerID string) scheduler.Info
	FiredToday(chargerID string) int
	Config() scheduler.Config
}

// Handler serves the charger endpoints.
type Handler struct {
	Store    ledger.Store
	Registry *registry.Registry
	Actions  *actions.Executor
	Schedule Schedule
	// Chain reads balances and history. Nil reports zero balances and no
	// history.
	Chain        chain.Chain
	OnChain      bool
	HistoryLimit int
	Clock        clock.Clock
	Log          logger.Logger
}

// Routes registers the endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/chargers", h.Create)
	r.Get("/chargers/detailed", h.Detailed)
	r.Post("/chargers/{id}/action", h.Action)
	r.Post("/chargers/{id}/simulate_transaction", h.SimulateTransaction)
	r.Get("/logs", h.Logs)
}

func (h *Handler) now() time.Time {
	if h.Clock == nil {
		return time.Now()
	}
	return h.Clock.Now()
}

func (h *Handler) log() logger.Logger { return logger.OrNop(h.Log) }

type createResponse struct {
	Message string       `json:"message"`
	ID      string       `json:"id_charger"`
	Wallet  string       `json:"wallet"`
	Status  model.Status `json:"status"`
}

// Create handles POST /chargers.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req registry.Request
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c, err := h.Registry.Register(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{
		Message: "Charger created",
		ID:      c.ID,
		Wallet:  c.WalletAddress,
		Status:  c.Status,
	})
}

type actionRequest struct {
	Action string `json:"action"`
}

type messageResponse struct {
	Message string `json:"message"`
	TxHash  string `json:"tx_hash,omitempty"`
}

// Action handles POST /chargers/{id}/action.
func (h *Handler) Action(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	out, err := h.Actions.Perform(r.Context(), chi.URLParam(r, "id"), req.Action)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: out.Message, TxHash: out.TxHash})
}

type simulateRequest struct {
	AmountETH json.RawMessage `json:"amount_eth"`
}

// amount returns the requested deposit, or nil when absent or not a number.
func (s simulateRequest) amount() *decimal.Decimal {
	if len(s.AmountETH) == 0 || string(s.AmountETH) == "null" {
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(s.AmountETH); err != nil {
		return nil
	}
	return &d
}

// SimulateTransaction handles POST /chargers/{id}/simulate_transaction.
func (h *Handler) SimulateTransaction(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	out, err := h.Actions.SimulateTransaction(r.Context(), chi.URLParam(r, "id"), req.amount())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: out.Message, TxHash: out.TxHash})
}

type window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type scheduleInfo struct {
	ChargesToday     int        `json:"charges_today"`
	RemainingCharges int        `json:"remaining_charges"`
	MaxDailyCharges  int        `json:"max_daily_charges"`
	PendingCharges   int        `json:"pending_charges"`
	NextScheduled    *time.Time `json:"next_scheduled"`
	SimulationWindow window     `json:"simulation_window"`
}

type blockchainInfo struct {
	WalletBalanceETH   decimal.Decimal `json:"wallet_balance_eth"`
	SendOnchainEnabled bool            `json:"send_onchain_enabled"`
}

type activity struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type chargerView struct {
	model.Charger
	ScheduleInfo   scheduleInfo   `json:"schedule_info"`
	BlockchainInfo blockchainInfo `json:"blockchain_info"`
	RecentActivity []activity     `json:"recent_activity"`
	LastUpdated    time.Time      `json:"last_updated"`
}

type systemInfo struct {
	SimulationMode  bool            `json:"simulation_mode"`
	MinTxETH        decimal.Decimal `json:"min_tx_eth"`
	MaxTxETH        decimal.Decimal `json:"max_tx_eth"`
	SimulationHours window          `json:"simulation_hours"`
	ServerTime      time.Time       `json:"server_time"`
}

type detailedResponse struct {
	Summary    fleet.Summary `json:"summary"`
	Chargers   []chargerView `json:"chargers"`
	SystemInfo systemInfo    `json:"system_info"`
}

// Detailed handles GET /chargers/detailed.
func (h *Handler) Detailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Store.ListChargers(ctx)
	if err != nil {
		h.fail(w, err)
		return
	}
	cfg := h.Schedule.Config()
	win := window{Start: cfg.WindowStart, End: cfg.WindowEnd}
	balances := h.balances(ctx, list)
	now := h.now()

	views := make([]chargerView, 0, len(list))
	for _, c := range list {
		logs, err := h.Store.Logs(ctx, ledger.LogQuery{ChargerID: c.ID, Limit: recentActivity})
		if err != nil {
			h.fail(w, err)
			return
		}
		recent := make([]activity, 0, len(logs))
		for _, l := range logs {
			recent = append(recent, activity{Message: l.Message, Timestamp: l.Timestamp})
		}
		info := h.Schedule.Info(c.ID)
		si := scheduleInfo{
			ChargesToday:     info.FiredToday,
			RemainingCharges: info.Remaining,
			MaxDailyCharges:  cfg.MaxDaily,
			PendingCharges:   info.Pending,
			SimulationWindow: win,
		}
		if c.Active() {
			next := info.NextFire
			si.NextScheduled = &next
		}
		views = append(views, chargerView{
			Charger:        c,
			ScheduleInfo:   si,
			BlockchainInfo: blockchainInfo{WalletBalanceETH: balances[c.ID], SendOnchainEnabled: h.OnChain},
			RecentActivity: recent,
			LastUpdated:    now,
		})
	}
	writeJSON(w, http.StatusOK, detailedResponse{
		Summary:  fleet.Summarize(list, h.Schedule.FiredToday),
		Chargers: views,
		SystemInfo: systemInfo{
			SimulationMode:  !h.OnChain,
			MinTxETH:        cfg.MinTx,
			MaxTxETH:        cfg.MaxTx,
			SimulationHours: win,
			ServerTime:      now,
		},
	})
}

// balances reads every wallet balance concurrently. Failures are logged and
// reported as zero.
func (h *Handler) balances(ctx context.Context, list []model.Charger) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(list))
	for _, c := range list {
		out[c.ID] = decimal.Zero
	}
	if h.Chain == nil {
		return out
	}
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, 8)
	)
	for _, c := range list {
		if c.WalletAddress == "" {
			continue
		}
		wg.Add(1)
		go func(c model.Charger) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			bal, err := h.Chain.Balance(ctx, c.WalletAddress)
			if err != nil {
				h.log().Warnf("balance of %s: %v", c.ID, err)
				return
			}
			mu.Lock()
			out[c.ID] = bal
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return out
}

type chainTxView struct {
	ChargerID     string `json:"charger_id"`
	WalletAddress string `json:"wallet_address"`
	chain.Tx
}

type logsResponse struct {
	DatabaseLogs           []model.LogEntry `json:"database_logs"`
	BlockchainTransactions []chainTxView    `json:"blockchain_transactions"`
}

// Logs handles GET /logs?include_blockchain=&charger_id=.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chargerID := r.URL.Query().Get("charger_id")
	logs, err := h.Store.Logs(ctx, ledger.LogQuery{ChargerID: chargerID})
	if err != nil {
		h.fail(w, err)
		return
	}
	resp := logsResponse{DatabaseLogs: logs, BlockchainTransactions: []chainTxView{}}
	if resp.DatabaseLogs == nil {
		resp.DatabaseLogs = []model.LogEntry{}
	}
	if r.URL.Query().Get("include_blockchain") == "true" && h.Chain != nil {
		txs, err := h.history(ctx, chargerID)
		if err != nil {
			h.fail(w, err)
			return
		}
		resp.BlockchainTransactions = txs
	}
	writeJSON(w, http.StatusOK, resp)
}

// history collects the recent transfers of every selected wallet, newest
// first. Per-wallet failures are logged and skipped.
func (h *Handler) history(ctx context.Context, chargerID string) ([]chainTxView, error) {
	var list []model.Charger
	if chargerID != "" {
		c, err := h.Store.GetCharger(ctx, chargerID)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			return []chainTxView{}, nil
		case err != nil:
			return nil, err
		}
		list = []model.Charger{c}
	} else {
		var err error
		if list, err = h.Store.ListChargers(ctx); err != nil {
			return nil, err
		}
	}
	out := []chainTxView{}
	for _, c := range list {
		if c.WalletAddress == "" {
			continue
		}
		txs, err := h.Chain.History(ctx, []string{c.WalletAddress}, h.HistoryLimit)
		if err != nil {
			h.log().Warnf("history of %s: %v", c.ID, err)
			continue
		}
		for _, tx := range txs {
			out = append(out, chainTxView{ChargerID: c.ID, WalletAddress: c.WalletAddress, Tx: tx})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func decode(r *http.Request, v any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBody)
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// fail maps domain errors to HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "Charger not found")
	case errors.Is(err, actions.ErrUnknownAction):
		writeError(w, http.StatusBadRequest, "Invalid action")
	case errors.Is(err, registry.ErrMissingFields):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, economics.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrExists):
		writeError(w, http.StatusConflict, "Charger already exists")
	default:
		h.log().Errorf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
