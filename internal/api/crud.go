package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"crypto-signals/internal/model"
)

// ── Alarms ──

type createAlarmRequest struct {
	Symbol    string               `json:"symbol" validate:"required,alphanum"`
	Condition model.AlarmCondition `json:"conditionType" validate:"required"`
	Action    model.AlarmAction    `json:"actionType" validate:"required"`
	Threshold float64              `json:"threshold" validate:"gte=0"`
}

func (req createAlarmRequest) check() error {
	if !req.Condition.Valid() {
		return badRequest("unknown conditionType %q", req.Condition)
	}
	if !req.Action.Valid() {
		return badRequest("unknown actionType %q", req.Action)
	}
	if (req.Condition == model.ConditionPriceAbove || req.Condition == model.ConditionPriceBelow) && req.Threshold <= 0 {
		return badRequest("%s requires a positive threshold", req.Condition)
	}
	return nil
}

func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost, http.MethodDelete) {
		return
	}
	ctx := r.Context()
	user := userID(r)

	switch r.Method {
	case http.MethodGet:
		alarms, err := s.opts.Store.ListAlarms(ctx, user)
		if err != nil {
			writeErr(w, err)
			return
		}
		if alarms == nil {
			alarms = []model.Alarm{}
		}
		writeJSON(w, http.StatusOK, alarms)

	case http.MethodPost:
		var req createAlarmRequest
		if err := s.decode(w, r, &req); err != nil {
			writeErr(w, err)
			return
		}
		req.Condition = model.AlarmCondition(strings.ToUpper(string(req.Condition)))
		req.Action = model.AlarmAction(strings.ToUpper(string(req.Action)))
		if err := req.check(); err != nil {
			writeErr(w, err)
			return
		}
		a := model.Alarm{
			UserID:    user,
			Symbol:    strings.ToUpper(req.Symbol),
			Condition: req.Condition,
			Action:    req.Action,
			Threshold: req.Threshold,
			IsActive:  true,
			CreatedAt: s.opts.Now(),
		}
		id, err := s.opts.Store.CreateAlarm(ctx, a)
		if err != nil {
			writeErr(w, err)
			return
		}
		a.ID = id
		writeJSON(w, http.StatusCreated, a)

	case http.MethodDelete:
		id, err := idParam(r)
		if err != nil {
			writeErr(w, err)
			return
		}
		if _, err := s.ownAlarm(ctx, id, user); err != nil {
			writeErr(w, err)
			return
		}
		if err := s.opts.Store.DeleteAlarm(ctx, id); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

func (s *Server) ownAlarm(ctx context.Context, id int64, user string) (model.Alarm, error) {
	a, err := s.opts.Store.GetAlarm(ctx, id)
	if err != nil {
		return a, err
	}
	if a.UserID != user {
		return a, fmt.Errorf("alarm %d: %w", id, model.ErrNotFound)
	}
	return a, nil
}

func (s *Server) handleAlarmToggle(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()
	id, err := idParam(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if _, err := s.ownAlarm(ctx, id, userID(r)); err != nil {
		writeErr(w, err)
		return
	}
	active, err := s.opts.Store.ToggleAlarm(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "isActive": active})
}

func (s *Server) handleAlarmLogs(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()
	id, err := idParam(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if _, err := s.ownAlarm(ctx, id, userID(r)); err != nil {
		writeErr(w, err)
		return
	}
	logs, err := s.opts.Store.AlarmLogs(ctx, id, limitParam(r, 50, 500))
	if err != nil {
		writeErr(w, err)
		return
	}
	if logs == nil {
		logs = []model.AlarmLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleAutoTrades(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	sigs, err := s.opts.Store.AutoTradeSignals(r.Context(), userID(r), limitParam(r, 50, 500))
	if err != nil {
		writeErr(w, err)
		return
	}
	if sigs == nil {
		sigs = []model.AutoTradeSignal{}
	}
	writeJSON(w, http.StatusOK, sigs)
}

// ── DCA bots ──

type createDcaRequest struct {
	Symbol            string   `json:"symbol" validate:"required,alphanum"`
	Amount            float64  `json:"amount" validate:"gt=0"`
	IntervalHours     float64  `json:"intervalHours" validate:"gt=0"`
	TakeProfitPercent *float64 `json:"takeProfitPercent" validate:"omitempty,gt=0"`
}

func (s *Server) handleDca(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost, http.MethodDelete) {
		return
	}
	ctx := r.Context()
	user := userID(r)

	switch r.Method {
	case http.MethodGet:
		bots, err := s.opts.Store.ListDcaBots(ctx, user)
		if err != nil {
			writeErr(w, err)
			return
		}
		out := []model.DcaBot{}
		for _, b := range bots {
			if b.Status == model.DcaActive || b.Status == model.DcaPaused {
				out = append(out, b)
			}
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req createDcaRequest
		if err := s.decode(w, r, &req); err != nil {
			writeErr(w, err)
			return
		}
		b := model.DcaBot{
			UserID:            user,
			Symbol:            strings.ToUpper(req.Symbol),
			Amount:            req.Amount,
			IntervalHours:     req.IntervalHours,
			TakeProfitPercent: req.TakeProfitPercent,
			Status:            model.DcaActive,
			CreatedAt:         s.opts.Now(),
		}
		id, err := s.opts.Store.CreateDcaBot(ctx, b)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "id": id})

	case http.MethodDelete:
		s.setDcaStatus(w, r, func(model.DcaBot) model.DcaStatus { return model.DcaCancelled })
	}
}

// handleDcaToggle pauses an ACTIVE bot or resumes a PAUSED one.
func (s *Server) handleDcaToggle(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	s.setDcaStatus(w, r, func(b model.DcaBot) model.DcaStatus {
		if b.Status == model.DcaActive {
			return model.DcaPaused
		}
		return model.DcaActive
	})
}

// setDcaStatus moves a non-terminal bot to the status chosen by next.
// COMPLETED and CANCELLED bots are never changed.
func (s *Server) setDcaStatus(w http.ResponseWriter, r *http.Request, next func(model.DcaBot) model.DcaStatus) {
	ctx := r.Context()
	id, err := idParam(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	bot, err := s.opts.Store.GetDcaBot(ctx, id)
	if err == nil && bot.UserID != userID(r) {
		err = fmt.Errorf("dca bot %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	if bot.Status == model.DcaCompleted || bot.Status == model.DcaCancelled {
		writeError(w, http.StatusConflict, fmt.Sprintf("bot is %s", bot.Status))
		return
	}
	status := next(bot)
	if err := s.opts.Store.SetDcaStatus(ctx, id, status); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "status": status})
}

// ── Trailing stops ──

type createTrailingRequest struct {
	Symbol          string   `json:"symbol" validate:"required,alphanum"`
	Quantity        float64  `json:"quantity" validate:"gt=0"`
	CallbackRate    float64  `json:"callbackRate" validate:"gt=0,lt=100"`
	ActivationPrice *float64 `json:"activationPrice" validate:"omitempty,gt=0"`
}

func (s *Server) handleTrailingStops(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost, http.MethodDelete) {
		return
	}
	ctx := r.Context()
	user := userID(r)

	switch r.Method {
	case http.MethodGet:
		stops, err := s.opts.Store.ListTrailingStops(ctx, user)
		if err != nil {
			writeErr(w, err)
			return
		}
		out := []model.TrailingStop{}
		for _, t := range stops {
			if t.Status == model.TrailingActive {
				out = append(out, t)
			}
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req createTrailingRequest
		if err := s.decode(w, r, &req); err != nil {
			writeErr(w, err)
			return
		}
		symbol := strings.ToUpper(req.Symbol)
		price, err := s.opts.Market.Price(ctx, symbol)
		if err != nil {
			writeErr(w, &model.MarketDataError{Symbol: symbol, Err: err})
			return
		}

		// One active stop per symbol: older ones are cancelled.
		existing, err := s.opts.Store.ListTrailingStops(ctx, user)
		if err != nil {
			writeErr(w, err)
			return
		}
		for _, t := range existing {
			if t.Symbol == symbol && t.Status == model.TrailingActive {
				if err := s.opts.Store.SetTrailingStatus(ctx, t.ID, model.TrailingCancelled); err != nil {
					writeErr(w, err)
					return
				}
			}
		}

		id, err := s.opts.Store.CreateTrailingStop(ctx, model.TrailingStop{
			UserID:          user,
			Symbol:          symbol,
			Quantity:        req.Quantity,
			EntryPrice:      price,
			HighestPrice:    price,
			CallbackRate:    req.CallbackRate,
			ActivationPrice: req.ActivationPrice,
			Status:          model.TrailingActive,
			CreatedAt:       s.opts.Now(),
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "id": id, "entryPrice": price})

	case http.MethodDelete:
		id, err := idParam(r)
		if err != nil {
			writeErr(w, err)
			return
		}
		stop, err := s.opts.Store.GetTrailingStop(ctx, id)
		if err == nil && stop.UserID != user {
			err = fmt.Errorf("trailing stop %d: %w", id, model.ErrNotFound)
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		if stop.Status != model.TrailingActive {
			writeError(w, http.StatusConflict, fmt.Sprintf("stop is %s", stop.Status))
			return
		}
		if err := s.opts.Store.SetTrailingStatus(ctx, id, model.TrailingCancelled); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

// ── History ──

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	orders, err := s.opts.Store.ListOrders(r.Context(), userID(r), limitParam(r, 100, 1000))
	if err != nil {
		writeErr(w, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	trades, err := s.opts.Store.ListTrades(r.Context(), userID(r), limitParam(r, 100, 1000))
	if err != nil {
		writeErr(w, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	p, err := s.opts.Store.PerformanceSummary(r.Context(), userID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
