package api

import (
	"net/http"
	"strconv"
	"time"

	"crypto-signals/internal/indicator"
	"crypto-signals/internal/model"
	"crypto-signals/internal/strategy"
)

func (s *Server) candles(r *http.Request) (string, []model.Candle, error) {
	symbol, err := symbolParam(r)
	if err != nil {
		return "", nil, err
	}
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = s.opts.KlineInterval
	}
	candles, err := s.opts.Market.Klines(r.Context(), symbol, interval, s.opts.KlineLimit)
	if err != nil {
		return symbol, nil, &model.MarketDataError{Symbol: symbol, Err: err}
	}
	return symbol, candles, nil
}

func (s *Server) handleF4(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	symbol, candles, err := s.candles(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	res, err := indicator.CalculateF4(candles, indicator.DefaultF4Params())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"f4":     res,
	})
}

func (s *Server) handleF3(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	symbol, candles, err := s.candles(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	res, err := indicator.CalculateF3(candles, indicator.DefaultF3Params())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"f3":     res,
	})
}

// handleF4History lists the F4 readings persisted by the alarm engine.
func (s *Server) handleF4History(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	symbol, err := symbolParam(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	recs, err := s.opts.Store.F4Signals(r.Context(), symbol, limitParam(r, 50, 500))
	if err != nil {
		writeErr(w, err)
		return
	}
	if recs == nil {
		recs = []model.F4SignalRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, strategy.Available())
}

// handleAutopilot lists the autopilot phases and, given ?start=RFC3339,
// the phase active now.
func (s *Server) handleAutopilot(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	resp := map[string]interface{}{
		"phases":    strategy.Phases,
		"cycleDays": int(strategy.CycleLength().Hours() / 24),
	}
	if raw := r.URL.Query().Get("start"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeErr(w, badRequest("start: %v", err))
			return
		}
		st, ok := strategy.PhaseAt(start, s.opts.Now())
		resp["active"] = ok
		if ok {
			resp["current"] = st
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAnalyze runs one strategy over the recent hourly closes of a
// symbol. Query keys other than type and symbol are strategy parameters.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	symbol, err := symbolParam(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	params := strategy.Params{}
	for k, vs := range q {
		if k == "type" || k == "symbol" || len(vs) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(vs[0], 64)
		if err != nil {
			writeErr(w, badRequest("parameter %s: %v", k, err))
			return
		}
		params[k] = v
	}
	strat, err := strategy.New(strategy.Type(q.Get("type")), params)
	if err != nil {
		writeErr(w, badRequest("%v", err))
		return
	}
	res, err := strategy.Analyze(r.Context(), s.opts.Market, symbol, strat, s.opts.Now())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	symbol, candles, err := s.candles(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	pred, err := indicator.Predict(model.Closes(candles), s.opts.Now())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":     symbol,
		"prediction": pred,
	})
}

type sentimentRequest struct {
	Headlines []string `json:"headlines" validate:"max=500"`
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req sentimentRequest
	if err := s.decode(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, indicator.AnalyzeSentiment(req.Headlines))
}
