package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/pquerna/otp/totp"
)

// handleCron runs one engine cycle: POST /api/cron/{alarms|dca|trailing}.
// When a cron secret is configured the caller must send it as a bearer
// token.
func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost, http.MethodGet) {
		return
	}
	if !s.cronAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/cron/"), "/")
	runner, ok := s.opts.Engines[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown engine "+name)
		return
	}

	rep, err := runner.RunCycle(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if s.opts.Health != nil {
		s.opts.Health.SetCycleDone(name, s.opts.Now())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"report":  rep,
	})
}

func (s *Server) cronAuthorized(r *http.Request) bool {
	if s.opts.CronSecret == "" {
		return true
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.CronSecret)) == 1
}

// otpValid checks the X-OTP header against the panic TOTP secret.
func (s *Server) otpValid(r *http.Request) bool {
	if s.opts.PanicTOTPSecret == "" {
		return true
	}
	code := strings.TrimSpace(r.Header.Get("X-OTP"))
	return code != "" && totp.Validate(code, s.opts.PanicTOTPSecret)
}

func (s *Server) handlePanicSell(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if s.opts.Panic == nil {
		writeError(w, http.StatusServiceUnavailable, "panic service not configured")
		return
	}
	if !s.otpValid(r) {
		writeError(w, http.StatusUnauthorized, "invalid or missing one-time code")
		return
	}
	res, err := s.opts.Panic.SellAll(r.Context(), userID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   res.Message,
			"message": "Your portfolio only contains USDT/USDC",
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBuyBack(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if s.opts.Panic == nil {
		writeError(w, http.StatusServiceUnavailable, "panic service not configured")
		return
	}
	if !s.otpValid(r) {
		writeError(w, http.StatusUnauthorized, "invalid or missing one-time code")
		return
	}
	res, err := s.opts.Panic.BuyBack(r.Context(), userID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
