package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/plutusfin/ledger/domain/credit"
	"github.com/plutusfin/ledger/domain/period"
	"github.com/plutusfin/ledger/domain/token"
	"github.com/plutusfin/ledger/ports"
)

// -----------------------------------------------------------------------------
// Quota
// -----------------------------------------------------------------------------

type quotaCheckResponse struct {
	Allowed bool   `json:"allowed"`
	Used    int64  `json:"used"`
	Limit   string `json:"limit"`
}

// CheckQuota answers whether the owner may consume one unit of the
// resource. Read-only.
func (h *Handler) CheckQuota(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	resource := chi.URLParam(r, "resource")

	res, err := h.gate.Check(r.Context(), owner, resource)
	if err != nil {
		if !period.Known(resource) {
			respondError(w, http.StatusBadRequest, "unknown resource")
			return
		}
		h.logger.Error().Err(err).Str("owner", owner).Msg("quota check failed")
		respondError(w, http.StatusInternalServerError, "quota check failed")
		return
	}

	respondJSON(w, http.StatusOK, quotaCheckResponse{
		Allowed: res.Allowed,
		Used:    res.Used,
		Limit:   res.Limit.String(),
	})
}

type usageResponse struct {
	Owner       string                   `json:"owner"`
	PeriodStart time.Time                `json:"period_start"`
	PeriodEnd   time.Time                `json:"period_end"`
	Resources   map[string]resourceUsage `json:"resources"`
}

type resourceUsage struct {
	Used  int64  `json:"used"`
	Limit string `json:"limit"`
}

// GetUsage returns the owner's full current-period report.
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	up, limits, err := h.gate.Usage(r.Context(), owner)
	if err != nil {
		h.logger.Error().Err(err).Str("owner", owner).Msg("usage report failed")
		respondError(w, http.StatusInternalServerError, "usage report failed")
		return
	}

	resources := make(map[string]resourceUsage, len(period.Resources))
	for _, res := range period.Resources {
		resources[res] = resourceUsage{
			Used:  up.Used(res),
			Limit: limits[res].String(),
		}
	}

	respondJSON(w, http.StatusOK, usageResponse{
		Owner:       owner,
		PeriodStart: up.PeriodStart,
		PeriodEnd:   up.PeriodEnd,
		Resources:   resources,
	})
}

type chargeRequest struct {
	Amount int64 `json:"amount"`
}

// Charge records consumption after the gated operation succeeded.
func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	resource := chi.URLParam(r, "resource")

	var req chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount == 0 {
		req.Amount = 1
	}

	if err := h.gate.ChargeAfterSuccess(r.Context(), owner, resource, req.Amount); err != nil {
		if !period.Known(resource) || req.Amount < 0 {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("owner", owner).Msg("charge failed")
		respondError(w, http.StatusInternalServerError, "charge failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "charged"})
}

// -----------------------------------------------------------------------------
// Credits
// -----------------------------------------------------------------------------

type creditsResponse struct {
	Owner     string `json:"owner"`
	Available string `json:"available"`
}

// GetCredits returns the owner's spendable bonus-credit balance.
func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	avail, err := h.credits.Available(r.Context(), owner)
	if err != nil {
		h.logger.Error().Err(err).Str("owner", owner).Msg("balance read failed")
		respondError(w, http.StatusInternalServerError, "balance read failed")
		return
	}

	respondJSON(w, http.StatusOK, creditsResponse{Owner: owner, Available: avail.String()})
}

type consumeRequest struct {
	Amount string `json:"amount"`
}

// ConsumeCredits debits the owner's balance oldest-first.
func (h *Handler) ConsumeCredits(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	var req consumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "amount is not a decimal")
		return
	}

	err = h.credits.Consume(r.Context(), owner, amount)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"status": "consumed"})
	case errors.Is(err, credit.ErrNonPositiveAmount):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, credit.ErrInsufficientCredits):
		respondError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, ports.ErrConflict):
		respondError(w, http.StatusConflict, "concurrent update, retry")
	default:
		h.logger.Error().Err(err).Str("owner", owner).Msg("credit consume failed")
		respondError(w, http.StatusInternalServerError, "credit consume failed")
	}
}

type creditRecord struct {
	ID         string     `json:"id"`
	Amount     string     `json:"amount"`
	Source     string     `json:"source"`
	ReferralID string     `json:"referral_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Used       bool       `json:"used"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
}

// GetCreditHistory returns the owner's credit records, oldest first.
func (h *Handler) GetCreditHistory(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	history, err := h.credits.History(r.Context(), owner)
	if err != nil {
		h.logger.Error().Err(err).Str("owner", owner).Msg("history read failed")
		respondError(w, http.StatusInternalServerError, "history read failed")
		return
	}

	records := make([]creditRecord, 0, len(history))
	for _, c := range history {
		records = append(records, creditRecord{
			ID:         c.ID,
			Amount:     c.Amount.String(),
			Source:     c.Source,
			ReferralID: c.ReferralID,
			CreatedAt:  c.CreatedAt,
			ExpiresAt:  c.ExpiresAt,
			Used:       c.Used,
			UsedAt:     c.UsedAt,
		})
	}
	respondJSON(w, http.StatusOK, records)
}

// -----------------------------------------------------------------------------
// Tokens
// -----------------------------------------------------------------------------

type issueTokenRequest struct {
	Kind       string `json:"kind"`
	Payload    string `json:"payload"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

type issueTokenResponse struct {
	Token     string    `json:"token"`
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken creates a token and returns the plaintext value once.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TTLSeconds <= 0 {
		respondError(w, http.StatusBadRequest, "ttl_seconds must be positive")
		return
	}

	plaintext, t, err := h.tokens.Issue(r.Context(), token.Kind(req.Kind), req.Payload, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, issueTokenResponse{
		Token:     plaintext,
		ID:        t.ID,
		ExpiresAt: t.ExpiresAt,
	})
}

type claimTokenRequest struct {
	Token    string `json:"token"`
	Claimant string `json:"claimant"`
}

// ClaimToken consumes an invite token. Invalid, expired, and
// already-claimed tokens all answer 404; the caller learns nothing
// about why.
func (h *Handler) ClaimToken(w http.ResponseWriter, r *http.Request) {
	var req claimTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" || req.Claimant == "" {
		respondError(w, http.StatusBadRequest, "token and claimant are required")
		return
	}

	payload, err := h.tokens.Claim(r.Context(), req.Token, req.Claimant)
	if err != nil {
		if errors.Is(err, token.ErrTokenInvalid) {
			respondError(w, http.StatusNotFound, "token invalid")
			return
		}
		h.logger.Error().Err(err).Msg("token claim failed")
		respondError(w, http.StatusInternalServerError, "token claim failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"payload": payload})
}

// CheckShare resolves a share token without consuming it.
func (h *Handler) CheckShare(w http.ResponseWriter, r *http.Request) {
	plaintext := chi.URLParam(r, "token")

	payload, err := h.tokens.CheckShare(r.Context(), plaintext)
	if err != nil {
		if errors.Is(err, token.ErrTokenInvalid) {
			respondError(w, http.StatusNotFound, "token invalid")
			return
		}
		h.logger.Error().Err(err).Msg("share check failed")
		respondError(w, http.StatusInternalServerError, "share check failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"payload": payload})
}
