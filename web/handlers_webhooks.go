package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// paymentEvent is the envelope the checkout system posts after it has
// verified the provider signature. The ledger trusts the envelope and
// records its effects; it never talks to a payment provider itself.
type paymentEvent struct {
	Type string `json:"type"`

	// addon_purchased
	Owner        string     `json:"owner,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	Quantity     int64      `json:"quantity,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`

	// credit_purchased
	Amount string `json:"amount,omitempty"`

	// referral_completed
	ReferrerID string `json:"referrer_id,omitempty"`
	ReferredID string `json:"referred_id,omitempty"`
	ReferralID string `json:"referral_id,omitempty"`
}

// PaymentWebhook dispatches a verified payment event to its handler.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var ev paymentEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid event body")
		return
	}

	ctx := r.Context()
	var err error

	switch ev.Type {
	case "addon_purchased":
		if ev.ExpiresAt == nil {
			respondError(w, http.StatusBadRequest, "expires_at is required")
			return
		}
		err = h.webhooks.HandleAddOnPurchased(ctx, ev.Owner, ev.ResourceType, ev.Quantity, *ev.ExpiresAt)

	case "credit_purchased":
		amount, perr := decimal.NewFromString(ev.Amount)
		if perr != nil {
			respondError(w, http.StatusBadRequest, "amount is not a decimal")
			return
		}
		err = h.webhooks.HandleCreditPurchase(ctx, ev.Owner, amount, ev.ExpiresAt)

	case "referral_completed":
		amount, perr := decimal.NewFromString(ev.Amount)
		if perr != nil {
			respondError(w, http.StatusBadRequest, "amount is not a decimal")
			return
		}
		err = h.webhooks.HandleReferralCompleted(ctx, ev.ReferrerID, ev.ReferredID, ev.ReferralID, amount)

	default:
		respondError(w, http.StatusBadRequest, "unknown event type")
		return
	}

	if err != nil {
		h.logger.Error().Err(err).Str("type", ev.Type).Msg("payment event failed")
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
