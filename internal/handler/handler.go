package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/honeynil/RentalSettlementService/internal/infrastructure/auth"
	"github.com/honeynil/RentalSettlementService/internal/infrastructure/redis"
	"github.com/honeynil/RentalSettlementService/internal/models"
	service "github.com/honeynil/RentalSettlementService/internal/services"
	pkgerrors "github.com/honeynil/RentalSettlementService/pkg/errors"
	"github.com/shopspring/decimal"
)

type Handler struct {
	wallet     service.WalletService
	referrals  service.ReferralService
	membership service.MembershipService
	bookings   service.BookingService
	requests   *redis.Deduplicator
	now        func() time.Time
}

// NewHandler wires the HTTP surface. requests may be nil, in which case
// membership purchases are not deduplicated by request_id.
func NewHandler(
	wallet service.WalletService,
	referrals service.ReferralService,
	membership service.MembershipService,
	bookings service.BookingService,
	requests *redis.Deduplicator,
) *Handler {
	return &Handler{
		wallet:     wallet,
		referrals:  referrals,
		membership: membership,
		bookings:   bookings,
		requests:   requests,
		now:        time.Now,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeServiceError maps error kinds to status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrUserNotFound),
		errors.Is(err, pkgerrors.ErrBookingNotFound):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, pkgerrors.ErrReferralAlreadyUsed),
		errors.Is(err, pkgerrors.ErrReferralCodeTaken),
		errors.Is(err, pkgerrors.ErrAlreadyMember),
		errors.Is(err, pkgerrors.ErrAlreadyCancelled),
		errors.Is(err, pkgerrors.ErrBookingNotCancellable),
		errors.Is(err, pkgerrors.ErrInvalidBookingTransition),
		errors.Is(err, pkgerrors.ErrRequestAlreadyProcessed):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, pkgerrors.ErrInsufficientBalance),
		errors.Is(err, pkgerrors.ErrInvalidAmount),
		errors.Is(err, pkgerrors.ErrInvalidInput),
		errors.Is(err, pkgerrors.ErrInvalidPaymentMethod),
		errors.Is(err, pkgerrors.ErrInvalidReferralCode),
		errors.Is(err, pkgerrors.ErrSelfReferral):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		slog.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, pkgerrors.ErrInternal)
	}
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
	}
	return userID, ok
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	return h.decodeWith(w, json.NewDecoder(r.Body), v)
}

// decodeStrict rejects fields the route does not take.
func (h *Handler) decodeStrict(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return h.decodeWith(w, dec, v)
}

func (h *Handler) decodeWith(w http.ResponseWriter, dec *json.Decoder, v interface{}) bool {
	if err := dec.Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidInput, err))
		return false
	}
	return true
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.Health).Methods("GET")
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/wallet/balance", h.GetBalance).Methods("GET")
	r.HandleFunc("/wallet/transactions", h.GetTransactionHistory).Methods("GET")
	r.HandleFunc("/wallet/verify", h.VerifyLedger).Methods("GET")

	r.HandleFunc("/referrals/code", h.GenerateReferralCode).Methods("POST")
	r.HandleFunc("/referrals/apply", h.ApplyReferral).Methods("POST")
	r.HandleFunc("/referrals", h.ListReferrals).Methods("GET")

	r.HandleFunc("/membership", h.GetMembership).Methods("GET")
	r.HandleFunc("/membership/purchase", h.PurchaseMembership).Methods("POST")
	r.HandleFunc("/membership/benefits", h.CalculateBenefits).Methods("POST")

	r.HandleFunc("/bookings/quote", h.QuoteBooking).Methods("POST")
	r.HandleFunc("/bookings", h.CreateBooking).Methods("POST")
	r.HandleFunc("/bookings/{id}", h.GetBooking).Methods("GET")
	r.HandleFunc("/bookings/{id}/cancel", h.CancelBooking).Methods("POST")
	r.HandleFunc("/bookings/{id}/pickup", h.StartRental).Methods("POST")
	r.HandleFunc("/bookings/{id}/return", h.CompleteRental).Methods("POST")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	balance, err := h.wallet.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	active, err := h.wallet.GetActiveBalance(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"balance":        balance,
		"active_balance": active,
	})
}

func (h *Handler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: limit must be a non-negative integer", pkgerrors.ErrInvalidInput))
			return
		}
		limit = parsed
	}

	transactions, err := h.wallet.GetTransactionHistory(r.Context(), userID, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transactions)
}

func (h *Handler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	report, err := h.wallet.VerifyLedger(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) GenerateReferralCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	code, err := h.referrals.GenerateReferralCode(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"referral_code": code})
}

func (h *Handler) ApplyReferral(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.Code == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: code is required", pkgerrors.ErrInvalidInput))
		return
	}

	referral, err := h.referrals.ProcessReferral(r.Context(), req.Code, userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, referral)
}

func (h *Handler) ListReferrals(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	referrals, err := h.referrals.ListReferrals(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, referrals)
}

func (h *Handler) GetMembership(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	active, err := h.membership.HasActiveMembership(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

// PurchaseMembership only accepts wallet payments. Online purchases arrive as
// payment events from the gateway.
func (h *Handler) PurchaseMembership(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req struct {
		PaymentMethod models.PaymentMethod `json:"payment_method"`
		RequestID     string               `json:"request_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: request_id is required", pkgerrors.ErrInvalidInput))
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentMethodWallet
	}
	if req.PaymentMethod != models.PaymentMethodWallet {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: only wallet purchases are accepted here", pkgerrors.ErrInvalidPaymentMethod))
		return
	}

	if h.requests != nil {
		claimed, err := h.requests.Claim(r.Context(), req.RequestID)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		if !claimed {
			slog.Warn("request already processed", "request_id", req.RequestID, "user_id", userID)
			h.writeServiceError(w, pkgerrors.ErrRequestAlreadyProcessed)
			return
		}
	}

	user, err := h.membership.PurchaseMembership(r.Context(), userID, req.PaymentMethod)
	if err != nil {
		if h.requests != nil {
			h.requests.Release(r.Context(), req.RequestID)
		}
		h.writeServiceError(w, err)
		return
	}
	if h.requests != nil {
		h.requests.Complete(r.Context(), req.RequestID)
	}

	h.writeJSON(w, http.StatusOK, user)
}

type windowRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (h *Handler) CalculateBenefits(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req windowRequest
	if !h.decode(w, r, &req) {
		return
	}

	benefits, err := h.membership.CalculateMembershipBenefits(r.Context(), userID, req.Start, req.End)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, benefits)
}

type quoteRequest struct {
	windowRequest
	HourlyRate  decimal.Decimal `json:"hourly_rate"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
}

func (q quoteRequest) toService(userID string) service.QuoteRequest {
	return service.QuoteRequest{
		UserID:      userID,
		Start:       q.Start,
		End:         q.End,
		HourlyRate:  q.HourlyRate,
		DeliveryFee: q.DeliveryFee,
	}
}

func (h *Handler) QuoteBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req quoteRequest
	if !h.decode(w, r, &req) {
		return
	}

	quote, err := h.bookings.QuoteBooking(r.Context(), req.toService(userID))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req struct {
		quoteRequest
		VehicleID string `json:"vehicle_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	booking, err := h.bookings.CreateBooking(r.Context(), service.CreateBookingRequest{
		QuoteRequest: req.toService(userID),
		VehicleID:    req.VehicleID,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, booking)
}

// ownedBooking loads the booking in the path and hides bookings of other
// users behind a 404.
func (h *Handler) ownedBooking(w http.ResponseWriter, r *http.Request) (*models.Booking, bool) {
	userID, ok := h.userID(w, r)
	if !ok {
		return nil, false
	}

	booking, err := h.bookings.GetBooking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return nil, false
	}
	if booking.UserID != userID {
		h.writeServiceError(w, pkgerrors.ErrBookingNotFound)
		return nil, false
	}
	return booking, true
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, ok := h.ownedBooking(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	booking, ok := h.ownedBooking(w, r)
	if !ok {
		return
	}

	result, err := h.bookings.CancelBooking(r.Context(), booking.ID, h.now())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) StartRental(w http.ResponseWriter, r *http.Request) {
	booking, ok := h.ownedBooking(w, r)
	if !ok {
		return
	}

	booking, err := h.bookings.StartRental(r.Context(), booking.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) CompleteRental(w http.ResponseWriter, r *http.Request) {
	booking, ok := h.ownedBooking(w, r)
	if !ok {
		return
	}

	var req struct {
		ActualReturn *time.Time `json:"actual_return"`
	}
	if !h.decodeStrict(w, r, &req) {
		return
	}
	actualReturn := h.now()
	if req.ActualReturn != nil {
		actualReturn = *req.ActualReturn
	}

	completed, charge, err := h.bookings.CompleteRental(r.Context(), booking.ID, actualReturn)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"booking":     completed,
		"late_charge": charge,
	})
}
