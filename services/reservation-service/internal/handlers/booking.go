package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tablebook/libs/httpx"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/booking"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/policy"
)

type AvailabilityReader interface {
	ForDate(ctx context.Context, rawDate string, partySize int) (model.DayAvailability, error)
}

type BookingCommitter interface {
	Commit(ctx context.Context, req booking.Request) (booking.Result, error)
}

type BookingHandler struct {
	availability AvailabilityReader
	committer    BookingCommitter
	logger       *slog.Logger
}

func NewBookingHandler(availability AvailabilityReader, committer BookingCommitter, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{availability: availability, committer: committer, logger: logger}
}

type slotItem struct {
	StartAt           string `json:"start_at"`
	AvailableCapacity int    `json:"available_capacity"`
}

type serviceItem struct {
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	Slots       []slotItem `json:"slots"`
}

type availabilityResponse struct {
	Date     string        `json:"date"`
	Services []serviceItem `json:"services"`
	Message  string        `json:"message,omitempty"`
}

type createBookingRequest struct {
	StartAt     string `json:"start_at"`
	ServiceName string `json:"service_name"`
	PartySize   int    `json:"party_size"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Notes       string `json:"notes"`
}

type createBookingResponse struct {
	OK               bool   `json:"ok"`
	ConfirmationCode string `json:"confirmation_code,omitempty"`
	BookingID        string `json:"booking_id,omitempty"`
	Reason           string `json:"reason,omitempty"`
	Code             string `json:"code,omitempty"`
	Field            string `json:"field,omitempty"`
}

func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	q := r.URL.Query()
	partySize, err := strconv.Atoi(strings.TrimSpace(q.Get("party_size")))
	if err != nil {
		v := policy.ErrInvalidPartySize
		httpx.WriteError(w, http.StatusBadRequest, v.Code, v.Message)
		return
	}

	day, err := h.availability.ForDate(r.Context(), q.Get("date"), partySize)
	if err != nil {
		var v *policy.Violation
		if errors.As(err, &v) {
			httpx.WriteError(w, http.StatusBadRequest, v.Code, v.Message)
			return
		}
		h.logger.Error("availability lookup failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toAvailabilityResponse(day))
}

func toAvailabilityResponse(day model.DayAvailability) availabilityResponse {
	resp := availabilityResponse{Date: day.Date, Services: make([]serviceItem, 0, len(day.Services)), Message: day.Message}
	for _, svc := range day.Services {
		item := serviceItem{Name: svc.Name, DisplayName: svc.DisplayName, Slots: make([]slotItem, 0, len(svc.Slots))}
		for _, s := range svc.Slots {
			item.Slots = append(item.Slots, slotItem{
				StartAt:           s.StartAt.Format(time.RFC3339),
				AvailableCapacity: s.AvailableCapacity,
			})
		}
		resp.Services = append(resp.Services, item)
	}
	return resp
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, createBookingResponse{Reason: "invalid json body", Code: "invalid_body"})
		return
	}

	res, err := h.committer.Commit(r.Context(), booking.Request{
		ServiceName: req.ServiceName,
		StartAt:     req.StartAt,
		PartySize:   req.PartySize,
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		Notes:       req.Notes,
	})
	if err != nil {
		h.logger.Error("booking commit failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteJSON(w, http.StatusInternalServerError, createBookingResponse{Reason: "internal error", Code: "internal_error"})
		return
	}
	if rej := res.Rejection; rej != nil {
		status := http.StatusUnprocessableEntity
		if rej.Business() {
			status = http.StatusConflict
		}
		httpx.WriteJSON(w, status, createBookingResponse{Reason: rej.Message, Code: rej.Code, Field: rej.Field})
		return
	}

	h.logger.Info("booking confirmed",
		"booking_id", res.Booking.ID,
		"service", res.Booking.ServiceName,
		"start_at", res.Booking.StartAt.Format(time.RFC3339),
		"party_size", res.Booking.PartySize,
	)
	httpx.WriteJSON(w, http.StatusCreated, createBookingResponse{
		OK:               true,
		ConfirmationCode: res.Booking.ConfirmationCode,
		BookingID:        res.Booking.ID,
	})
}
