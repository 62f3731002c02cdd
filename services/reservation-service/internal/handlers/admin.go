package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/tablebook/libs/httpx"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/clock"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/storage"
)

const (
	DefaultSlotInterval = 30
	DefaultMealDuration = 90
)

type ScheduleAdmin interface {
	ListWindows(ctx context.Context, includeInactive bool) ([]model.ServiceWindow, error)
	UpsertWindow(ctx context.Context, w model.ServiceWindow) (model.ServiceWindow, error)
	DeactivateWindow(ctx context.Context, id string) error
	ListClosures(ctx context.Context, from, to time.Time) ([]model.Closure, error)
	AddClosure(ctx context.Context, date time.Time, reason string) (model.Closure, error)
	RemoveClosure(ctx context.Context, date time.Time) error
}

type BookingAdmin interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error)
	UpdateStatus(ctx context.Context, id string, next model.BookingStatus) (model.Booking, error)
}

// AdminHandler serves the back-office routes. Authentication is applied by the caller.
type AdminHandler struct {
	schedule ScheduleAdmin
	bookings BookingAdmin
	clock    clock.Clock
	loc      *time.Location
	logger   *slog.Logger
}

func NewAdminHandler(schedule ScheduleAdmin, bookings BookingAdmin, clk clock.Clock, loc *time.Location, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{schedule: schedule, bookings: bookings, clock: clk, loc: loc, logger: logger}
}

func (h *AdminHandler) today() time.Time {
	return model.At(h.clock.Now().In(h.loc), 0)
}

type windowItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DisplayName     string `json:"display_name"`
	DayOfWeek       int    `json:"day_of_week"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	LastBookingTime string `json:"last_booking_time"`
	Capacity        int    `json:"capacity"`
	SlotInterval    int    `json:"slot_interval"`
	MealDuration    int    `json:"meal_duration"`
	IsActive        bool   `json:"is_active"`
}

type upsertWindowRequest struct {
	Name            string `json:"name"`
	DisplayName     string `json:"display_name"`
	DayOfWeek       *int   `json:"day_of_week"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	LastBookingTime string `json:"last_booking_time"`
	Capacity        int    `json:"capacity"`
	SlotInterval    int    `json:"slot_interval"`
	MealDuration    int    `json:"meal_duration"`
}

type idRequest struct {
	ID string `json:"id"`
}

type closureItem struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

type bookingItem struct {
	ID               string `json:"id"`
	ConfirmationCode string `json:"confirmation_code"`
	ServiceName      string `json:"service_name"`
	StartAt          string `json:"start_at"`
	EndAt            string `json:"end_at"`
	PartySize        int    `json:"party_size"`
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Email            string `json:"email,omitempty"`
	Notes            string `json:"notes,omitempty"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at"`
}

type statusRequest struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

func toWindowItem(w model.ServiceWindow) windowItem {
	return windowItem{
		ID:              w.ID,
		Name:            w.Name,
		DisplayName:     w.DisplayName,
		DayOfWeek:       int(w.DayOfWeek),
		StartTime:       model.FormatClock(w.StartMinute),
		EndTime:         model.FormatClock(w.EndMinute),
		LastBookingTime: model.FormatClock(w.LastBookingMinute),
		Capacity:        w.Capacity,
		SlotInterval:    w.SlotInterval,
		MealDuration:    w.MealDuration,
		IsActive:        w.IsActive,
	}
}

func (h *AdminHandler) toBookingItem(b model.Booking) bookingItem {
	return bookingItem{
		ID:               b.ID,
		ConfirmationCode: b.ConfirmationCode,
		ServiceName:      b.ServiceName,
		StartAt:          b.StartAt.In(h.loc).Format(time.RFC3339),
		EndAt:            b.EndAt.In(h.loc).Format(time.RFC3339),
		PartySize:        b.PartySize,
		Name:             b.Name,
		Phone:            b.Phone,
		Email:            b.Email,
		Notes:            b.Notes,
		Status:           string(b.Status),
		CreatedAt:        b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Windows lists windows on GET (?all=true includes inactive ones) and upserts on POST.
func (h *AdminHandler) Windows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		windows, err := h.schedule.ListWindows(r.Context(), r.URL.Query().Get("all") == "true")
		if err != nil {
			h.fault(w, r, "list windows failed", err)
			return
		}
		items := make([]windowItem, 0, len(windows))
		for _, win := range windows {
			items = append(items, toWindowItem(win))
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"windows": items})
	case http.MethodPost:
		var req upsertWindowRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
			return
		}
		win, err := req.window()
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_window", err.Error())
			return
		}
		saved, err := h.schedule.UpsertWindow(r.Context(), win)
		if err != nil {
			if errors.Is(err, model.ErrInvalidWindow) {
				httpx.WriteError(w, http.StatusBadRequest, "invalid_window", err.Error())
				return
			}
			h.fault(w, r, "upsert window failed", err)
			return
		}
		h.logger.Info("service window saved", "window_id", saved.ID, "name", saved.Name, "day_of_week", int(saved.DayOfWeek))
		httpx.WriteJSON(w, http.StatusOK, toWindowItem(saved))
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (req upsertWindowRequest) window() (model.ServiceWindow, error) {
	if req.DayOfWeek == nil {
		return model.ServiceWindow{}, errors.New("day_of_week required")
	}
	start, err := model.ParseClock(req.StartTime)
	if err != nil {
		return model.ServiceWindow{}, err
	}
	end, err := model.ParseClock(req.EndTime)
	if err != nil {
		return model.ServiceWindow{}, err
	}
	win := model.ServiceWindow{
		Name:         strings.TrimSpace(req.Name),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		DayOfWeek:    time.Weekday(*req.DayOfWeek),
		StartMinute:  start,
		EndMinute:    end,
		Capacity:     req.Capacity,
		SlotInterval: req.SlotInterval,
		MealDuration: req.MealDuration,
		IsActive:     true,
	}
	if win.DisplayName == "" {
		win.DisplayName = win.Name
	}
	if win.SlotInterval == 0 {
		win.SlotInterval = DefaultSlotInterval
	}
	if win.MealDuration == 0 {
		win.MealDuration = DefaultMealDuration
	}
	if strings.TrimSpace(req.LastBookingTime) == "" {
		win.LastBookingMinute = model.DefaultLastBooking(start, end, win.SlotInterval)
	} else if win.LastBookingMinute, err = model.ParseClock(req.LastBookingTime); err != nil {
		return model.ServiceWindow{}, err
	}
	return win, win.Validate()
}

func (h *AdminHandler) DeactivateWindow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req idRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || strings.TrimSpace(req.ID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "id required")
		return
	}
	id, ok := parseID(w, req.ID)
	if !ok {
		return
	}
	if err := h.schedule.DeactivateWindow(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "active window not found")
			return
		}
		h.fault(w, r, "deactivate window failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "inactive"})
}

// Closures lists closures between from and to on GET (default: the next 90 days) and adds one on POST.
func (h *AdminHandler) Closures(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		from, ok := h.dateParam(w, r, "from", h.today())
		if !ok {
			return
		}
		to, ok := h.dateParam(w, r, "to", from.AddDate(0, 0, 90))
		if !ok {
			return
		}
		closures, err := h.schedule.ListClosures(r.Context(), from, to)
		if err != nil {
			h.fault(w, r, "list closures failed", err)
			return
		}
		items := make([]closureItem, 0, len(closures))
		for _, c := range closures {
			items = append(items, closureItem{Date: c.Date.Format(model.DateLayout), Reason: c.Reason})
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"closures": items})
	case http.MethodPost:
		var req closureItem
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
			return
		}
		date, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(req.Date), h.loc)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		c, err := h.schedule.AddClosure(r.Context(), date, strings.TrimSpace(req.Reason))
		if err != nil {
			h.fault(w, r, "add closure failed", err)
			return
		}
		h.logger.Info("closure saved", "date", req.Date)
		httpx.WriteJSON(w, http.StatusOK, closureItem{Date: c.Date.Format(model.DateLayout), Reason: c.Reason})
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (h *AdminHandler) DeleteClosure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req closureItem
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
		return
	}
	date, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(req.Date), h.loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	if err := h.schedule.RemoveClosure(r.Context(), date); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "closure not found")
			return
		}
		h.fault(w, r, "remove closure failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"date": req.Date, "status": "removed"})
}

// Bookings lists every booking starting on ?date= (restaurant-local), all statuses.
func (h *AdminHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	day, ok := h.dateParam(w, r, "date", h.today())
	if !ok {
		return
	}
	list, err := h.bookings.ListBetween(r.Context(), day, day.AddDate(0, 0, 1))
	if err != nil {
		h.fault(w, r, "list bookings failed", err)
		return
	}
	items := make([]bookingItem, 0, len(list))
	for _, b := range list {
		items = append(items, h.toBookingItem(b))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"date": day.Format(model.DateLayout), "bookings": items})
}

func (h *AdminHandler) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
		return
	}
	next := model.BookingStatus(strings.TrimSpace(req.Status))
	if strings.TrimSpace(req.BookingID) == "" || !next.Valid() {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "booking_id and a valid status are required")
		return
	}
	id, ok := parseID(w, req.BookingID)
	if !ok {
		return
	}
	b, err := h.bookings.UpdateStatus(r.Context(), id, next)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "booking not found")
		return
	case errors.Is(err, model.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, "invalid_transition", err.Error())
		return
	case err != nil:
		h.fault(w, r, "update booking status failed", err)
		return
	}
	h.logger.Info("booking status changed", "booking_id", b.ID, "status", string(b.Status))
	httpx.WriteJSON(w, http.StatusOK, h.toBookingItem(b))
}

func (h *AdminHandler) dateParam(w http.ResponseWriter, r *http.Request, key string, fallback time.Time) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, true
	}
	t, err := time.ParseInLocation(model.DateLayout, raw, h.loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_date", key+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

// parseID rejects ids that are not UUIDs before they reach a uuid column.
func parseID(w http.ResponseWriter, raw string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_id", "id must be a UUID")
		return "", false
	}
	return id.String(), true
}

func (h *AdminHandler) fault(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
	httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
