// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"aerobook/internal/model"
	"aerobook/internal/service"

	"github.com/go-chi/chi/v5"
)

// StudioHandler holds all HTTP handlers for the studio booking API.
type StudioHandler struct {
	bookings *service.BookingService
	classes  *service.ClassService
	packs    *service.PackService
}

// NewStudioHandler constructs a StudioHandler.
func NewStudioHandler(bookings *service.BookingService, classes *service.ClassService, packs *service.PackService) *StudioHandler {
	return &StudioHandler{bookings: bookings, classes: classes, packs: packs}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeDomainError maps domain errors to HTTP status codes. Capacity and
// conflict errors are expected and carry an actionable message, as do
// validation errors. Anything unrecognised is a storage or internal
// failure: it is logged server-side and answered with a generic retry
// message so internal details never reach the client.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrClassFull),
		errors.Is(err, model.ErrHasBookings),
		errors.Is(err, model.ErrClassExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "an internal error occurred, please try again")
	}
}

// ─── Booking handlers ─────────────────────────────────────────────────────────

// CreateBooking handles POST /bookings
// Books a pack of classes atomically; fails whole when any class is full.
func (h *StudioHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req model.CreateBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	booking, err := h.bookings.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// UpdateBooking handles PUT /bookings/{id}
// Replaces a booking's student, pack, price, status and class selection.
func (h *StudioHandler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var upd model.BookingUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	booking, err := h.bookings.Update(r.Context(), id, upd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// SetBookingPaymentStatus handles PATCH /bookings/{id}/status
func (h *StudioHandler) SetBookingPaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		PaymentStatus model.PaymentStatus `json:"payment_status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	booking, err := h.bookings.SetPaymentStatus(r.Context(), id, req.PaymentStatus)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// DeleteBooking handles DELETE /bookings/{id}
// Removes the booking and releases every seat it held.
func (h *StudioHandler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.bookings.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBookings handles GET /bookings
func (h *StudioHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.bookings.List(r.Context())
	if err != nil {
		slog.Error("list bookings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}
	if bookings == nil {
		bookings = []model.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

// ─── Class handlers ───────────────────────────────────────────────────────────

// CreateClass handles POST /classes
func (h *StudioHandler) CreateClass(w http.ResponseWriter, r *http.Request) {
	var req model.CreateClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	class, err := h.classes.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, class)
}

// CreateRecurringClasses handles POST /classes/recurring
func (h *StudioHandler) CreateRecurringClasses(w http.ResponseWriter, r *http.Request) {
	var req model.RecurringClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	classes, err := h.classes.CreateRecurring(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, classes)
}

// ListClasses handles GET /classes
func (h *StudioHandler) ListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := h.classes.List(r.Context())
	if err != nil {
		slog.Error("list classes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list classes")
		return
	}
	if classes == nil {
		classes = []model.ClassSlot{}
	}
	writeJSON(w, http.StatusOK, classes)
}

// GetClass handles GET /classes/{id}
func (h *StudioHandler) GetClass(w http.ResponseWriter, r *http.Request) {
	class, err := h.classes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, class)
}

// UpdateClass handles PUT /classes/{id}
func (h *StudioHandler) UpdateClass(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.ID = chi.URLParam(r, "id")

	class, err := h.classes.Update(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, class)
}

// DeleteClass handles DELETE /classes/{id}
// Refuses with 409 while the class still has booked seats.
func (h *StudioHandler) DeleteClass(w http.ResponseWriter, r *http.Request) {
	if err := h.classes.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListClassesWithAttendees handles GET /classes/attendees
func (h *StudioHandler) ListClassesWithAttendees(w http.ResponseWriter, r *http.Request) {
	out, err := h.bookings.ListWithAttendees(r.Context())
	if err != nil {
		slog.Error("list classes with attendees", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list classes with attendees")
		return
	}
	if out == nil {
		out = []model.ClassAttendance{}
	}
	writeJSON(w, http.StatusOK, out)
}

// TeacherStats handles GET /stats/teachers?year=2026&month=9
func (h *StudioHandler) TeacherStats(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year must be an integer")
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be an integer")
		return
	}

	stats, err := h.classes.TeacherStats(r.Context(), year, time.Month(month))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ─── Pack handlers ────────────────────────────────────────────────────────────

// ListPacks handles GET /packs
func (h *StudioHandler) ListPacks(w http.ResponseWriter, r *http.Request) {
	packs, err := h.packs.ListPacks(r.Context())
	if err != nil {
		slog.Error("list packs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list packs")
		return
	}
	if packs == nil {
		packs = []model.ClassPack{}
	}
	writeJSON(w, http.StatusOK, packs)
}

// AddPack handles POST /packs
func (h *StudioHandler) AddPack(w http.ResponseWriter, r *http.Request) {
	var pack model.ClassPack
	if err := decodeJSON(r, &pack); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	created, err := h.packs.AddPack(r.Context(), pack)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UpdatePack handles PUT /packs/{id}
func (h *StudioHandler) UpdatePack(w http.ResponseWriter, r *http.Request) {
	var pack model.ClassPack
	if err := decodeJSON(r, &pack); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	pack.ID = chi.URLParam(r, "id")

	updated, err := h.packs.UpdatePack(r.Context(), pack)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeletePack handles DELETE /packs/{id}
func (h *StudioHandler) DeletePack(w http.ResponseWriter, r *http.Request) {
	if err := h.packs.DeletePack(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCustomPrices handles GET /packs/custom-prices
func (h *StudioHandler) GetCustomPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.packs.CustomPrices(r.Context())
	if err != nil {
		slog.Error("get custom prices", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get custom prices")
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

// SetCustomPrices handles PUT /packs/custom-prices
func (h *StudioHandler) SetCustomPrices(w http.ResponseWriter, r *http.Request) {
	var prices map[int]float64
	if err := decodeJSON(r, &prices); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	updated, err := h.packs.SetCustomPrices(r.Context(), prices)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ─── Settings handlers ────────────────────────────────────────────────────────

type activeMonthResponse struct {
	ActiveMonth *time.Time `json:"active_month"`
}

// GetActiveBookingMonth handles GET /settings/active-month
func (h *StudioHandler) GetActiveBookingMonth(w http.ResponseWriter, r *http.Request) {
	month, err := h.packs.ActiveBookingMonth(r.Context())
	if err != nil {
		slog.Error("get active booking month", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get active booking month")
		return
	}
	writeJSON(w, http.StatusOK, activeMonthResponse{ActiveMonth: month})
}

// SetActiveBookingMonth handles PUT /settings/active-month
// A body with null year/month closes bookings.
func (h *StudioHandler) SetActiveBookingMonth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Year  *int        `json:"year"`
		Month *time.Month `json:"month"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	month, err := h.packs.SetActiveBookingMonth(r.Context(), req.Year, req.Month)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activeMonthResponse{ActiveMonth: month})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
