package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"tutor_booking_engine/internal/app"
	"tutor_booking_engine/internal/domain/availability"
	"tutor_booking_engine/internal/domain/booking"
	"tutor_booking_engine/internal/domain/escrow"
	"tutor_booking_engine/internal/domain/payout"
	"tutor_booking_engine/internal/domain/teacher"
	"tutor_booking_engine/internal/domain/user"
	"tutor_booking_engine/internal/domain/wallet"
)

// UserHeader carries the acting user. Authentication happens in front of
// this service.
const UserHeader = "X-User-ID"

type Bookings interface {
	IsAvailable(ctx context.Context, teacherID int64, start, end time.Time) (bool, error)
	CreateBooking(ctx context.Context, req app.CreateBookingRequest, now time.Time) (*booking.Booking, error)
	CreateRecurring(ctx context.Context, req app.CreateBookingRequest, occurrences int, every time.Duration, now time.Time) ([]app.OccurrenceResult, error)
	ConfirmPayment(ctx context.Context, bookingID int64, now time.Time) (*booking.Booking, error)
	Join(ctx context.Context, bookingID, userID int64, now time.Time) (*booking.Booking, error)
	RequestReschedule(ctx context.Context, bookingID, actorID int64, start, end time.Time, now time.Time) (*booking.Booking, error)
	ApproveReschedule(ctx context.Context, bookingID, actorID int64, now time.Time) (*booking.Booking, error)
	RejectReschedule(ctx context.Context, bookingID, actorID int64, now time.Time) (*booking.Booking, error)
	CancelBooking(ctx context.Context, bookingID, actorID int64, reason string, now time.Time) (*booking.Booking, error)
	Get(ctx context.Context, bookingID int64) (*booking.Booking, error)
	RescheduleHistory(ctx context.Context, bookingID int64) ([]booking.RescheduleHistory, error)
}

type Disputes interface {
	OpenDispute(ctx context.Context, bookingID, actorID int64, reason string, now time.Time) (*escrow.Entry, error)
}

type Schedules interface {
	SetAvailability(ctx context.Context, slot availability.Slot, now time.Time) (*availability.Slot, error)
	Slots(ctx context.Context, teacherID int64) ([]availability.Slot, error)
	SetHolidayMode(ctx context.Context, teacherID int64, on bool, now time.Time) (*teacher.Teacher, error)
}

type Payouts interface {
	CalculateAvailableBalance(ctx context.Context, teacherID int64) (int64, error)
	RequestPayout(ctx context.Context, teacherID, amount, paymentMethodID int64, now time.Time) (*payout.Request, error)
}

// BookingAPI exposes the booking lifecycle, teacher schedules and payout
// requests as JSON over HTTP.
type BookingAPI struct {
	bookings  Bookings
	disputes  Disputes
	schedules Schedules
	payouts   Payouts
	now       func() time.Time
	log       *logrus.Entry
}

func NewBookingAPI(bookings Bookings, disputes Disputes, schedules Schedules, payouts Payouts, log *logrus.Entry) *BookingAPI {
	return &BookingAPI{
		bookings:  bookings,
		disputes:  disputes,
		schedules: schedules,
		payouts:   payouts,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.WithField("component", "booking_api"),
	}
}

func (a *BookingAPI) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bookings", a.createBooking).Methods(http.MethodPost)
	router.HandleFunc("/bookings/{id:[0-9]+}", a.getBooking).Methods(http.MethodGet)
	router.HandleFunc("/bookings/{id:[0-9]+}/confirm-payment", a.confirmPayment).Methods(http.MethodPost)
	router.HandleFunc("/bookings/{id:[0-9]+}/join", a.join).Methods(http.MethodPost)
	router.HandleFunc("/bookings/{id:[0-9]+}/cancel", a.cancel).Methods(http.MethodPost)
	router.HandleFunc("/bookings/{id:[0-9]+}/reschedule", a.requestReschedule).Methods(http.MethodPost)
	router.HandleFunc("/bookings/{id:[0-9]+}/reschedule/approve", a.approveReschedule).Methods(http.MethodPost)
	router.HandleFunc("/bookings/{id:[0-9]+}/reschedule/reject", a.rejectReschedule).Methods(http.MethodPost)
	router.HandleFunc("/bookings/{id:[0-9]+}/reschedules", a.rescheduleHistory).Methods(http.MethodGet)
	router.HandleFunc("/bookings/{id:[0-9]+}/dispute", a.openDispute).Methods(http.MethodPost)

	router.HandleFunc("/teachers/{id:[0-9]+}/availability", a.isAvailable).Methods(http.MethodGet)
	router.HandleFunc("/teachers/{id:[0-9]+}/availability", a.setAvailability).Methods(http.MethodPut)
	router.HandleFunc("/teachers/{id:[0-9]+}/slots", a.slots).Methods(http.MethodGet)
	router.HandleFunc("/teachers/{id:[0-9]+}/holiday", a.setHoliday).Methods(http.MethodPut)
	router.HandleFunc("/teachers/{id:[0-9]+}/balance", a.balance).Methods(http.MethodGet)
	router.HandleFunc("/teachers/{id:[0-9]+}/payouts", a.requestPayout).Methods(http.MethodPost)
}

type createBookingBody struct {
	TeacherID     int64     `json:"teacher_id"`
	StudentUserID int64     `json:"student_user_id"`
	PayerUserID   int64     `json:"payer_user_id"`
	SubjectID     int64     `json:"subject_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Notes         string    `json:"notes"`
	Occurrences   int       `json:"occurrences"`
	Every         string    `json:"every"`
}

type occurrenceView struct {
	Start   time.Time    `json:"start"`
	End     time.Time    `json:"end"`
	Booking *bookingView `json:"booking,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// createBooking books one session, or a series when occurrences > 1.
// The caller must be the student or the payer.
func (a *BookingAPI) createBooking(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var body createBookingBody
	if !decode(w, r, &body) {
		return
	}
	if body.StudentUserID == 0 {
		body.StudentUserID = actorID
	}
	if actorID != body.StudentUserID && actorID != body.PayerUserID {
		writeError(w, http.StatusForbidden, "only the student or the payer can book")
		return
	}
	req := app.CreateBookingRequest{
		TeacherID:     body.TeacherID,
		StudentUserID: body.StudentUserID,
		PayerUserID:   body.PayerUserID,
		SubjectID:     body.SubjectID,
		Start:         body.Start.UTC(),
		End:           body.End.UTC(),
		Notes:         body.Notes,
	}

	if body.Occurrences <= 1 {
		b, err := a.bookings.CreateBooking(r.Context(), req, a.now())
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newBookingView(b))
		return
	}

	every, err := time.ParseDuration(body.Every)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid every: expected a duration such as 168h")
		return
	}
	results, err := a.bookings.CreateRecurring(r.Context(), req, body.Occurrences, every, a.now())
	if err != nil {
		a.fail(w, err)
		return
	}
	out := make([]occurrenceView, 0, len(results))
	for _, res := range results {
		v := occurrenceView{Start: res.Start, End: res.End}
		if res.Err != nil {
			v.Error = res.Err.Error()
		} else {
			v.Booking = newBookingView(res.Booking)
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusCreated, map[string][]occurrenceView{"occurrences": out})
}

func (a *BookingAPI) getBooking(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	b, err := a.bookings.Get(r.Context(), pathID(r))
	if err != nil {
		a.fail(w, err)
		return
	}
	if !b.IsParticipant(actorID) {
		a.fail(w, booking.ErrNotParticipant)
		return
	}
	writeJSON(w, http.StatusOK, newBookingView(b))
}

// confirmPayment retries the escrow hold of a booking awaiting payment,
// typically after the payer topped up.
func (a *BookingAPI) confirmPayment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	id := pathID(r)
	b, err := a.bookings.Get(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	if actorID != b.PayerUserID && actorID != b.StudentUserID {
		a.fail(w, booking.ErrNotParticipant)
		return
	}
	a.respondBooking(w, http.StatusOK)(a.bookings.ConfirmPayment(r.Context(), id, a.now()))
}

func (a *BookingAPI) join(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	a.respondBooking(w, http.StatusOK)(a.bookings.Join(r.Context(), pathID(r), actorID, a.now()))
}

type reasonBody struct {
	Reason string `json:"reason"`
}

func (a *BookingAPI) cancel(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var body reasonBody
	if !decode(w, r, &body) {
		return
	}
	a.respondBooking(w, http.StatusOK)(a.bookings.CancelBooking(r.Context(), pathID(r), actorID, body.Reason, a.now()))
}

type intervalBody struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (a *BookingAPI) requestReschedule(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var body intervalBody
	if !decode(w, r, &body) {
		return
	}
	a.respondBooking(w, http.StatusOK)(a.bookings.RequestReschedule(r.Context(), pathID(r), actorID, body.Start.UTC(), body.End.UTC(), a.now()))
}

func (a *BookingAPI) approveReschedule(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	a.respondBooking(w, http.StatusOK)(a.bookings.ApproveReschedule(r.Context(), pathID(r), actorID, a.now()))
}

func (a *BookingAPI) rejectReschedule(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	a.respondBooking(w, http.StatusOK)(a.bookings.RejectReschedule(r.Context(), pathID(r), actorID, a.now()))
}

type rescheduleView struct {
	OldStart    time.Time `json:"old_start"`
	OldEnd      time.Time `json:"old_end"`
	NewStart    time.Time `json:"new_start"`
	NewEnd      time.Time `json:"new_end"`
	RequestedBy int64     `json:"requested_by"`
	ApprovedBy  int64     `json:"approved_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func (a *BookingAPI) rescheduleHistory(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	id := pathID(r)
	b, err := a.bookings.Get(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	if !b.IsParticipant(actorID) {
		a.fail(w, booking.ErrNotParticipant)
		return
	}
	history, err := a.bookings.RescheduleHistory(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	out := make([]rescheduleView, 0, len(history))
	for _, h := range history {
		out = append(out, rescheduleView{
			OldStart: h.OldStart, OldEnd: h.OldEnd,
			NewStart: h.NewStart, NewEnd: h.NewEnd,
			RequestedBy: h.RequestedBy, ApprovedBy: h.ApprovedBy,
			CreatedAt: h.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]rescheduleView{"reschedules": out})
}

type escrowView struct {
	BookingID           int64      `json:"booking_id"`
	Amount              int64      `json:"amount"`
	Currency            string     `json:"currency"`
	Status              string     `json:"status"`
	Disputed            bool       `json:"disputed"`
	DisputeReason       string     `json:"dispute_reason,omitempty"`
	DisputeWindowEndsAt *time.Time `json:"dispute_window_ends_at,omitempty"`
}

func (a *BookingAPI) openDispute(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var body reasonBody
	if !decode(w, r, &body) {
		return
	}
	e, err := a.disputes.OpenDispute(r.Context(), pathID(r), actorID, body.Reason, a.now())
	if err != nil {
		a.fail(w, err)
		return
	}
	v := escrowView{
		BookingID:     e.BookingID,
		Amount:        e.Amount,
		Currency:      e.Currency,
		Status:        string(e.Status),
		Disputed:      e.Disputed,
		DisputeReason: e.DisputeReason,
	}
	if e.DisputeWindowEndsAt.Valid {
		v.DisputeWindowEndsAt = &e.DisputeWindowEndsAt.Time
	}
	writeJSON(w, http.StatusOK, v)
}

// isAvailable answers whether [start, end) can be booked right now.
func (a *BookingAPI) isAvailable(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start: expected RFC 3339 timestamp")
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end: expected RFC 3339 timestamp")
		return
	}
	available, err := a.bookings.IsAvailable(r.Context(), pathID(r), start.UTC(), end.UTC())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

type slotBody struct {
	DayOfWeek   time.Weekday `json:"day_of_week"`
	StartTime   string       `json:"start_time"`
	EndTime     string       `json:"end_time"`
	IsAvailable bool         `json:"is_available"`
}

func newSlotBody(s availability.Slot) slotBody {
	return slotBody{
		DayOfWeek:   s.DayOfWeek,
		StartTime:   s.StartTime.String(),
		EndTime:     s.EndTime.String(),
		IsAvailable: s.IsAvailable,
	}
}

func (a *BookingAPI) setAvailability(w http.ResponseWriter, r *http.Request) {
	teacherID, ok := a.teacherActor(w, r)
	if !ok {
		return
	}
	var body slotBody
	if !decode(w, r, &body) {
		return
	}
	start, err := availability.ParseTimeOfDay(body.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := availability.ParseTimeOfDay(body.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slot, err := a.schedules.SetAvailability(r.Context(), availability.Slot{
		TeacherID:   teacherID,
		DayOfWeek:   body.DayOfWeek,
		StartTime:   start,
		EndTime:     end,
		IsAvailable: body.IsAvailable,
	}, a.now())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSlotBody(*slot))
}

func (a *BookingAPI) slots(w http.ResponseWriter, r *http.Request) {
	slots, err := a.schedules.Slots(r.Context(), pathID(r))
	if err != nil {
		a.fail(w, err)
		return
	}
	out := make([]slotBody, 0, len(slots))
	for _, s := range slots {
		out = append(out, newSlotBody(s))
	}
	writeJSON(w, http.StatusOK, map[string][]slotBody{"slots": out})
}

func (a *BookingAPI) setHoliday(w http.ResponseWriter, r *http.Request) {
	teacherID, ok := a.teacherActor(w, r)
	if !ok {
		return
	}
	var body struct {
		On bool `json:"on"`
	}
	if !decode(w, r, &body) {
		return
	}
	t, err := a.schedules.SetHolidayMode(r.Context(), teacherID, body.On, a.now())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"holiday_mode": t.HolidayMode})
}

func (a *BookingAPI) balance(w http.ResponseWriter, r *http.Request) {
	teacherID, ok := a.teacherActor(w, r)
	if !ok {
		return
	}
	available, err := a.payouts.CalculateAvailableBalance(r.Context(), teacherID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"available": available})
}

type payoutView struct {
	ID              int64  `json:"id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	PaymentMethodID int64  `json:"payment_method_id"`
	Status          string `json:"status"`
}

func (a *BookingAPI) requestPayout(w http.ResponseWriter, r *http.Request) {
	teacherID, ok := a.teacherActor(w, r)
	if !ok {
		return
	}
	var body struct {
		Amount          int64 `json:"amount"`
		PaymentMethodID int64 `json:"payment_method_id"`
	}
	if !decode(w, r, &body) {
		return
	}
	req, err := a.payouts.RequestPayout(r.Context(), teacherID, body.Amount, body.PaymentMethodID, a.now())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payoutView{
		ID:              req.ID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		PaymentMethodID: req.PaymentMethodID,
		Status:          string(req.Status),
	})
}

type bookingView struct {
	ID                 int64      `json:"id"`
	SeriesID           string     `json:"series_id,omitempty"`
	TeacherID          int64      `json:"teacher_id"`
	StudentUserID      int64      `json:"student_user_id"`
	PayerUserID        int64      `json:"payer_user_id"`
	SubjectID          int64      `json:"subject_id"`
	Start              time.Time  `json:"start"`
	End                time.Time  `json:"end"`
	Status             string     `json:"status"`
	PaymentStatus      string     `json:"payment_status"`
	Amount             int64      `json:"amount"`
	Currency           string     `json:"currency"`
	Notes              string     `json:"notes,omitempty"`
	TeacherAttended    bool       `json:"teacher_attended"`
	StudentAttended    bool       `json:"student_attended"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	RescheduleStart    *time.Time `json:"reschedule_start,omitempty"`
	RescheduleEnd      *time.Time `json:"reschedule_end,omitempty"`
}

func newBookingView(b *booking.Booking) *bookingView {
	v := &bookingView{
		ID:                 b.ID,
		SeriesID:           b.SeriesID.String,
		TeacherID:          b.TeacherID,
		StudentUserID:      b.StudentUserID,
		PayerUserID:        b.PayerUserID,
		SubjectID:          b.SubjectID,
		Start:              b.StartTime,
		End:                b.EndTime,
		Status:             string(b.Status),
		PaymentStatus:      string(b.PaymentStatus),
		Amount:             b.Amount,
		Currency:           b.Currency,
		Notes:              b.Notes,
		TeacherAttended:    b.TeacherAttended,
		StudentAttended:    b.StudentAttended,
		CancellationReason: b.CancellationReason,
	}
	if b.RescheduleStart.Valid {
		v.RescheduleStart = &b.RescheduleStart.Time
		v.RescheduleEnd = &b.RescheduleEnd.Time
	}
	return v
}

func (a *BookingAPI) respondBooking(w http.ResponseWriter, status int) func(*booking.Booking, error) {
	return func(b *booking.Booking, err error) {
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, status, newBookingView(b))
	}
}

// teacherActor allows teacher routes only for the teacher themselves.
func (a *BookingAPI) teacherActor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	actorID, ok := actor(w, r)
	if !ok {
		return 0, false
	}
	if teacherID := pathID(r); teacherID != actorID {
		writeError(w, http.StatusForbidden, "only the teacher can manage this resource")
		return 0, false
	}
	return actorID, true
}

// fail maps domain errors onto status codes. Anything unrecognised is
// logged and reported as 500.
func (a *BookingAPI) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.log.WithError(err).Error("Request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, booking.ErrNotFound),
		errors.Is(err, teacher.ErrNotFound),
		errors.Is(err, user.ErrNotFound),
		errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, payout.ErrNotFound),
		errors.Is(err, payout.ErrMethodNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrNotParticipant),
		errors.Is(err, booking.ErrOwnReschedule):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrInvalidInterval),
		errors.Is(err, booking.ErrInPast),
		errors.Is(err, availability.ErrInvalidInterval),
		errors.Is(err, app.ErrInvalidRecurrence),
		errors.Is(err, payout.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrReschedulePending),
		errors.Is(err, booking.ErrNoReschedule),
		errors.Is(err, booking.ErrOutsideJoinWindow),
		errors.Is(err, availability.ErrHolidayMode),
		errors.Is(err, availability.ErrOutsideAvailability),
		errors.Is(err, availability.ErrSlotConflict),
		errors.Is(err, escrow.ErrNotHeld),
		errors.Is(err, escrow.ErrDisputed),
		errors.Is(err, escrow.ErrWindowClosed),
		errors.Is(err, wallet.ErrInsufficientFunds),
		errors.Is(err, payout.ErrInsufficientBalance),
		errors.Is(err, payout.ErrMethodNotVerified):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func actor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get(UserHeader), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusUnauthorized, fmt.Sprintf("missing or invalid %s header", UserHeader))
		return 0, false
	}
	return id, true
}

// pathID reads {id}; the route pattern guarantees digits.
func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
