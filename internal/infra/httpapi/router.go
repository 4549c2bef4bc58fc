package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"tutor_booking_engine/internal/app"
)

// SweepRunner runs named sweeps.
type SweepRunner interface {
	Names() []string
	Run(ctx context.Context, name string, now time.Time) (app.SweepReport, error)
}

// Handler exposes sweeps to an external scheduler.
type Handler struct {
	sweeps SweepRunner
	now    func() time.Time
	log    *logrus.Entry
}

func NewHandler(sweeps SweepRunner, log *logrus.Entry) *Handler {
	return &Handler{
		sweeps: sweeps,
		now:    func() time.Time { return time.Now().UTC() },
		log:    log.WithField("component", "httpapi"),
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	router.HandleFunc("/sweeps", h.listSweeps).Methods(http.MethodGet)
	router.HandleFunc("/sweeps/{name}", h.runSweep).Methods(http.MethodPost)
}

// Routes is any handler set that mounts itself on the router.
type Routes interface {
	RegisterRoutes(router *mux.Router)
}

// NewRouter builds the full handler chain: routes, panic recovery and
// access logging.
func NewRouter(h *Handler, accessLog *logrus.Logger, extra ...Routes) http.Handler {
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	for _, routes := range extra {
		routes.RegisterRoutes(router)
	}
	recovered := handlers.RecoveryHandler(
		handlers.RecoveryLogger(h.log),
		handlers.PrintRecoveryStack(true),
	)(router)
	return handlers.CombinedLoggingHandler(accessLog.WriterLevel(logrus.DebugLevel), recovered)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listSweeps(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sweeps": h.sweeps.Names()})
}

// runSweep runs one sweep synchronously. An optional "at" query parameter
// (RFC 3339) overrides the clock.
func (h *Handler) runSweep(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	now := h.now()
	if at := r.URL.Query().Get("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at: expected RFC 3339 timestamp")
			return
		}
		now = t.UTC()
	}

	report, err := h.sweeps.Run(r.Context(), name, now)
	if err != nil {
		if errors.Is(err, app.ErrUnknownSweep) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.WithError(err).WithField("sweep", name).Error("Sweep failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.log.WithFields(report.Fields()).Info("Sweep triggered over HTTP")
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
