package result

import (
	"net/http"

	"github.com/gorilla/mux"

	"exam-system/internal/httpx"
	"exam-system/pkg/logger"
)

type Handler struct {
	service *Service
	log     *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/results", h.List).Methods(http.MethodGet)
	r.HandleFunc("/results/{id}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/results/{id}", h.Overwrite).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/exams/{id}/leaderboard", h.Leaderboard).Methods(http.MethodGet)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.Error(w, r, h.log, err)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := httpx.ID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.service.Get(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var f Filter
	if f.ExamID, err = httpx.QueryID(r, "exam_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	if f.StudentID, err = httpx.QueryID(r, "student_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.List(r.Context(), caller, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Overwrite(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := httpx.ID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in OverwriteInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.service.Overwrite(r.Context(), caller, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	examID, err := httpx.ID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.service.Leaderboard(r.Context(), caller, examID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}
