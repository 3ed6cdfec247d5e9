package scoring

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
	r.HandleFunc("/answers", h.ListAnswers).Methods(http.MethodGet)
	r.HandleFunc("/answers", h.SubmitAnswer).Methods(http.MethodPost)
	r.HandleFunc("/answers/{id}", h.GetAnswer).Methods(http.MethodGet)
	r.HandleFunc("/answers/{id}", h.UpdateAnswer).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/answers/{id}", h.DeleteAnswer).Methods(http.MethodDelete)

	r.HandleFunc("/selections", h.ListSelections).Methods(http.MethodGet)
	r.HandleFunc("/selections", h.SubmitSelection).Methods(http.MethodPost)
	r.HandleFunc("/selections/{id}", h.GetSelection).Methods(http.MethodGet)
	r.HandleFunc("/selections/{id}", h.ChangeSelection).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/selections/{id}", h.DeleteSelection).Methods(http.MethodDelete)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.Error(w, r, h.log, err)
}

func filter(r *http.Request) (AnswerFilter, error) {
	var (
		f   AnswerFilter
		err error
	)
	if f.ExamID, err = httpx.QueryID(r, "exam_id"); err != nil {
		return f, err
	}
	if f.QuestionID, err = httpx.QueryID(r, "question_id"); err != nil {
		return f, err
	}
	f.StudentID, err = httpx.QueryID(r, "student_id")
	return f, err
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in AnswerInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.service.SubmitAnswer(r.Context(), caller, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) GetAnswer(w http.ResponseWriter, r *http.Request) {
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
	a, err := h.service.GetAnswer(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) ListAnswers(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := filter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ListAnswers(r.Context(), caller, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateAnswer(w http.ResponseWriter, r *http.Request) {
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
	var upd AnswerUpdate
	if err := httpx.Decode(r, &upd); err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.service.UpdateAnswer(r.Context(), caller, id, upd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) DeleteAnswer(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteAnswer(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SubmitSelection(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in SelectionInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	sel, err := h.service.SubmitSelection(r.Context(), caller, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sel)
}

func (h *Handler) GetSelection(w http.ResponseWriter, r *http.Request) {
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
	sel, err := h.service.GetSelection(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sel)
}

func (h *Handler) ListSelections(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := filter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ListSelections(r.Context(), caller, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) ChangeSelection(w http.ResponseWriter, r *http.Request) {
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
	var upd SelectionUpdate
	if err := httpx.Decode(r, &upd); err != nil {
		h.fail(w, r, err)
		return
	}
	sel, err := h.service.ChangeSelection(r.Context(), caller, id, upd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sel)
}

func (h *Handler) DeleteSelection(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteSelection(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
