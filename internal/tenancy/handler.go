package tenancy

import (
	"net/http"

	"github.com/gorilla/mux"

	"exam-system/internal/apperr"
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
	r.HandleFunc("/institutes", h.ListInstitutes).Methods(http.MethodGet)
	r.HandleFunc("/institutes/{id}", h.GetInstitute).Methods(http.MethodGet)
	r.HandleFunc("/institutes/{id}", h.UpdateInstitute).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/institutes/{id}", h.DeleteInstitute).Methods(http.MethodDelete)

	r.HandleFunc("/teachers", h.ListTeachers).Methods(http.MethodGet)
	r.HandleFunc("/teachers/{id}", h.GetTeacher).Methods(http.MethodGet)
	r.HandleFunc("/teachers/{id}", h.UpdateTeacher).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/teachers/{id}", h.DeleteTeacher).Methods(http.MethodDelete)

	r.HandleFunc("/students", h.ListStudents).Methods(http.MethodGet)
	r.HandleFunc("/students/{id}", h.GetStudent).Methods(http.MethodGet)
	r.HandleFunc("/students/{id}", h.UpdateStudent).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/students/{id}", h.DeleteStudent).Methods(http.MethodDelete)

	r.HandleFunc("/majors", h.ListMajors).Methods(http.MethodGet)
	r.HandleFunc("/majors", h.CreateMajor).Methods(http.MethodPost)
	r.HandleFunc("/majors/{id}", h.GetMajor).Methods(http.MethodGet)
	r.HandleFunc("/majors/{id}", h.UpdateMajor).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/majors/{id}", h.DeleteMajor).Methods(http.MethodDelete)

	r.HandleFunc("/accounts/{id}/active", h.SetAccountActive).Methods(http.MethodPut)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.Error(w, r, h.log, err)
}

// Institutes.

func (h *Handler) GetInstitute(w http.ResponseWriter, r *http.Request) {
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
	inst, err := h.service.GetInstitute(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inst)
}

func (h *Handler) ListInstitutes(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ListInstitutes(r.Context(), caller, InstituteFilter{Name: r.URL.Query().Get("name")})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateInstitute(w http.ResponseWriter, r *http.Request) {
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
	var in InstituteUpdate
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	inst, err := h.service.UpdateInstitute(r.Context(), caller, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inst)
}

func (h *Handler) DeleteInstitute(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteInstitute(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Teachers and students.

func profileFilter(r *http.Request) (ProfileFilter, error) {
	var (
		f   ProfileFilter
		err error
	)
	if f.InstituteID, err = httpx.QueryID(r, "institute_id"); err != nil {
		return f, err
	}
	f.MajorID, err = httpx.QueryID(r, "major_id")
	return f, err
}

func (h *Handler) GetTeacher(w http.ResponseWriter, r *http.Request) {
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
	t, err := h.service.GetTeacher(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := profileFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ListTeachers(r.Context(), caller, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateTeacher(w http.ResponseWriter, r *http.Request) {
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
	var in TeacherUpdate
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.service.UpdateTeacher(r.Context(), caller, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTeacher(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteTeacher(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
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
	st, err := h.service.GetStudent(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := profileFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ListStudents(r.Context(), caller, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
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
	var in StudentUpdate
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	st, err := h.service.UpdateStudent(r.Context(), caller, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteStudent(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Majors.

func (h *Handler) CreateMajor(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in MajorInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.service.CreateMajor(r.Context(), caller, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) GetMajor(w http.ResponseWriter, r *http.Request) {
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
	m, err := h.service.GetMajor(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) ListMajors(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ListMajors(r.Context(), caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateMajor(w http.ResponseWriter, r *http.Request) {
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
	var in MajorInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.service.UpdateMajor(r.Context(), caller, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) DeleteMajor(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteMajor(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type activeRequest struct {
	IsActive *bool `json:"is_active"`
}

func (h *Handler) SetAccountActive(w http.ResponseWriter, r *http.Request) {
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
	var req activeRequest
	if err := httpx.Decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.IsActive == nil {
		h.fail(w, r, apperr.Field("is_active", "this field is required"))
		return
	}
	acc, err := h.service.SetAccountActive(r.Context(), caller, id, *req.IsActive)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}
