package exam

import (
	"net/http"

	"github.com/gorilla/mux"

	"exam-system/internal/httpx"
	"exam-system/internal/models"
	"exam-system/pkg/logger"
)

type Handler struct {
	service *Service
	log     *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Routes registers the content endpoints on an authenticated router.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/classrooms", h.ListClassrooms).Methods(http.MethodGet)
	r.HandleFunc("/classrooms", h.CreateClassroom).Methods(http.MethodPost)
	r.HandleFunc("/classrooms/{id}", h.GetClassroom).Methods(http.MethodGet)
	r.HandleFunc("/classrooms/{id}", h.UpdateClassroom).Methods(http.MethodPut)
	r.HandleFunc("/classrooms/{id}", h.DeleteClassroom).Methods(http.MethodDelete)

	r.HandleFunc("/memberships", h.ListMemberships).Methods(http.MethodGet)
	r.HandleFunc("/memberships", h.Enroll).Methods(http.MethodPost)
	r.HandleFunc("/memberships/{id}", h.GetMembership).Methods(http.MethodGet)
	r.HandleFunc("/memberships/{id}", h.Unenroll).Methods(http.MethodDelete)

	r.HandleFunc("/categories", h.ListCategories).Methods(http.MethodGet)
	r.HandleFunc("/categories", h.CreateCategory).Methods(http.MethodPost)
	r.HandleFunc("/categories/{id}", h.GetCategory).Methods(http.MethodGet)
	r.HandleFunc("/categories/{id}", h.UpdateCategory).Methods(http.MethodPut)
	r.HandleFunc("/categories/{id}", h.DeleteCategory).Methods(http.MethodDelete)

	r.HandleFunc("/exams", h.ListExams).Methods(http.MethodGet)
	r.HandleFunc("/exams", h.CreateExam).Methods(http.MethodPost)
	r.HandleFunc("/exams/{id}", h.GetExam).Methods(http.MethodGet)
	r.HandleFunc("/exams/{id}", h.UpdateExam).Methods(http.MethodPut)
	r.HandleFunc("/exams/{id}", h.DeleteExam).Methods(http.MethodDelete)

	r.HandleFunc("/questions", h.ListQuestions).Methods(http.MethodGet)
	r.HandleFunc("/questions", h.CreateQuestion).Methods(http.MethodPost)
	r.HandleFunc("/questions/{id}", h.GetQuestion).Methods(http.MethodGet)
	r.HandleFunc("/questions/{id}", h.UpdateQuestion).Methods(http.MethodPut)
	r.HandleFunc("/questions/{id}", h.DeleteQuestion).Methods(http.MethodDelete)

	r.HandleFunc("/options", h.ListOptions).Methods(http.MethodGet)
	r.HandleFunc("/options", h.CreateOption).Methods(http.MethodPost)
	r.HandleFunc("/options/{id}", h.GetOption).Methods(http.MethodGet)
	r.HandleFunc("/options/{id}", h.UpdateOption).Methods(http.MethodPut)
	r.HandleFunc("/options/{id}", h.DeleteOption).Methods(http.MethodDelete)

	r.HandleFunc("/feedback", h.ListFeedback).Methods(http.MethodGet)
	r.HandleFunc("/feedback", h.CreateFeedback).Methods(http.MethodPost)
	r.HandleFunc("/feedback/{id}", h.GetFeedback).Methods(http.MethodGet)
	r.HandleFunc("/feedback/{id}", h.UpdateFeedback).Methods(http.MethodPut)
	r.HandleFunc("/feedback/{id}", h.DeleteFeedback).Methods(http.MethodDelete)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.Error(w, r, h.log, err)
}

// Classrooms.

func (h *Handler) CreateClassroom(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in ClassroomInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.CreateClassroom(r.Context(), caller, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) GetClassroom(w http.ResponseWriter, r *http.Request) {
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
	c, err := h.service.GetClassroom(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) ListClassrooms(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	teacherID, err := httpx.QueryID(r, "teacher_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f := ClassroomFilter{TeacherID: teacherID, Grade: models.Grade(r.URL.Query().Get("grade"))}
	out, err := h.service.ListClassrooms(r.Context(), caller, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateClassroom(w http.ResponseWriter, r *http.Request) {
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
	var in ClassroomInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.UpdateClassroom(r.Context(), caller, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteClassroom(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteClassroom(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Memberships.

func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in EnrollInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.service.Enroll(r.Context(), caller, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) GetMembership(w http.ResponseWriter, r *http.Request) {
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
	m, err := h.service.GetMembership(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) ListMemberships(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	classroomID, err := httpx.QueryID(r, "classroom_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ListMemberships(r.Context(), caller, classroomID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Unenroll(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.Unenroll(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Categories.

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in CategoryInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.CreateCategory(r.Context(), caller, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
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
	c, err := h.service.GetCategory(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ListCategories(r.Context(), caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
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
	var in CategoryInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.UpdateCategory(r.Context(), caller, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteCategory(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Exams.

func (h *Handler) CreateExam(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in ExamInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.service.CreateExam(r.Context(), caller, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) GetExam(w http.ResponseWriter, r *http.Request) {
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
	e, err := h.service.GetExam(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) ListExams(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var f ExamFilter
	if f.ClassroomID, err = httpx.QueryID(r, "classroom_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	if f.CategoryID, err = httpx.QueryID(r, "category_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	f.ActiveOnly = r.URL.Query().Get("active") == "true"
	out, err := h.service.ListExams(r.Context(), caller, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateExam(w http.ResponseWriter, r *http.Request) {
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
	var in ExamInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.service.UpdateExam(r.Context(), caller, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) DeleteExam(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteExam(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Questions.

func (h *Handler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in QuestionInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.CreateQuestion(r.Context(), caller, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) GetQuestion(w http.ResponseWriter, r *http.Request) {
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
	q, err := h.service.GetQuestion(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	examID, err := httpx.QueryID(r, "exam_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ListQuestions(r.Context(), caller, examID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
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
	var in QuestionInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.UpdateQuestion(r.Context(), caller, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteQuestion(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Options.

func (h *Handler) CreateOption(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in OptionInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.service.CreateOption(r.Context(), caller, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) GetOption(w http.ResponseWriter, r *http.Request) {
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
	o, err := h.service.GetOption(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) ListOptions(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	questionID, err := httpx.QueryID(r, "question_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ListOptions(r.Context(), caller, questionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateOption(w http.ResponseWriter, r *http.Request) {
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
	var in OptionInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.service.UpdateOption(r.Context(), caller, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) DeleteOption(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteOption(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Feedback.

func (h *Handler) CreateFeedback(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in FeedbackInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := h.service.CreateFeedback(r.Context(), caller, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, f)
}

func (h *Handler) GetFeedback(w http.ResponseWriter, r *http.Request) {
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
	f, err := h.service.GetFeedback(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	examID, err := httpx.QueryID(r, "exam_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ListFeedback(r.Context(), caller, examID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateFeedback(w http.ResponseWriter, r *http.Request) {
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
	var in FeedbackInput
	if err := httpx.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := h.service.UpdateFeedback(r.Context(), caller, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) DeleteFeedback(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteFeedback(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
