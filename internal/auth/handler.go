package auth

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

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Routes registers the unauthenticated endpoints.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/auth/signup/institute", h.RegisterInstitute).Methods(http.MethodPost)
	r.HandleFunc("/auth/signup/teacher", h.RegisterTeacher).Methods(http.MethodPost)
	r.HandleFunc("/auth/signup/student", h.RegisterStudent).Methods(http.MethodPost)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	token, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, token)
}

func (h *Handler) RegisterInstitute(w http.ResponseWriter, r *http.Request) {
	var in InstituteSignup
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	inst, err := h.service.RegisterInstitute(r.Context(), in)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inst)
}

func (h *Handler) RegisterTeacher(w http.ResponseWriter, r *http.Request) {
	var in TeacherSignup
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	teacher, err := h.service.RegisterTeacher(r.Context(), in)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, teacher)
}

func (h *Handler) RegisterStudent(w http.ResponseWriter, r *http.Request) {
	var in StudentSignup
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	student, err := h.service.RegisterStudent(r.Context(), in)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, student)
}
