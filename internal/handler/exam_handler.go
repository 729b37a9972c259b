package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// ExamHandler serves exam definitions and their reports.
type ExamHandler struct {
	examService   *service.ExamService
	reportService *service.ReportService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, reportService *service.ReportService) *ExamHandler {
	return &ExamHandler{
		examService:   examService,
		reportService: reportService,
	}
}

// GetExam godoc
// GET /api/v1/exams/:id
// Returns the full exam definition a candidate session runs on.
func (h *ExamHandler) GetExam(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	def, err := h.examService.GetDefinition(c.Request.Context(), examID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, def)
}

// GetExamReports godoc
// GET /api/v1/exams/:id/reports?limit=100
// Lists persisted reports, newest first.
func (h *ExamHandler) GetExamReports(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	reports, err := h.reportService.ListByExam(c.Request.Context(), examID, limit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reports": reports})
}
