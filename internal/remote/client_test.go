package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

const examID = "3f0e9d4c-8a61-4b7e-9c2d-5e1f0a7b6c3d"

func sampleExam() model.ExamDefinition {
	return model.ExamDefinition{
		ID:           examID,
		Name:         "Chemistry",
		Duration:     600,
		PassingMarks: 1,
		TotalMarks:   2,
		Questions: []model.Question{
			{ID: "q1", Name: "H2O is?", Options: map[string]string{"A": "Water", "B": "Salt"}, CorrectOption: "A"},
			{ID: "q2", Name: "NaCl is?", Options: map[string]string{"A": "Water", "B": "Salt"}, CorrectOption: "B"},
		},
	}
}

func newBackend(t *testing.T, exam model.ExamDefinition, reports chan<- model.SubmitReportRequest) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(response.RequestIDMiddleware())

	r.GET("/api/v1/exams/:id", func(c *gin.Context) {
		if c.Param("id") != exam.ID {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Success(c, http.StatusOK, exam)
	})
	r.POST("/api/v1/reports", func(c *gin.Context) {
		var req model.SubmitReportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrValidation)
			return
		}
		reports <- req
		response.Success(c, http.StatusAccepted, gin.H{"queued": true})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/v1/", 2*time.Second, zerolog.Nop())
}

func TestFetchExam(t *testing.T) {
	client := newBackend(t, sampleExam(), nil)

	exam, err := client.FetchExam(context.Background(), examID)
	if err != nil {
		t.Fatalf("FetchExam: %v", err)
	}
	if exam.QuestionCount() != 2 || exam.Questions[1].CorrectOption != "B" {
		t.Errorf("exam = %+v", exam)
	}
}

func TestFetchExamNotFound(t *testing.T) {
	client := newBackend(t, sampleExam(), nil)

	_, err := client.FetchExam(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("err = %v, want ErrFetch", err)
	}
	var body *response.ErrorBody
	if !errors.As(err, &body) || body.Code != response.ErrNotFound {
		t.Errorf("err = %v, want NOT_FOUND body", err)
	}
}

func TestFetchExamRejectsInvalidDefinition(t *testing.T) {
	exam := sampleExam()
	exam.PassingMarks = 5
	client := newBackend(t, exam, nil)

	if _, err := client.FetchExam(context.Background(), examID); !errors.Is(err, ErrFetch) {
		t.Fatalf("err = %v, want ErrFetch", err)
	}
}

func TestSubmitReport(t *testing.T) {
	reports := make(chan model.SubmitReportRequest, 1)
	client := newBackend(t, sampleExam(), reports)
	exam := sampleExam()

	result := &model.Result{
		CorrectAnswers: exam.Questions[:1],
		WrongAnswers:   exam.Questions[1:],
		Verdict:        model.VerdictPass,
	}
	if err := client.SubmitReport(context.Background(), examID, "student-7", result); err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}

	got := <-reports
	if got.Exam != examID || got.User != "student-7" {
		t.Errorf("identity = %s/%s", got.Exam, got.User)
	}
	if got.Result.Verdict != model.VerdictPass || len(got.Result.CorrectAnswers) != 1 {
		t.Errorf("result = %+v", got.Result)
	}
}

func TestSubmitReportRejected(t *testing.T) {
	client := newBackend(t, sampleExam(), make(chan model.SubmitReportRequest, 1))

	err := client.SubmitReport(context.Background(), "not-a-uuid", "student-7", &model.Result{Verdict: model.VerdictFail})
	if !errors.Is(err, ErrSubmit) {
		t.Fatalf("err = %v, want ErrSubmit", err)
	}
}

func TestSubmitReportUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 200*time.Millisecond, zerolog.Nop())

	if err := client.SubmitReport(context.Background(), examID, "u", &model.Result{Verdict: model.VerdictFail}); !errors.Is(err, ErrSubmit) {
		t.Fatalf("err = %v, want ErrSubmit", err)
	}
}
