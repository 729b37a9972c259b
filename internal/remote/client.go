// Package remote talks to the exam backend's REST API on behalf of a
// candidate session.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

var (
	// ErrFetch wraps every failure to load an exam definition.
	ErrFetch = errors.New("fetch exam")
	// ErrSubmit wraps every failure to persist a report.
	ErrSubmit = errors.New("submit report")
)

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// Client calls the backend API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a Client for the API rooted at baseURL, e.g.
// "http://localhost:8080/api/v1".
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "remote").Logger(),
	}
}

// envelope mirrors response.Response with the payload left raw.
type envelope struct {
	Data     json.RawMessage     `json:"data"`
	Error    *response.ErrorBody `json:"error"`
	Metadata response.Metadata   `json:"metadata"`
}

// FetchExam loads and validates an exam definition.
func (c *Client) FetchExam(ctx context.Context, examID string) (*model.ExamDefinition, error) {
	var exam model.ExamDefinition
	if err := c.do(ctx, http.MethodGet, "/exams/"+url.PathEscape(examID), nil, &exam); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrFetch, examID, err)
	}
	if err := validator.Struct(&exam); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrFetch, examID, err)
	}
	if exam.ID != examID {
		return nil, fmt.Errorf("%w %s: backend returned exam %s", ErrFetch, examID, exam.ID)
	}

	c.log.Debug().Str("exam_id", examID).Int("questions", exam.QuestionCount()).Msg("Exam fetched")
	return &exam, nil
}

// SubmitReport posts a scored result.
func (c *Client) SubmitReport(ctx context.Context, examID, userID string, result *model.Result) error {
	if result == nil {
		return fmt.Errorf("%w: nil result", ErrSubmit)
	}
	req := model.SubmitReportRequest{
		Exam: examID,
		User: userID,
		Result: model.ReportResult{
			CorrectAnswers: result.CorrectAnswers,
			WrongAnswers:   result.WrongAnswers,
			Verdict:        result.Verdict,
		},
	}
	if err := c.do(ctx, http.MethodPost, "/reports", req, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrSubmit, err)
	}

	c.log.Info().Str("exam_id", examID).Str("user_id", userID).Str("verdict", string(result.Verdict)).Msg("Report accepted")
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest || env.Error != nil {
		if env.Error == nil {
			env.Error = &response.ErrorBody{Code: response.ErrInternal, Message: http.StatusText(resp.StatusCode)}
		}
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("code", string(env.Error.Code)).
			Str("request_id", env.Metadata.RequestID).
			Msg("Backend rejected request")
		return env.Error
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
