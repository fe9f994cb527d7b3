package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
)

const genericMessage = "scoring service request failed"

// Error is a failed call to the scoring service. Message carries the server's
// own message when it sent one.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("scoring service: %d %s", e.Status, e.Message)
}

// Client talks to the external scoring and persistence service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a scoring Client.
func NewClient(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "scoring_client").Logger(),
	}
}

// FetchCatalog returns the exams offered to a student.
func (c *Client) FetchCatalog(ctx context.Context, studentID int) ([]model.ExamSummary, error) {
	var out []model.ExamSummary
	path := "/students/" + strconv.Itoa(studentID) + "/exams"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchQuestionSet returns the exam header and questions for one mock form.
func (c *Client) FetchQuestionSet(ctx context.Context, examCode, mockTestCode string) (*model.QuestionSet, error) {
	path := "/exams/" + url.PathEscape(examCode) + "/questions"
	if mockTestCode != "" {
		path += "?" + url.Values{"mockTestCode": {mockTestCode}}.Encode()
	}

	var out model.QuestionSet
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit posts a submission. It is never retried.
func (c *Client) Submit(ctx context.Context, payload *model.SubmissionPayload) (*model.SubmitResult, error) {
	var out model.SubmitResult
	if err := c.do(ctx, http.MethodPost, "/submissions", payload, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = genericMessage
		}
		return nil, &Error{Message: msg}
	}
	return &out, nil
}

// FetchAttempt returns the review of a scored attempt.
func (c *Client) FetchAttempt(ctx context.Context, attemptID string) (*model.AttemptDetail, error) {
	var out model.AttemptDetail
	if err := c.do(ctx, http.MethodGet, "/attempts/"+url.PathEscape(attemptID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Scoring request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Status: resp.StatusCode, Message: serverMessage(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// serverMessage extracts {"message"} or {"error"} from an error body.
func serverMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return genericMessage
}
