// Package backend implements the HTTP client for the interview platform REST
// backend: the question provider, answer store, candidate store, photo store,
// and session finalizer.
//
// All submissions from the session controller are best-effort: failures are
// logged and surfaced to the caller but never block the candidate's progress.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/pkg/types"
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Useful for tests and for
// custom transport settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds each backend request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithMetrics attaches a metrics sink. When nil, no metrics are recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// Client talks to the interview platform backend. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observe.Metrics
	log        *slog.Logger
}

// New creates a backend Client rooted at baseURL. baseURL must be non-empty;
// a trailing slash is trimmed.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("backend: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// answerPayload is the wire shape of an answer submission. TimeSpent crosses
// the wire in whole seconds.
type answerPayload struct {
	SessionID   string `json:"hr"`
	QuestionID  int64  `json:"question"`
	CandidateID string `json:"candidate"`
	Text        string `json:"answer_text"`
	Timestamp   string `json:"timestamp"`
	TimeSpent   int    `json:"timeSpent"`
}

// FetchQuestions retrieves the question list for the given session from the
// question provider.
func (c *Client) FetchQuestions(ctx context.Context, sessionID string) ([]types.Question, error) {
	start := time.Now()
	url := fmt.Sprintf("%s/interview/%s/", c.baseURL, sessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: fetch questions: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(ctx, "questions", "error", start)
		return nil, fmt.Errorf("backend: fetch questions HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.record(ctx, "questions", "error", start)
		return nil, fmt.Errorf("backend: fetch questions: unexpected status %d", resp.StatusCode)
	}

	var questions []types.Question
	if err := json.NewDecoder(resp.Body).Decode(&questions); err != nil {
		c.record(ctx, "questions", "error", start)
		return nil, fmt.Errorf("backend: fetch questions decode: %w", err)
	}

	c.record(ctx, "questions", "ok", start)
	return questions, nil
}

// SaveAnswer submits one answer record to the answer store.
func (c *Client) SaveAnswer(ctx context.Context, a types.Answer) error {
	start := time.Now()
	payload := answerPayload{
		SessionID:   a.SessionID,
		QuestionID:  a.QuestionID,
		CandidateID: a.CandidateID,
		Text:        a.Text,
		Timestamp:   a.SubmittedAt.UTC().Format(time.RFC3339),
		TimeSpent:   int(a.TimeSpent.Round(time.Second).Seconds()),
	}

	err := c.postJSON(ctx, c.baseURL+"/answer/", payload)
	if err != nil {
		c.record(ctx, "answer", "error", start)
		if c.metrics != nil {
			c.metrics.RecordAnswerSubmitted(ctx, "error")
		}
		return fmt.Errorf("backend: save answer: %w", err)
	}
	c.record(ctx, "answer", "ok", start)
	if c.metrics != nil {
		c.metrics.RecordAnswerSubmitted(ctx, "ok")
	}
	return nil
}

// CreateCandidate registers a candidate profile with its verification photo
// via multipart upload and returns the profile with the store-assigned ID.
func (c *Client) CreateCandidate(ctx context.Context, p types.CandidateProfile, photoJPEG []byte) (types.CandidateProfile, error) {
	start := time.Now()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"name":       p.Name,
		"technology": p.Technology,
		"experience": p.Experience,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return types.CandidateProfile{}, fmt.Errorf("backend: create candidate: %w", err)
		}
	}
	fw, err := mw.CreateFormFile("photo", uuid.NewString()+".jpg")
	if err != nil {
		return types.CandidateProfile{}, fmt.Errorf("backend: create candidate: %w", err)
	}
	if _, err := fw.Write(photoJPEG); err != nil {
		return types.CandidateProfile{}, fmt.Errorf("backend: create candidate: %w", err)
	}
	if err := mw.Close(); err != nil {
		return types.CandidateProfile{}, fmt.Errorf("backend: create candidate: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/candidate/", &body)
	if err != nil {
		return types.CandidateProfile{}, fmt.Errorf("backend: create candidate: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(ctx, "candidate", "error", start)
		return types.CandidateProfile{}, fmt.Errorf("backend: create candidate HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.record(ctx, "candidate", "error", start)
		return types.CandidateProfile{}, fmt.Errorf("backend: create candidate: unexpected status %d", resp.StatusCode)
	}

	var created types.CandidateProfile
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		c.record(ctx, "candidate", "error", start)
		return types.CandidateProfile{}, fmt.Errorf("backend: create candidate decode: %w", err)
	}

	// The store echoes the submitted fields; keep the locally known values
	// when the response omits them.
	if created.Name == "" {
		created.Name = p.Name
	}
	if created.Technology == "" {
		created.Technology = p.Technology
	}
	if created.Experience == "" {
		created.Experience = p.Experience
	}

	c.record(ctx, "candidate", "ok", start)
	return created, nil
}

// Finalize submits the terminal session state to the session finalizer.
func (c *Client) Finalize(ctx context.Context, sessionID string, summary types.SessionSummary) error {
	start := time.Now()
	url := fmt.Sprintf("%s/hr/%s/", c.baseURL, sessionID)

	buf, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("backend: finalize: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("backend: finalize: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(ctx, "finalize", "error", start)
		return fmt.Errorf("backend: finalize HTTP: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.record(ctx, "finalize", "error", start)
		return fmt.Errorf("backend: finalize: unexpected status %d", resp.StatusCode)
	}

	c.record(ctx, "finalize", "ok", start)
	return nil
}

// UploadPhoto submits one proctoring frame to the photo store via multipart
// upload.
func (c *Client) UploadPhoto(ctx context.Context, sessionID string, jpeg []byte) error {
	start := time.Now()
	url := fmt.Sprintf("%s/photo/%s/", c.baseURL, sessionID)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", uuid.NewString()+".jpg")
	if err != nil {
		return fmt.Errorf("backend: upload photo: %w", err)
	}
	if _, err := fw.Write(jpeg); err != nil {
		return fmt.Errorf("backend: upload photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("backend: upload photo: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("backend: upload photo: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(ctx, "photo", "error", start)
		return fmt.Errorf("backend: upload photo HTTP: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.record(ctx, "photo", "error", start)
		return fmt.Errorf("backend: upload photo: unexpected status %d", resp.StatusCode)
	}

	c.record(ctx, "photo", "ok", start)
	return nil
}

// Ping checks backend reachability for readiness probes. Any HTTP response,
// including an error status, counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("backend: ping: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: ping: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

// postJSON sends a JSON body and checks for a 2xx response.
func (c *Client) postJSON(ctx context.Context, url string, payload any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// record emits the backend latency metric when a sink is attached.
func (c *Client) record(ctx context.Context, endpoint, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordBackendCall(ctx, endpoint, status, time.Since(start).Seconds())
}
