// Package trivia talks to the Open Trivia DB question provider.
package trivia

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"trivia-quiz-service/internal/domain"
)

const (
	DefaultBaseURL      = "https://opentdb.com"
	DefaultRequestDelay = time.Second

	codeSuccess         = 0
	codeNoResults       = 1
	codeInvalidParam    = 2
	codeTokenNotFound   = domain.ResponseCodeTokenNotFound
	codeTokenEmpty      = domain.ResponseCodeTokenEmpty
	codeRateLimit       = 5
	noResponseCode      = -1
	maxErrorBodyPreview = 256
)

// Client fetches session tokens, categories and question batches. It keeps no cache;
// callers decide what to persist.
type Client struct {
	client       *http.Client
	baseURL      string
	requestDelay time.Duration
	retry        RetryPolicy
	sleep        SleepFunc
	logger       *zap.SugaredLogger
}

type Option func(*Client)

func WithBaseURL(raw string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(raw, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithRequestDelay sets the fixed pause taken before every question request.
func WithRequestDelay(d time.Duration) Option {
	return func(c *Client) { c.requestDelay = d }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithSleep replaces the wait used for request delays and backoff.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

func NewClient(logger *zap.SugaredLogger, opts ...Option) *Client {
	c := &Client{
		client:       &http.Client{Timeout: 10 * time.Second},
		baseURL:      DefaultBaseURL,
		requestDelay: DefaultRequestDelay,
		retry:        DefaultRetryPolicy(),
		sleep:        sleepContext,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenResponse struct {
	ResponseCode    int    `json:"response_code"`
	ResponseMessage string `json:"response_message"`
	Token           string `json:"token"`
}

type questionsResponse struct {
	ResponseCode int `json:"response_code"`
	Results      []struct {
		Type             string   `json:"type"`
		Difficulty       string   `json:"difficulty"`
		Category         string   `json:"category"`
		Question         string   `json:"question"`
		CorrectAnswer    string   `json:"correct_answer"`
		IncorrectAnswers []string `json:"incorrect_answers"`
	} `json:"results"`
}

// AcquireToken requests a new provider session token.
func (c *Client) AcquireToken(ctx context.Context) (string, error) {
	var res tokenResponse
	if err := c.getJSON(ctx, "/api_token.php", url.Values{"command": {"request"}}, &res); err != nil {
		return "", &domain.TokenError{Err: err}
	}
	if res.ResponseCode != codeSuccess || res.Token == "" {
		return "", &domain.TokenError{Err: fmt.Errorf("provider returned response code %d", res.ResponseCode)}
	}
	c.logger.Debugw("acquired session token")
	return res.Token, nil
}

// ResetToken clears the provider's record of served questions for token.
func (c *Client) ResetToken(ctx context.Context, token string) (string, error) {
	var res tokenResponse
	query := url.Values{"command": {"reset"}, "token": {token}}
	if err := c.getJSON(ctx, "/api_token.php", query, &res); err != nil {
		return "", &domain.TokenError{Err: err}
	}
	if res.ResponseCode != codeSuccess {
		return "", &domain.TokenError{Err: fmt.Errorf("reset returned response code %d", res.ResponseCode)}
	}
	if res.Token == "" {
		return token, nil
	}
	return res.Token, nil
}

// Categories lists the provider's categories.
func (c *Client) Categories(ctx context.Context) ([]domain.Category, error) {
	var res struct {
		TriviaCategories []domain.Category `json:"trivia_categories"`
	}
	if err := c.getJSON(ctx, "/api_category.php", nil, &res); err != nil {
		return nil, fmt.Errorf("fetch categories: %w", err)
	}
	return res.TriviaCategories, nil
}

// FetchBatch fetches exactly params.Amount multiple-choice questions. Only rate
// limiting is retried, bounded by the retry policy; every other failure is returned
// as a *domain.FetchError on first sight.
func (c *Client) FetchBatch(ctx context.Context, params domain.QuizParams, token string) (domain.QuestionBatch, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("amount", strconv.Itoa(params.Amount))
	query.Set("category", strconv.Itoa(params.CategoryID))
	query.Set("difficulty", string(params.Difficulty))
	query.Set("type", "multiple")
	if token != "" {
		query.Set("token", token)
	}

	attempts := c.retry.attempts()
	lastCode := noResponseCode
	for attempt := 0; attempt < attempts; attempt++ {
		if err := c.sleep(ctx, c.requestDelay); err != nil {
			return nil, &domain.FetchError{Reason: domain.ErrUnknownResponse, ResponseCode: noResponseCode, Attempts: attempt, Err: err}
		}

		payload, limited, err := c.requestQuestions(ctx, query)
		if err != nil {
			return nil, &domain.FetchError{Reason: domain.ErrUnknownResponse, ResponseCode: noResponseCode, Attempts: attempt + 1, Err: err}
		}
		if !limited {
			return toBatch(payload, params.Amount, attempt+1)
		}

		lastCode = noResponseCode
		if payload != nil {
			lastCode = payload.ResponseCode
		}
		if attempt == attempts-1 {
			break
		}
		wait := c.retry.Backoff(attempt)
		c.logger.Warnw("rate limited by trivia provider, backing off", "attempt", attempt+1, "wait", wait)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, &domain.FetchError{Reason: domain.ErrUnknownResponse, ResponseCode: lastCode, Attempts: attempt + 1, Err: err}
		}
	}

	return nil, &domain.FetchError{Reason: domain.ErrRateLimited, ResponseCode: lastCode, Attempts: attempts}
}

// requestQuestions performs one request. limited reports a rate-limit signal, either
// HTTP 429 or the provider's rate limit response code.
func (c *Client) requestQuestions(ctx context.Context, query url.Values) (*questionsResponse, bool, error) {
	resp, err := c.get(ctx, "/api.php", query)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, statusError(resp)
	}

	var payload questionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("decode questions: %w", err)
	}
	if payload.ResponseCode == codeRateLimit {
		return &payload, true, nil
	}
	return &payload, false, nil
}

func toBatch(payload *questionsResponse, amount, attempts int) (domain.QuestionBatch, error) {
	fail := func(reason error) (domain.QuestionBatch, error) {
		return nil, &domain.FetchError{Reason: reason, ResponseCode: payload.ResponseCode, Attempts: attempts}
	}

	switch payload.ResponseCode {
	case codeSuccess:
	case codeNoResults:
		return fail(domain.ErrNoQuestionsAvailable)
	case codeInvalidParam:
		return fail(domain.ErrInvalidParameters)
	case codeTokenNotFound, codeTokenEmpty:
		return fail(domain.ErrTokenExhausted)
	default:
		return fail(domain.ErrUnknownResponse)
	}

	if len(payload.Results) < amount {
		return fail(domain.ErrNoQuestionsAvailable)
	}

	batch := make(domain.QuestionBatch, 0, amount)
	for _, r := range payload.Results[:amount] {
		incorrect := make([]string, len(r.IncorrectAnswers))
		for i, a := range r.IncorrectAnswers {
			incorrect[i] = html.UnescapeString(a)
		}
		batch = append(batch, domain.Question{
			Text:             html.UnescapeString(r.Question),
			CorrectAnswer:    html.UnescapeString(r.CorrectAnswer),
			IncorrectAnswers: incorrect,
			Category:         html.UnescapeString(r.Category),
			Difficulty:       r.Difficulty,
		})
	}
	return batch, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.logger.Debugw("trivia provider request", "path", path)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.get(ctx, path, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyPreview))
	return fmt.Errorf("server returned bad http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
