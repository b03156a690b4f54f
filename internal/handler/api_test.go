package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/codegrade-api/internal/config"
	"github.com/noah-isme/codegrade-api/internal/handler"
	"github.com/noah-isme/codegrade-api/internal/middleware"
	"github.com/noah-isme/codegrade-api/internal/models"
	"github.com/noah-isme/codegrade-api/internal/repository"
	"github.com/noah-isme/codegrade-api/internal/router"
	"github.com/noah-isme/codegrade-api/internal/service"
	"github.com/noah-isme/codegrade-api/pkg/payment"
)

const evaluatorReply = `Here is my review:
{
  "public_data": {"score": 78, "strengths": ["readable"], "summary_feedback": "Solid attempt."},
  "premium_data": {"detailed_analysis": "Recursion is exponential.", "bugs_found": ["stack overflow for large n"], "refactored_code": "def fib(n):\n    a, b = 0, 1\n    for _ in range(n):\n        a, b = b, a + b\n    return a"}
}`

type stubGenerator struct {
	mu  sync.Mutex
	raw string
	err error
}

func (s *stubGenerator) Generate(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw, s.err
}

type stubProcessor struct {
	mu    sync.Mutex
	count int
}

func (s *stubProcessor) CreateOrder(_ context.Context, req payment.OrderRequest) (payment.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return payment.Order{ID: fmt.Sprintf("order_%d", s.count), Amount: req.AmountMinorUnits, Currency: req.Currency, Status: "created"}, nil
}

type apiHarness struct {
	app       *fiber.App
	db        *gorm.DB
	signer    *payment.Signer
	generator *stubGenerator
}

type harnessOptions struct {
	jwtSecret  string
	rateLimit  int
	probeError error
}

func newAPIHarness(t *testing.T, opts harnessOptions) *apiHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Task{}, &models.PaymentRecord{}, &models.PaymentOrder{}))

	signer, err := payment.NewSigner("handler-test-secret")
	require.NoError(t, err)

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())
	tasks := repository.NewTaskRepository(db)
	payments := repository.NewPaymentRecordRepository(db)
	orders := repository.NewPaymentOrderRepository(db)
	generator := &stubGenerator{raw: evaluatorReply}

	evaluation := service.NewEvaluationService(tasks, generator, nil, nil, validate, logger, service.EvaluationConfig{Timeout: time.Second})
	intents := service.NewPaymentIntentService(tasks, orders, &stubProcessor{}, logger, service.PaymentIntentConfig{KeyID: "rzp_test_key", Timeout: time.Second})
	verifier := service.NewPaymentVerifier(tasks, payments, orders, signer, nil, nil, validate, logger)
	queries := service.NewTaskQueryService(tasks, payments, nil, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})

	deps := router.Dependencies{
		EvaluationHandler: handler.NewEvaluationHandler(evaluation, logger),
		PaymentHandler:    handler.NewPaymentHandler(intents, verifier, validate, logger),
		TaskHandler:       handler.NewTaskHandler(queries, logger),
		Logger:            logger,
		HealthProbes: map[string]handler.HealthProbe{
			"database": func(ctx context.Context) error {
				if opts.probeError != nil {
					return opts.probeError
				}
				return sqlDB.PingContext(ctx)
			},
		},
	}
	if opts.jwtSecret != "" {
		deps.JWTMiddleware = middleware.JWTIdentity(opts.jwtSecret)
	}
	if opts.rateLimit > 0 {
		deps.EvaluateLimiter = middleware.RateLimit("evaluate", opts.rateLimit, time.Minute)
	}
	router.Register(app, config.Config{AppName: "CodeGrade API", AppEnv: "test"}, deps)

	return &apiHarness{app: app, db: db, signer: signer, generator: generator}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details"`
}

func (h *apiHarness) do(t *testing.T, method, path string, body interface{}, headers ...string) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func (h *apiHarness) submit(t *testing.T, owner string) string {
	t.Helper()
	status, resp := h.do(t, http.MethodPost, "/api/v1/evaluate", map[string]string{
		"ownerId":     owner,
		"title":       "Fibonacci",
		"description": "Return the nth Fibonacci number",
		"language":    "python",
		"code":        "def fib(n):\n    return n if n < 2 else fib(n-1) + fib(n-2)",
	})
	require.Equal(t, fiber.StatusCreated, status, resp.Message)

	var created struct {
		TaskID string `json:"taskId"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	require.NotEmpty(t, created.TaskID)
	return created.TaskID
}

// checkout opens a payment order for the task and returns its id.
func (h *apiHarness) checkout(t *testing.T, taskID, owner string) string {
	t.Helper()
	status, resp := h.do(t, http.MethodPost, "/api/v1/payment/intent?ownerId="+owner, map[string]string{"taskId": taskID})
	require.Equal(t, fiber.StatusOK, status, resp.Message)

	var intent struct {
		OrderID string `json:"orderId"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &intent))
	require.NotEmpty(t, intent.OrderID)
	return intent.OrderID
}

func (h *apiHarness) verifyBody(taskID, owner, orderID, paymentID string) map[string]string {
	return map[string]string{
		"orderId":   orderID,
		"paymentId": paymentID,
		"signature": h.signer.Sign(orderID, paymentID),
		"taskId":    taskID,
		"ownerId":   owner,
	}
}

func (h *apiHarness) isUnlocked(t *testing.T, taskID string) bool {
	t.Helper()
	var task models.Task
	require.NoError(t, h.db.First(&task, "id = ?", taskID).Error)
	return task.Unlocked
}

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)
	schema, err := jsonschema.NewCompiler().Compile("file://" + path)
	require.NoError(t, err)
	return schema
}

func validateAgainst(t *testing.T, schema *jsonschema.Schema, raw json.RawMessage) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NoError(t, schema.Validate(decoded))
	return decoded
}

func TestEvaluateUnlockHappyPath(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	locked := compileSchema(t, "disclosed_view_locked.schema.json")
	unlocked := compileSchema(t, "disclosed_view_unlocked.schema.json")

	taskID := h.submit(t, "user-1")

	status, resp := h.do(t, http.MethodGet, "/api/v1/task/"+taskID+"?ownerId=user-1", nil)
	require.Equal(t, fiber.StatusOK, status)
	view := validateAgainst(t, locked, resp.Data)
	require.Equal(t, float64(78), view["publicFeedback"].(map[string]interface{})["score"])

	status, resp = h.do(t, http.MethodPost, "/api/v1/payment/intent?ownerId=user-1", map[string]interface{}{
		"taskId": taskID,
		"amount": 1,
	})
	require.Equal(t, fiber.StatusOK, status)
	var intent struct {
		OrderID  string `json:"orderId"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		KeyID    string `json:"keyId"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &intent))
	require.Equal(t, int64(service.UnlockPriceMinorUnits), intent.Amount, "client amount is ignored")
	require.Equal(t, "INR", intent.Currency)
	require.Equal(t, "rzp_test_key", intent.KeyID)

	status, resp = h.do(t, http.MethodPost, "/api/v1/payment/verify", h.verifyBody(taskID, "user-1", intent.OrderID, "pay_1"))
	require.Equal(t, fiber.StatusOK, status, resp.Message)
	require.True(t, resp.Success)
	require.True(t, h.isUnlocked(t, taskID))

	status, resp = h.do(t, http.MethodGet, "/api/v1/task/"+taskID+"?ownerId=user-1", nil)
	require.Equal(t, fiber.StatusOK, status)
	view = validateAgainst(t, unlocked, resp.Data)
	premium := view["premiumFeedback"].(map[string]interface{})
	require.Equal(t, "Recursion is exponential.", premium["analysis"])

	status, resp = h.do(t, http.MethodGet, "/api/v1/task/"+taskID+"/payments?ownerId=user-1", nil)
	require.Equal(t, fiber.StatusOK, status)
	var records []struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &records))
	require.Len(t, records, 1)
	require.Equal(t, models.PaymentStatusVerified, records[0].Status)

	status, resp = h.do(t, http.MethodPost, "/api/v1/payment/intent?ownerId=user-1", map[string]string{"taskId": taskID})
	require.Equal(t, fiber.StatusConflict, status)
	require.Equal(t, service.KindAlreadyUnlocked, resp.Error)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	locked := compileSchema(t, "disclosed_view_locked.schema.json")
	taskID := h.submit(t, "user-1")

	body := h.verifyBody(taskID, "user-1", "order_1", "pay_1")
	body["signature"] = "deadbeef"

	status, resp := h.do(t, http.MethodPost, "/api/v1/payment/verify", body)
	require.Equal(t, fiber.StatusBadRequest, status)
	require.False(t, resp.Success)
	require.Equal(t, service.KindInvalidSignature, resp.Error)
	require.False(t, h.isUnlocked(t, taskID))

	status, resp = h.do(t, http.MethodGet, "/api/v1/task/"+taskID+"?ownerId=user-1", nil)
	require.Equal(t, fiber.StatusOK, status)
	validateAgainst(t, locked, resp.Data)

	var failed int64
	require.NoError(t, h.db.Model(&models.PaymentRecord{}).Where("task_id = ? AND status = ?", taskID, models.PaymentStatusFailed).Count(&failed).Error)
	require.Equal(t, int64(1), failed)
}

func TestVerifyRejectsForeignOwner(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	locked := compileSchema(t, "disclosed_view_locked.schema.json")
	taskID := h.submit(t, "user-1")

	orderID := h.checkout(t, taskID, "user-1")
	status, resp := h.do(t, http.MethodPost, "/api/v1/payment/verify", h.verifyBody(taskID, "user-2", orderID, "pay_1"))
	require.Equal(t, fiber.StatusForbidden, status)
	require.Equal(t, service.KindForbidden, resp.Error)
	require.False(t, h.isUnlocked(t, taskID))

	status, resp = h.do(t, http.MethodGet, "/api/v1/task/"+taskID+"?ownerId=user-2", nil)
	require.Equal(t, fiber.StatusOK, status)
	validateAgainst(t, locked, resp.Data)

	status, _ = h.do(t, http.MethodPost, "/api/v1/payment/verify", h.verifyBody(taskID, "user-1", h.checkout(t, taskID, "user-1"), "pay_2"))
	require.Equal(t, fiber.StatusOK, status)

	status, resp = h.do(t, http.MethodGet, "/api/v1/task/"+taskID+"?ownerId=user-2", nil)
	require.Equal(t, fiber.StatusOK, status)
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	require.Equal(t, true, view["unlocked"])
	require.NotContains(t, view, "premiumFeedback")
	require.NotContains(t, view, "code")

	status, resp = h.do(t, http.MethodGet, "/api/v1/task/"+taskID+"/payments?ownerId=user-2", nil)
	require.Equal(t, fiber.StatusForbidden, status)
	require.Equal(t, service.KindForbidden, resp.Error)
}

func TestVerifyReplayIsIdempotent(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	taskID := h.submit(t, "user-1")
	body := h.verifyBody(taskID, "user-1", h.checkout(t, taskID, "user-1"), "pay_1")

	status, first := h.do(t, http.MethodPost, "/api/v1/payment/verify", body)
	require.Equal(t, fiber.StatusOK, status)
	status, second := h.do(t, http.MethodPost, "/api/v1/payment/verify", body)
	require.Equal(t, fiber.StatusOK, status)

	var firstResult, secondResult struct {
		Success  bool `json:"success"`
		Replayed bool `json:"replayed"`
	}
	require.NoError(t, json.Unmarshal(first.Data, &firstResult))
	require.NoError(t, json.Unmarshal(second.Data, &secondResult))
	require.True(t, firstResult.Success)
	require.False(t, firstResult.Replayed)
	require.True(t, secondResult.Success)
	require.True(t, secondResult.Replayed)
}

func TestVerifyUnknownTask(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})

	status, resp := h.do(t, http.MethodPost, "/api/v1/payment/verify", h.verifyBody(uuid.NewString(), "user-1", "order_1", "pay_1"))
	require.Equal(t, fiber.StatusNotFound, status)
	require.Equal(t, service.KindNotFound, resp.Error)
}

func TestVerifiedPaymentUnlocksOnlyItsTask(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	paidTask := h.submit(t, "user-1")
	otherTask := h.submit(t, "user-1")

	body := h.verifyBody(paidTask, "user-1", h.checkout(t, paidTask, "user-1"), "pay_1")
	status, resp := h.do(t, http.MethodPost, "/api/v1/payment/verify", body)
	require.Equal(t, fiber.StatusOK, status, resp.Message)

	body["taskId"] = otherTask
	status, resp = h.do(t, http.MethodPost, "/api/v1/payment/verify", body)
	require.Equal(t, fiber.StatusForbidden, status)
	require.Equal(t, service.KindForbidden, resp.Error)

	require.True(t, h.isUnlocked(t, paidTask))
	require.False(t, h.isUnlocked(t, otherTask))

	var verified int64
	require.NoError(t, h.db.Model(&models.PaymentRecord{}).Where("payment_id = ? AND status = ?", "pay_1", models.PaymentStatusVerified).Count(&verified).Error)
	require.Equal(t, int64(1), verified)
}

func TestPaymentRoutesRejectOversizedTaskID(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	taskID := strings.Repeat("a", 37)

	body := h.verifyBody(taskID, "user-1", "order_1", "pay_1")
	body["signature"] = "deadbeef"
	status, resp := h.do(t, http.MethodPost, "/api/v1/payment/verify", body)
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Equal(t, service.KindValidation, resp.Error)

	status, resp = h.do(t, http.MethodPost, "/api/v1/payment/intent?ownerId=user-1", map[string]string{"taskId": taskID})
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Equal(t, service.KindValidation, resp.Error)
}

func TestEvaluateFailureStoresNothing(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	h.generator.err = errors.New("upstream timeout")

	status, resp := h.do(t, http.MethodPost, "/api/v1/evaluate", map[string]string{
		"ownerId":     "user-1",
		"title":       "Fibonacci",
		"description": "Return the nth Fibonacci number",
		"language":    "python",
		"code":        "print(1)",
	})
	require.Equal(t, fiber.StatusBadGateway, status)
	require.Equal(t, service.KindEvaluationFailure, resp.Error)

	h.generator.err = nil
	h.generator.raw = "I refuse to answer in JSON."
	status, resp = h.do(t, http.MethodPost, "/api/v1/evaluate", map[string]string{
		"ownerId":     "user-1",
		"title":       "Fibonacci",
		"description": "Return the nth Fibonacci number",
		"language":    "python",
		"code":        "print(1)",
	})
	require.Equal(t, fiber.StatusBadGateway, status)
	require.JSONEq(t, `{"reason":"no json object found"}`, string(resp.Details))

	var count int64
	require.NoError(t, h.db.Model(&models.Task{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEvaluateValidation(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})

	status, resp := h.do(t, http.MethodPost, "/api/v1/evaluate", map[string]string{
		"ownerId":  "user-1",
		"language": "cobol",
		"code":     "DISPLAY 'HI'.",
	})
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Equal(t, service.KindValidation, resp.Error)

	var details []struct {
		Field string `json:"field"`
		Rule  string `json:"rule"`
	}
	require.NoError(t, json.Unmarshal(resp.Details, &details))
	fields := map[string]string{}
	for _, d := range details {
		fields[d.Field] = d.Rule
	}
	require.Equal(t, "required", fields["Title"])
	require.Equal(t, "oneof", fields["Language"])
}

func TestBearerSubjectOverridesOwnerField(t *testing.T) {
	const secret = "api-jwt-secret"
	h := newAPIHarness(t, harnessOptions{jwtSecret: secret})

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-9"}).SignedString([]byte(secret))
	require.NoError(t, err)
	auth := []string{"Authorization", "Bearer " + token}

	status, resp := h.do(t, http.MethodPost, "/api/v1/evaluate", map[string]string{
		"ownerId":     "someone-else",
		"title":       "Sum",
		"description": "Add two numbers",
		"language":    "go",
		"code":        "func add(a, b int) int { return a + b }",
	}, auth...)
	require.Equal(t, fiber.StatusCreated, status)

	status, resp = h.do(t, http.MethodGet, "/api/v1/tasks", nil, auth...)
	require.Equal(t, fiber.StatusOK, status)
	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &items))
	require.Len(t, items, 1)

	status, resp = h.do(t, http.MethodGet, "/api/v1/tasks?ownerId=someone-else", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(resp.Data, &items))
	require.Empty(t, items)

	status, _ = h.do(t, http.MethodGet, "/api/v1/tasks", nil, "Authorization", "Bearer not-a-token")
	require.Equal(t, fiber.StatusUnauthorized, status)
}

func TestTaskListAndSummary(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	first := h.submit(t, "user-1")
	h.submit(t, "user-1")
	h.submit(t, "user-2")

	status, resp := h.do(t, http.MethodPost, "/api/v1/payment/verify", h.verifyBody(first, "user-1", h.checkout(t, first, "user-1"), "pay_1"))
	require.Equal(t, fiber.StatusOK, status)

	status, resp = h.do(t, http.MethodGet, "/api/v1/tasks?ownerId=user-1&pageSize=1", nil)
	require.Equal(t, fiber.StatusOK, status)
	var meta struct {
		PageSize   int   `json:"pageSize"`
		TotalItems int64 `json:"totalItems"`
		TotalPages int   `json:"totalPages"`
	}
	require.NoError(t, json.Unmarshal(resp.Meta, &meta))
	require.Equal(t, 1, meta.PageSize)
	require.Equal(t, int64(2), meta.TotalItems)
	require.Equal(t, 2, meta.TotalPages)

	status, resp = h.do(t, http.MethodGet, "/api/v1/tasks/summary?ownerId=user-1", nil)
	require.Equal(t, fiber.StatusOK, status)
	var summary struct {
		Total        int64   `json:"total"`
		Unlocked     int64   `json:"unlocked"`
		AverageScore float64 `json:"averageScore"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	require.Equal(t, int64(2), summary.Total)
	require.Equal(t, int64(1), summary.Unlocked)
	require.InDelta(t, 78, summary.AverageScore, 0.001)

	status, resp = h.do(t, http.MethodGet, "/api/v1/tasks", nil)
	require.Equal(t, fiber.StatusUnauthorized, status)

	status, resp = h.do(t, http.MethodGet, "/api/v1/tasks?ownerId=user-1&page=two", nil)
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Equal(t, service.KindValidation, resp.Error)
}

func TestEvaluateIsRateLimited(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{rateLimit: 1})
	h.submit(t, "user-1")

	status, resp := h.do(t, http.MethodPost, "/api/v1/evaluate", map[string]string{"ownerId": "user-1"})
	require.Equal(t, fiber.StatusTooManyRequests, status)
	require.Equal(t, "rate_limited", resp.Error)
}

func TestHealthReportsDependencies(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	status, resp := h.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, fiber.StatusOK, status)

	var health handler.HealthResponse
	require.NoError(t, json.Unmarshal(resp.Data, &health))
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "CodeGrade API", health.Service)
	require.Equal(t, "ok", health.Dependencies["database"])
	require.WithinDuration(t, time.Now().UTC(), health.Timestamp, 5*time.Second)

	degraded := newAPIHarness(t, harnessOptions{probeError: errors.New("dial tcp db.internal:5432: connection refused")})
	status, resp = degraded.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, fiber.StatusServiceUnavailable, status)
	require.False(t, resp.Success)

	require.NoError(t, json.Unmarshal(resp.Data, &health))
	require.Equal(t, "degraded", health.Status)
	require.Equal(t, "unavailable", health.Dependencies["database"])
	require.NotContains(t, string(resp.Data), "db.internal")
}
