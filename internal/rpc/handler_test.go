package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/merchant"
	"paygate/internal/observability"
)

func newTestRouter(t *testing.T) (*gin.Engine, *merchant.MemoryOrderStore, *merchant.MemoryTransactionStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orders := merchant.NewMemoryOrderStore()
	txns := merchant.NewMemoryTransactionStore()
	svc := merchant.NewService(merchant.ServiceConfig{
		Orders:       orders,
		Transactions: txns,
	})
	auth := merchant.NewCredentialValidator(merchant.CredentialConfig{
		MerchantID: "Paycom",
		Key:        "top-secret",
	})
	handler := NewHandler(auth, svc, observability.NewMetrics(), nil)

	router := gin.New()
	handler.Register(router)
	return router, orders, txns
}

func authHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte("Paycom:top-secret"))
}

func call(t *testing.T, router *gin.Engine, header, body string) Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments/merchant", bytes.NewBufferString(body))
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func rpcBody(id int, method string, params string) string {
	return fmt.Sprintf(`{"id":%d,"method":%q,"params":%s}`, id, method, params)
}

func TestHandler_Unauthorized(t *testing.T) {
	router, _, _ := newTestRouter(t)

	for name, header := range map[string]string{
		"missing":      "",
		"wrong scheme": "Bearer xyz",
		"bad key":      "Basic " + base64.StdEncoding.EncodeToString([]byte("Paycom:wrong")),
		"bad merchant": "Basic " + base64.StdEncoding.EncodeToString([]byte("Other:top-secret")),
	} {
		t.Run(name, func(t *testing.T) {
			resp := call(t, router, header, rpcBody(1, "CheckTransaction", `{"id":"t1"}`))
			require.NotNil(t, resp.Error)
			assert.Equal(t, merchant.CodeUnauthorized, resp.Error.Code)
		})
	}
}

func TestHandler_ParseError(t *testing.T) {
	router, _, _ := newTestRouter(t)

	resp := call(t, router, authHeader(), `{"id":1,"method":`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, merchant.CodeParseError, resp.Error.Code)
}

func TestHandler_BadParams(t *testing.T) {
	router, _, _ := newTestRouter(t)

	resp := call(t, router, authHeader(), rpcBody(1, "GetStatement", `{"from":"not-a-number"}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, merchant.CodeParseError, resp.Error.Code)
}

func TestHandler_MethodNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	resp := call(t, router, authHeader(), rpcBody(7, "ExplodeTransaction", `{}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, merchant.CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, json.RawMessage("7"), resp.ID)
}

func TestHandler_ValidationOrder(t *testing.T) {
	router, orders, _ := newTestRouter(t)
	orders.AddOrder(merchant.Order{ID: "o1", Amount: 100000, Status: merchant.OrderPending})

	// Unknown order outranks the amount mismatch.
	resp := call(t, router, authHeader(),
		rpcBody(1, "CheckPerformTransaction", `{"amount":1,"account":{"orderId":"missing"}}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, merchant.CodeOrderNotFound, resp.Error.Code)

	resp = call(t, router, authHeader(),
		rpcBody(2, "CheckPerformTransaction", `{"amount":1,"account":{"orderId":"o1"}}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, merchant.CodeInvalidAmount, resp.Error.Code)
}

func TestHandler_FullPaymentFlow(t *testing.T) {
	router, orders, _ := newTestRouter(t)
	orders.AddOrder(merchant.Order{ID: "o1", Amount: 250000, Status: merchant.OrderPending})

	resp := call(t, router, authHeader(),
		rpcBody(1, "CheckPerformTransaction", `{"amount":250000,"account":{"orderId":"o1"}}`))
	require.Nil(t, resp.Error)

	var check merchant.CheckPerformResult
	remarshal(t, resp.Result, &check)
	assert.True(t, check.Allow)

	resp = call(t, router, authHeader(),
		rpcBody(2, "CreateTransaction", `{"id":"txn-1","time":1700000000000,"amount":250000,"account":{"orderId":"o1"}}`))
	require.Nil(t, resp.Error)

	var created merchant.CreateResult
	remarshal(t, resp.Result, &created)
	assert.Equal(t, "txn-1", created.Transaction)
	assert.Equal(t, merchant.StatePending, created.State)
	assert.NotZero(t, created.CreateTime)

	resp = call(t, router, authHeader(), rpcBody(3, "PerformTransaction", `{"id":"txn-1"}`))
	require.Nil(t, resp.Error)

	var performed merchant.PerformResult
	remarshal(t, resp.Result, &performed)
	assert.Equal(t, merchant.StatePerformed, performed.State)
	assert.NotZero(t, performed.PerformTime)

	order, err := orders.FindOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, merchant.OrderPaid, order.Status)

	resp = call(t, router, authHeader(), rpcBody(4, "CheckTransaction", `{"id":"txn-1"}`))
	require.Nil(t, resp.Error)

	var status merchant.CheckResult
	remarshal(t, resp.Result, &status)
	assert.Equal(t, merchant.StatePerformed, status.State)
	assert.Equal(t, performed.PerformTime, status.PerformTime)
	assert.Nil(t, status.Reason)

	resp = call(t, router, authHeader(),
		rpcBody(5, "GetStatement", fmt.Sprintf(`{"from":%d,"to":%d}`, status.CreateTime-1, status.CreateTime+1)))
	require.Nil(t, resp.Error)

	var stmt merchant.StatementResult
	remarshal(t, resp.Result, &stmt)
	require.Len(t, stmt.Transactions, 1)
	assert.Equal(t, "txn-1", stmt.Transactions[0].Transaction)
	assert.Equal(t, "o1", stmt.Transactions[0].Account.OrderID)
}

func TestHandler_CancelAfterPerform(t *testing.T) {
	router, orders, _ := newTestRouter(t)
	orders.AddOrder(merchant.Order{ID: "o1", Amount: 5000, Status: merchant.OrderPending})

	call(t, router, authHeader(),
		rpcBody(1, "CreateTransaction", `{"id":"txn-1","time":1,"amount":5000,"account":{"orderId":"o1"}}`))
	call(t, router, authHeader(), rpcBody(2, "PerformTransaction", `{"id":"txn-1"}`))

	resp := call(t, router, authHeader(), rpcBody(3, "CancelTransaction", `{"id":"txn-1","reason":5}`))
	require.Nil(t, resp.Error)

	var cancelled merchant.CancelResult
	remarshal(t, resp.Result, &cancelled)
	assert.Equal(t, merchant.StateCancelledAfterPaid, cancelled.State)

	order, err := orders.FindOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, merchant.OrderRefunded, order.Status)
}

func TestHandler_TransactionNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	resp := call(t, router, authHeader(), rpcBody(1, "PerformTransaction", `{"id":"ghost"}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, merchant.CodeTransactionNotFound, resp.Error.Code)
}

// remarshal converts the generically decoded result into its typed form.
func remarshal(t *testing.T, from any, into any) {
	t.Helper()
	raw, err := json.Marshal(from)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, into))
}

func TestRateLimiter_AdmitsWithinBurst(t *testing.T) {
	limiter := NewRateLimiter(time.Second, 2)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx))
	require.NoError(t, limiter.Wait(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, limiter.Wait(cancelled))
}

func TestRateLimiter_Refills(t *testing.T) {
	limiter := NewRateLimiter(100*time.Millisecond, 1)
	base := time.Unix(0, 0)
	current := base
	limiter.now = func() time.Time { return current }
	limiter.last = base
	limiter.tokens = 0
	limiter.sleep = func(ctx context.Context, d time.Duration) error {
		current = current.Add(d)
		return nil
	}

	require.NoError(t, limiter.Wait(context.Background()))
	assert.Equal(t, 0, limiter.tokens)
}

func TestRateLimitMiddleware_Rejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(time.Hour, 1)
	limiter.tokens = 0
	limiter.sleep = func(ctx context.Context, d time.Duration) error {
		return context.DeadlineExceeded
	}

	router := gin.New()
	router.Use(RateLimitMiddleware(limiter))
	router.POST("/payments/merchant", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/payments/merchant", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
