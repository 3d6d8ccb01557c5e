package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/comdex/comdexapi/internal/gateway"
	"github.com/comdex/comdexapi/internal/inflight"
	"github.com/comdex/comdexapi/internal/service"
	"github.com/comdex/comdexapi/pkg/utils/audit"
	"github.com/comdex/comdexapi/pkg/utils/response"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func postJSON(target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestInvestRequest_AmountNumberOrString(t *testing.T) {
	for _, body := range []string{
		`{"index_id":1,"amount":100}`,
		`{"index_id":1,"amount":"100"}`,
		`{"index_id":1,"amount":100.50}`,
	} {
		c, _ := postJSON("/api/investments", body)
		var req investRequest
		if err := c.Bind(&req); err != nil {
			t.Fatalf("%s: bind: %v", body, err)
		}
		if req.IndexID != 1 || req.Amount.LessThan(decimal.NewFromInt(100)) {
			t.Fatalf("%s: req=%+v", body, req)
		}
	}

	c, _ := postJSON("/api/investments", `{"index_id":1,"amount":"lots"}`)
	var req investRequest
	if err := c.Bind(&req); err == nil {
		t.Fatalf("non-numeric amount bound as %s", req.Amount)
	}
}

func TestAddCredits_AmountNumberOrString(t *testing.T) {
	for _, body := range []string{`{"amount":100}`, `{"amount":"100"}`} {
		t.Run(body, func(t *testing.T) {
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var in struct {
					Amount decimal.Decimal `json:"amount"`
				}
				if err := json.NewDecoder(r.Body).Decode(&in); err != nil || !in.Amount.Equal(decimal.NewFromInt(100)) {
					t.Errorf("backend amount=%s err=%v", in.Amount, err)
				}
				_, _ = io.WriteString(w, `{"credits":"350.00"}`)
			}))
			defer backend.Close()

			gw := gateway.NewClient(backend.URL, 5*time.Second)
			h := NewAccountHandler(service.NewAccountService(gw, inflight.NewMemoryGuard(0), audit.Discard{}))

			c, rec := postJSON("/api/account/credits/add", body)
			c.Set(SessionKey, &service.UserSession{UserID: 7, Backend: gateway.NewSession("tok", "")})
			if err := h.AddCredits(c); err != nil {
				t.Fatalf("AddCredits: %v", err)
			}
			if rec.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
			}
			var out response.Response
			if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || out.Status != "success" {
				t.Fatalf("body=%s err=%v", rec.Body.String(), err)
			}
		})
	}
}

func TestAddCredits_BadBody(t *testing.T) {
	h := NewAccountHandler(service.NewAccountService(gateway.NewClient("http://127.0.0.1:1/", time.Second), inflight.NewMemoryGuard(0), audit.Discard{}))

	c, rec := postJSON("/api/account/credits/add", `{"amount":true}`)
	c.Set(SessionKey, &service.UserSession{UserID: 7, Backend: gateway.NewSession("tok", "")})
	if err := h.AddCredits(c); err != nil {
		t.Fatalf("AddCredits: %v", err)
	}
	var out response.Response
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if rec.Code != http.StatusBadRequest || out.ErrorType != "InputException" || out.Field != "body" {
		t.Fatalf("status=%d body=%+v", rec.Code, out)
	}
}
