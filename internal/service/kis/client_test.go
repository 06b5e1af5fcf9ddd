package kis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AutoTrade/internal/domain/models"
	"AutoTrade/internal/service/ratelimit"
	xhttp "AutoTrade/pkg/http"
	applogger "AutoTrade/pkg/logger"
)

type fakeKIS struct {
	grants int32
	token  string
	api    http.HandlerFunc
}

func (f *fakeKIS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth2/tokenP" {
		atomic.AddInt32(&f.grants, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(f.token))
		return
	}
	f.api(w, r)
}

func newFakeKIS(t *testing.T, api http.HandlerFunc) (*fakeKIS, *httptest.Server) {
	f := &fakeKIS{token: `{"access_token":"tok","token_type":"Bearer","expires_in":86400}`, api: api}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestClient(srv *httptest.Server, simulate bool) *Client {
	c := NewClient(Config{
		AppKey:        "key",
		AppSecret:     "secret",
		AccountNumber: "12345678",
		AccountCode:   "01",
		Simulate:      simulate,
		BaseURL:       srv.URL,
		Timeout:       2 * time.Second,
		BackoffBase:   time.Millisecond,
		BackoffMax:    5 * time.Millisecond,
		Location:      time.UTC,
	}, ratelimit.New(), nil, applogger.Nop())
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return c
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func success(extra map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{"rt_cd": "0", "msg_cd": "MCA00000", "msg1": "정상처리 되었습니다."}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func TestAuthenticateCachesToken(t *testing.T) {
	f, srv := newFakeKIS(t, nil)
	c := newTestClient(srv, false)

	tok, err := c.Authenticate(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok.Value)
	assert.Equal(t, "Bearer", tok.Type)

	_, err = c.Authenticate(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.grants))

	_, err = c.Authenticate(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.grants))
}

func TestAuthenticateRefreshesInsideSkew(t *testing.T) {
	f, srv := newFakeKIS(t, nil)
	f.token = `{"access_token":"tok","token_type":"Bearer","expires_in":120}`
	c := newTestClient(srv, false)

	for i := 0; i < 3; i++ {
		_, err := c.Authenticate(context.Background(), false)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&f.grants))
}

func TestAuthenticateDefaultsExpiry(t *testing.T) {
	f, srv := newFakeKIS(t, nil)
	f.token = `{"access_token":"tok","token_type":"Bearer"}`
	c := newTestClient(srv, false)
	now := time.Date(2024, 10, 10, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	tok, err := c.Authenticate(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour), tok.ExpiresAt)
}

func TestAuthenticateMalformed(t *testing.T) {
	f, srv := newFakeKIS(t, nil)
	f.token = `{"token_type":"Bearer"}`
	c := newTestClient(srv, false)

	_, err := c.Authenticate(context.Background(), false)
	var ae *AuthenticationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "auth", Kind(err))
}

func TestRequestHeadersAndPrefix(t *testing.T) {
	var got http.Header
	_, srv := newFakeKIS(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		assert.Equal(t, "12345678", r.URL.Query().Get("CANO"))
		assert.Equal(t, "02", r.URL.Query().Get("INQR_DVSN"))
		writeJSON(w, success(map[string]interface{}{
			"output1": []map[string]string{
				{"pdno": "005930", "prdt_name": "삼성전자", "hldg_qty": "10", "ord_psbl_qty": "8", "pchs_avg_pric": "70000.0000", "prpr": "71000"},
				{"pdno": "000660", "prdt_name": "SK하이닉스", "hldg_qty": "0", "ord_psbl_qty": "0", "pchs_avg_pric": "0", "prpr": "0"},
			},
		}))
	})
	c := newTestClient(srv, true)

	holdings, err := c.DomesticBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "VTTC8434R", got.Get("tr_id"))
	assert.Equal(t, "Bearer tok", got.Get("authorization"))
	assert.Equal(t, "key", got.Get("appkey"))
	assert.Equal(t, "secret", got.Get("appsecret"))

	require.Len(t, holdings, 1)
	h := holdings["005930"]
	assert.Equal(t, int64(10), h.Quantity)
	assert.Equal(t, int64(8), h.Orderable)
	assert.True(t, h.AverageCost.Equal(decimal.NewFromInt(70000)))
}

func TestRequestRetriesTimeout(t *testing.T) {
	var calls int32
	_, srv := newFakeKIS(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		writeJSON(w, success(map[string]interface{}{"output": []interface{}{}}))
	})
	c := newTestClient(srv, false)
	c.http = xhttp.NewClient(xhttp.WithBaseURL(srv.URL), xhttp.WithTimeout(100*time.Millisecond))

	_, err := c.Calendar(context.Background(), time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEveryAttemptTakesAPacerSlot(t *testing.T) {
	const callDelay = 200 * time.Millisecond
	var (
		mu      sync.Mutex
		arrived []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrived = append(arrived, time.Now())
		n := len(arrived)
		mu.Unlock()
		if r.URL.Path == "/oauth2/tokenP" {
			writeJSON(w, map[string]interface{}{"access_token": "tok", "token_type": "Bearer", "expires_in": 86400})
			return
		}
		if n == 2 {
			time.Sleep(150 * time.Millisecond)
		}
		writeJSON(w, success(map[string]interface{}{"output": []interface{}{}}))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(srv, false)
	c.http = xhttp.NewClient(xhttp.WithBaseURL(srv.URL), xhttp.WithTimeout(50*time.Millisecond))
	c.pacer = ratelimit.NewPacer(ratelimit.New(), "kis", callDelay)

	_, err := c.Calendar(context.Background(), time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	// token grant, timed-out attempt, retry
	require.Len(t, arrived, 3)
	const slack = 10 * time.Millisecond
	assert.GreaterOrEqual(t, arrived[1].Sub(arrived[0]), callDelay-slack)
	assert.GreaterOrEqual(t, arrived[2].Sub(arrived[1]), callDelay-slack)
}

func TestConcurrentRequestsShareOneGrant(t *testing.T) {
	f, srv := newFakeKIS(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, success(map[string]interface{}{"output": []interface{}{}}))
	})
	c := newTestClient(srv, false)
	c.token = &Token{Value: "stale", Type: "Bearer", ExpiresAt: time.Now().Add(-time.Minute)}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Calendar(context.Background(), time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.grants))
}

func TestBrokerRoutesEachMarketToItsAccount(t *testing.T) {
	var (
		mu     sync.Mutex
		byPath = map[string][]string{}
	)
	_, srv := newFakeKIS(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		byPath[r.URL.Path] = append(byPath[r.URL.Path], r.URL.Query().Get("CANO"))
		mu.Unlock()
		writeJSON(w, success(map[string]interface{}{"output1": []interface{}{}}))
	})
	kor := newTestClient(srv, false)
	usa := newTestClient(srv, false)
	usa.cfg.AccountNumber = "87654321"
	b := NewBroker(kor, map[models.Country]*Client{models.USA: usa})

	_, err := b.Holdings(context.Background(), models.KOR)
	require.NoError(t, err)
	_, err = b.Holdings(context.Background(), models.USA)
	require.NoError(t, err)

	assert.Equal(t, []string{"12345678"}, byPath[pathDomesticBalance])
	require.NotEmpty(t, byPath[pathOverseasBalance])
	for _, cano := range byPath[pathOverseasBalance] {
		assert.Equal(t, "87654321", cano)
	}
}

func TestBrokerFallsBackToDefaultAccount(t *testing.T) {
	_, srv := newFakeKIS(t, nil)
	def := newTestClient(srv, false)
	b := NewBroker(def, nil)
	assert.Same(t, def, b.client(models.JPN))
	assert.Same(t, def, b.client(models.KOR))
}

func TestRequestRateLimited(t *testing.T) {
	var calls int32
	_, srv := newFakeKIS(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c := newTestClient(srv, false)

	_, err := c.Calendar(context.Background(), time.Now())
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, IsRetryable(&ResponseError{StatusCode: 500}))
}

func TestRequestHTTPErrorNotRetried(t *testing.T) {
	var calls int32
	_, srv := newFakeKIS(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})
	c := newTestClient(srv, false)

	_, err := c.Calendar(context.Background(), time.Now())
	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 500, re.StatusCode)
	assert.Equal(t, "boom", re.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPaginateWalksContinuation(t *testing.T) {
	var trConts []string
	_, srv := newFakeKIS(t, func(w http.ResponseWriter, r *http.Request) {
		trConts = append(trConts, r.Header.Get("tr_cont"))
		assert.Equal(t, "TTTC0081R", r.Header.Get("tr_id"))
		var (
			next string
			row  map[string]string
		)
		switch r.URL.Query().Get("CTX_AREA_NK100") {
		case "":
			next, row = "F", map[string]string{"odno": "1", "pdno": "005930", "sll_buy_dvsn_cd": "02", "tot_ccld_qty": "3", "avg_prvs": "70000", "ord_dt": "20241010"}
		case "p2":
			next, row = "M", map[string]string{"odno": "2", "pdno": "005930", "sll_buy_dvsn_cd": "01", "tot_ccld_qty": "1", "avg_prvs": "77000", "ord_dt": "20241011"}
		case "p3":
			next, row = "D", map[string]string{"odno": "3", "pdno": "000660", "sll_buy_dvsn_cd": "02", "tot_ccld_qty": "0", "avg_prvs": "0", "ord_dt": "20241011"}
		}
		if next == "F" {
			w.Header().Set("ctx_area_nk100", "p2")
		} else {
			w.Header().Set("ctx_area_nk100", "p3")
		}
		w.Header().Set("ctx_area_fk100", "fk")
		w.Header().Set("tr_cont", next)
		writeJSON(w, success(map[string]interface{}{"output1": []map[string]string{row}}))
	})
	c := newTestClient(srv, false)
	now := time.Date(2024, 10, 11, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	fills, err := c.DomesticFills(context.Background(), now.AddDate(0, 0, -1), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "N", "N"}, trConts)
	require.Len(t, fills, 2)
	assert.Equal(t, models.Buy, fills[0].Side)
	assert.Equal(t, int64(3), fills[0].Quantity)
	assert.Equal(t, models.Sell, fills[1].Side)
	assert.Equal(t, "2", fills[1].OrderNo)
}

func TestDomesticFillsArchiveTransaction(t *testing.T) {
	var trID string
	_, srv := newFakeKIS(t, func(w http.ResponseWriter, r *http.Request) {
		trID = r.Header.Get("tr_id")
		writeJSON(w, success(map[string]interface{}{"output1": []interface{}{}}))
	})
	c := newTestClient(srv, false)
	now := time.Date(2024, 10, 11, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.DomesticFills(context.Background(), now.AddDate(0, 0, -120), now.AddDate(0, 0, -100))
	require.NoError(t, err)
	assert.Equal(t, "CTSC9215R", trID)
}

func TestOverseasReservationFallsThroughExchanges(t *testing.T) {
	var exchanges []string
	_, srv := newFakeKIS(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		exchanges = append(exchanges, body["OVRS_EXCG_CD"])
		assert.Equal(t, "TTTT3014U", r.Header.Get("tr_id"))
		_, hasType := body["PRDT_TYPE_CD"]
		assert.False(t, hasType)
		if body["OVRS_EXCG_CD"] == "NASD" {
			writeJSON(w, map[string]string{"rt_cd": "1", "msg_cd": "APBK0656", "msg1": "해당종목정보가 없습니다."})
			return
		}
		writeJSON(w, success(map[string]interface{}{"output": map[string]string{"ODNO": "0030001"}}))
	})
	c := newTestClient(srv, false)

	res, err := c.OverseasReservation(context.Background(), models.OrderRequest{
		Symbol:   "KO",
		Country:  models.USA,
		Side:     models.Buy,
		Price:    decimal.RequireFromString("61.25"),
		Quantity: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"NASD", "NYSE"}, exchanges)
	assert.Equal(t, "NYSE", res.Exchange)
	assert.Equal(t, "0030001", res.OrderNo)
}

func TestReservationRejected(t *testing.T) {
	_, srv := newFakeKIS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CTSC0008U", r.Header.Get("tr_id"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "20241015", body["RSVN_ORD_END_DT"])
		assert.Equal(t, "69900", body["ORD_UNPR"])
		writeJSON(w, map[string]string{"rt_cd": "7", "msg_cd": "40580000", "msg1": "모의투자 주문처리가 안되었습니다"})
	})
	c := newTestClient(srv, true)

	res, err := c.DomesticReservation(context.Background(), models.OrderRequest{
		Symbol:   "005930",
		Country:  models.KOR,
		Side:     models.Buy,
		Price:    decimal.NewFromInt(69900),
		Quantity: 2,
		Expiry:   time.Date(2024, 10, 15, 0, 0, 0, 0, time.UTC),
	})
	var rej *OrderRejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "7", rej.Code)
	require.NotNil(t, res)
	assert.Equal(t, "40580000", res.MsgCode)
	assert.Equal(t, "rejected", Kind(err))
}

func TestCalendarParsesDays(t *testing.T) {
	_, srv := newFakeKIS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CTCA0903R", r.Header.Get("tr_id"))
		assert.Equal(t, "20241001", r.URL.Query().Get("BASS_DT"))
		writeJSON(w, success(map[string]interface{}{"output": []map[string]string{
			{"bass_dt": "20241002", "wday_dvsn_cd": "04", "bzdy_yn": "Y", "tr_day_yn": "Y", "opnd_yn": "Y", "sttl_day_yn": "Y"},
			{"bass_dt": "20241001", "wday_dvsn_cd": "03", "bzdy_yn": "N", "tr_day_yn": "Y", "opnd_yn": "N", "sttl_day_yn": "N"},
		}}))
	})
	c := newTestClient(srv, true)

	days, err := c.Calendar(context.Background(), time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, 1, days[0].Date.Day())
	assert.False(t, days[0].Open)
	assert.True(t, days[1].Open)
}

func TestDomesticCashOrderPrefixesTrID(t *testing.T) {
	_, srv := newFakeKIS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/uapi/domestic-stock/v1/trading/order-cash", r.URL.Path)
		assert.Equal(t, "VTTC0011U", r.Header.Get("tr_id"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "00", body["ORD_DVSN"])
		assert.Equal(t, "3", body["ORD_QTY"])
		writeJSON(w, success(map[string]interface{}{"output": map[string]string{"ODNO": "0000117"}}))
	})
	c := newTestClient(srv, true)

	res, err := c.DomesticCashOrder(context.Background(), models.OrderRequest{
		Symbol:   "005930",
		Country:  models.KOR,
		Side:     models.Sell,
		Price:    decimal.NewFromInt(71000),
		Quantity: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "0000117", res.OrderNo)
}
