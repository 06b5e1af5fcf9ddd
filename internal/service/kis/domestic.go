package kis

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"AutoTrade/internal/domain/models"
	xhttp "AutoTrade/pkg/http"
	"AutoTrade/pkg/util"
)

const (
	pathDomesticBalance = "/uapi/domestic-stock/v1/trading/inquire-balance"
	pathDomesticFills   = "/uapi/domestic-stock/v1/trading/inquire-daily-ccld"
	pathDomesticResv    = "/uapi/domestic-stock/v1/trading/order-resv"
	pathDomesticCash    = "/uapi/domestic-stock/v1/trading/order-cash"

	trDomesticBalance     = "TTC8434R"  // prefixed
	trDomesticFillsRecent = "TTTC0081R" // sent verbatim
	trDomesticFillsOld    = "CTSC9215R" // sent verbatim
	trDomesticResv        = "CTSC0008U" // sent verbatim
	trDomesticCashBuy     = "TTC0012U"  // prefixed
	trDomesticCashSell    = "TTC0011U"  // prefixed

	// fills older than this use the archive transaction
	recentFillsWindow = 90 * 24 * time.Hour
)

func (c *Client) account() map[string]string {
	return map[string]string{
		"CANO":         c.cfg.AccountNumber,
		"ACNT_PRDT_CD": c.cfg.AccountCode,
	}
}

// DomesticBalance returns every KRX position with a positive quantity.
func (c *Client) DomesticBalance(ctx context.Context) (models.Holdings, error) {
	q := c.account()
	q["AFHR_FLPR_YN"] = "N"
	q["OFL_YN"] = ""
	q["INQR_DVSN"] = "02"
	q["UNPR_DVSN"] = "01"
	q["FUND_STTL_ICLD_YN"] = "N"
	q["FNCG_AMT_AUTO_RDPT_YN"] = "N"
	q["PRCS_DVSN"] = "00"

	out := make(models.Holdings)
	call := Call{Method: xhttp.MethodGet, Path: pathDomesticBalance, TrID: c.TrID(trDomesticBalance), Query: q}
	err := c.Paginate(ctx, call, Domestic, true, func(r *Response) error {
		var page domesticBalanceResponse
		if err := r.Decode(&page); err != nil {
			return err
		}
		for _, h := range page.Output1 {
			qty := util.ParseInt64Default(h.HldgQty, 0)
			if qty <= 0 {
				continue
			}
			out[h.Pdno] = models.Holding{
				Symbol:       h.Pdno,
				Name:         h.PrdtName,
				Country:      models.KOR,
				Quantity:     qty,
				Orderable:    util.ParseInt64Default(h.OrdPsblQty, 0),
				AverageCost:  util.ParseDecimalDefault(h.PchsAvgPric, decimal.Zero),
				CurrentPrice: util.ParseDecimalDefault(h.Prpr, decimal.Zero),
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("domestic balance: %w", err)
	}
	return out, nil
}

// DomesticFills returns executed orders between from and to inclusive.
func (c *Client) DomesticFills(ctx context.Context, from, to time.Time) ([]models.Fill, error) {
	trID := trDomesticFillsRecent
	if to.Before(c.now().Add(-recentFillsWindow)) {
		trID = trDomesticFillsOld
	}

	q := c.account()
	q["INQR_STRT_DT"] = util.FormatYMD(from)
	q["INQR_END_DT"] = util.FormatYMD(to)
	q["SLL_BUY_DVSN_CD"] = "00"
	q["INQR_DVSN"] = "00"
	q["PDNO"] = ""
	q["CCLD_DVSN"] = "01"
	q["ORD_GNO_BRNO"] = ""
	q["ODNO"] = ""
	q["INQR_DVSN_3"] = "00"
	q["INQR_DVSN_1"] = ""

	var fills []models.Fill
	call := Call{Method: xhttp.MethodGet, Path: pathDomesticFills, TrID: trID, Query: q}
	err := c.Paginate(ctx, call, Domestic, true, func(r *Response) error {
		var page domesticFillsResponse
		if err := r.Decode(&page); err != nil {
			return err
		}
		for _, f := range page.Output1 {
			fill, ok := c.toFill(models.KOR, f.Odno, f.Pdno, f.SllBuyDvsnCd, f.TotCcldQty, f.AvgPrvs, f.OrdDt)
			if ok {
				fills = append(fills, fill)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("domestic fills: %w", err)
	}
	return fills, nil
}

func (c *Client) toFill(country models.Country, orderNo, symbol, side, qty, price, date string) (models.Fill, bool) {
	s := models.Side(side)
	if s != models.Buy && s != models.Sell {
		return models.Fill{}, false
	}
	n := util.ParseInt64Default(qty, 0)
	if n <= 0 {
		return models.Fill{}, false
	}
	d, err := util.ParseYMD(date, c.cfg.Location)
	if err != nil {
		d = util.DateOf(c.now(), c.cfg.Location)
	}
	return models.Fill{
		OrderNo:  orderNo,
		Symbol:   symbol,
		Country:  country,
		Side:     s,
		Price:    util.ParseDecimalDefault(price, decimal.Zero),
		Quantity: n,
		Date:     d,
	}, true
}

// DomesticReservation books a limit reservation order valid through req.Expiry.
func (c *Client) DomesticReservation(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	body := map[string]string{
		"CANO":                  c.cfg.AccountNumber,
		"ACNT_PRDT_CD":          c.cfg.AccountCode,
		"PDNO":                  req.Symbol,
		"ORD_QTY":               fmt.Sprintf("%d", req.Quantity),
		"ORD_UNPR":              req.Price.Truncate(0).String(),
		"SLL_BUY_DVSN_CD":       string(req.Side),
		"ORD_DVSN_CD":           "00",
		"ORD_OBJT_CBLC_DVSN_CD": "10",
		"RSVN_ORD_END_DT":       util.FormatYMD(req.Expiry),
	}
	return c.order(ctx, Call{Method: xhttp.MethodPost, Path: pathDomesticResv, TrID: trDomesticResv, Body: body}, "")
}

// DomesticCashOrder places an immediate limit order for the current session.
func (c *Client) DomesticCashOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	trID := trDomesticCashBuy
	if req.Side == models.Sell {
		trID = trDomesticCashSell
	}
	body := map[string]string{
		"CANO":         c.cfg.AccountNumber,
		"ACNT_PRDT_CD": c.cfg.AccountCode,
		"PDNO":         req.Symbol,
		"ORD_DVSN":     "00",
		"ORD_QTY":      fmt.Sprintf("%d", req.Quantity),
		"ORD_UNPR":     req.Price.Truncate(0).String(),
	}
	return c.order(ctx, Call{Method: xhttp.MethodPost, Path: pathDomesticCash, TrID: c.TrID(trID), Body: body}, "")
}

// order submits call and folds the envelope into an OrderResult. A business
// rejection returns both the result and an *OrderRejectedError.
func (c *Client) order(ctx context.Context, call Call, exchange string) (*models.OrderResult, error) {
	resp, err := c.Request(ctx, call)
	if resp == nil {
		return nil, err
	}
	res := &models.OrderResult{
		Exchange: exchange,
		Code:     resp.RtCd,
		MsgCode:  resp.MsgCd,
		Message:  resp.Message,
	}
	if err != nil {
		return res, err
	}
	var out orderResponse
	if derr := resp.Decode(&out); derr == nil {
		res.OrderNo = out.Output.Odno
		if res.OrderNo == "" {
			res.OrderNo = out.Output.RsvnOrdSeq
		}
	}
	return res, nil
}
