package kis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"AutoTrade/internal/domain/models"
	xhttp "AutoTrade/pkg/http"
	applogger "AutoTrade/pkg/logger"
	"AutoTrade/pkg/util"
)

const (
	pathOverseasBalance = "/uapi/overseas-stock/v1/trading/inquire-balance"
	pathOverseasFills   = "/uapi/overseas-stock/v1/trading/inquire-ccnl"
	pathOverseasResv    = "/uapi/overseas-stock/v1/trading/order-resv"

	trOverseasBalance = "TTS3012R"
	trOverseasFills   = "TTS3035R"

	msgUnknownSymbol = "해당종목정보가 없습니다"
)

// CountryConfig holds the per-market order routing. Transaction ids are bare
// and always receive the environment prefix.
type CountryConfig struct {
	BuyTrID     string
	SellTrID    string
	Exchanges   []string
	ProductType string // empty for USA
	Currency    string
}

var countryConfigs = map[models.Country]CountryConfig{
	models.USA: {BuyTrID: "TTT3014U", SellTrID: "TTT3016U", Exchanges: []string{"NASD", "NYSE", "AMEX"}, Currency: "USD"},
	models.CHN: {BuyTrID: "TTS3013U", SellTrID: "TTS3013U", Exchanges: []string{"SHAA"}, ProductType: "551", Currency: "CNY"},
	models.HKG: {BuyTrID: "TTS3013U", SellTrID: "TTS3013U", Exchanges: []string{"SEHK"}, ProductType: "501", Currency: "HKD"},
	models.JPN: {BuyTrID: "TTS3013U", SellTrID: "TTS3013U", Exchanges: []string{"TKSE"}, ProductType: "515", Currency: "JPY"},
	models.VNM: {BuyTrID: "TTS3013U", SellTrID: "TTS3013U", Exchanges: []string{"HASE"}, ProductType: "507", Currency: "VND"},
}

// LookupCountry returns the order routing for an overseas market.
func LookupCountry(country models.Country) (CountryConfig, error) {
	cfg, ok := countryConfigs[country]
	if !ok {
		return CountryConfig{}, fmt.Errorf("unsupported overseas country %q", country)
	}
	return cfg, nil
}

// OverseasBalance queries every exchange of country and merges the positions.
func (c *Client) OverseasBalance(ctx context.Context, country models.Country) (models.Holdings, error) {
	cc, err := LookupCountry(country)
	if err != nil {
		return nil, err
	}

	out := make(models.Holdings)
	for _, exch := range cc.Exchanges {
		q := c.account()
		q["OVRS_EXCG_CD"] = exch
		q["TR_CRCY_CD"] = cc.Currency

		call := Call{Method: xhttp.MethodGet, Path: pathOverseasBalance, TrID: c.TrID(trOverseasBalance), Query: q}
		err := c.Paginate(ctx, call, Overseas, true, func(r *Response) error {
			var page overseasBalanceResponse
			if err := r.Decode(&page); err != nil {
				return err
			}
			for _, h := range page.Output1 {
				qty := util.ParseInt64Default(h.OvrsCblcQty, 0)
				if qty <= 0 {
					continue
				}
				out[h.OvrsPdno] = models.Holding{
					Symbol:       h.OvrsPdno,
					Name:         h.OvrsItemName,
					Country:      country,
					Quantity:     qty,
					Orderable:    util.ParseInt64Default(h.OrdPsblQty, 0),
					AverageCost:  util.ParseDecimalDefault(h.PchsAvgPric, decimal.Zero),
					CurrentPrice: util.ParseDecimalDefault(h.NowPric2, decimal.Zero),
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("overseas balance %s: %w", exch, err)
		}
	}
	return out, nil
}

// OverseasFills returns executed overseas orders between from and to. The
// inquiry spans every exchange; fills are tagged with country.
func (c *Client) OverseasFills(ctx context.Context, country models.Country, from, to time.Time) ([]models.Fill, error) {
	cc, err := LookupCountry(country)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(cc.Exchanges))
	for _, e := range cc.Exchanges {
		wanted[e] = true
	}

	q := c.account()
	q["PDNO"] = "%"
	q["ORD_STRT_DT"] = util.FormatYMD(from)
	q["ORD_END_DT"] = util.FormatYMD(to)
	q["SLL_BUY_DVSN"] = "00"
	q["CCLD_NCCS_DVSN"] = "01"
	q["OVRS_EXCG_CD"] = "%"
	q["SORT_SQN"] = "DS"

	var fills []models.Fill
	call := Call{Method: xhttp.MethodGet, Path: pathOverseasFills, TrID: c.TrID(trOverseasFills), Query: q}
	err = c.Paginate(ctx, call, Overseas, false, func(r *Response) error {
		var page overseasFillsResponse
		if err := r.Decode(&page); err != nil {
			return err
		}
		for _, f := range page.Output {
			if f.OvrsExcgCd != "" && !wanted[f.OvrsExcgCd] {
				continue
			}
			fill, ok := c.toFill(country, f.Odno, f.Pdno, f.SllBuyDvsnCd, f.FtCcldQty, f.FtCcldUnpr3, f.OrdDt)
			if ok {
				fills = append(fills, fill)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("overseas fills: %w", err)
	}
	return fills, nil
}

// OverseasReservation books a reservation on the first exchange of the
// country that knows the symbol. An unknown-symbol reply moves on to the next
// exchange; any other rejection is kept and the walk continues. Transport
// failures stop immediately.
func (c *Client) OverseasReservation(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	cc, err := LookupCountry(req.Country)
	if err != nil {
		return nil, err
	}
	trID := cc.BuyTrID
	if req.Side == models.Sell {
		trID = cc.SellTrID
	}

	var (
		lastRes *models.OrderResult
		lastErr error
	)
	for _, exch := range cc.Exchanges {
		body := map[string]string{
			"CANO":              c.cfg.AccountNumber,
			"ACNT_PRDT_CD":      c.cfg.AccountCode,
			"RVSE_CNCL_DVSN_CD": "00",
			"PDNO":              req.Symbol,
			"OVRS_EXCG_CD":      exch,
			"FT_ORD_QTY":        fmt.Sprintf("%d", req.Quantity),
			"FT_ORD_UNPR3":      req.Price.String(),
			"ORD_DVSN":          "00",
			"SLL_BUY_DVSN_CD":   string(req.Side),
			"ORD_SVR_DVSN_CD":   "0",
		}
		if cc.ProductType != "" {
			body["PRDT_TYPE_CD"] = cc.ProductType
		}

		res, err := c.order(ctx, Call{Method: xhttp.MethodPost, Path: pathOverseasResv, TrID: c.TrID(trID), Body: body}, exch)
		if err == nil {
			return res, nil
		}
		var rej *OrderRejectedError
		if !errors.As(err, &rej) {
			return nil, err
		}
		if strings.Contains(rej.Message, msgUnknownSymbol) {
			c.log.Debug("symbol not listed on exchange",
				applogger.String("symbol", req.Symbol),
				applogger.String("exchange", exch),
			)
			if lastErr == nil {
				lastRes, lastErr = res, err
			}
			continue
		}
		lastRes, lastErr = res, err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no exchange configured for %s", req.Country)
	}
	return lastRes, lastErr
}
