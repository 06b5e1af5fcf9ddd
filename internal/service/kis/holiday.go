package kis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"AutoTrade/internal/domain/models"
	xhttp "AutoTrade/pkg/http"
	applogger "AutoTrade/pkg/logger"
	"AutoTrade/pkg/util"
)

const (
	pathHoliday = "/uapi/domestic-stock/v1/quotations/chk-holiday"
	trHoliday   = "CTCA0903R" // sent verbatim
)

// Calendar returns the exchange calendar window starting at from, in date order.
func (c *Client) Calendar(ctx context.Context, from time.Time) ([]models.CalendarDay, error) {
	call := Call{
		Method: xhttp.MethodGet,
		Path:   pathHoliday,
		TrID:   trHoliday,
		Query: map[string]string{
			"BASS_DT":     util.FormatYMD(from),
			"CTX_AREA_NK": "",
			"CTX_AREA_FK": "",
		},
	}
	resp, err := c.Request(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("holiday calendar %s: %w", util.FormatYMD(from), err)
	}
	var out holidayResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}

	days := make([]models.CalendarDay, 0, len(out.Output))
	for _, d := range out.Output {
		date, err := util.ParseYMD(d.BassDt, c.cfg.Location)
		if err != nil {
			c.log.Warn("skipping malformed calendar row", applogger.String("bass_dt", d.BassDt))
			continue
		}
		days = append(days, models.CalendarDay{
			Date:       date,
			Weekday:    d.WdayDvsnCd,
			Business:   d.BzdyYn == "Y",
			Trading:    d.TrDayYn == "Y",
			Open:       d.OpndYn == "Y",
			Settlement: d.SttlDayYn == "Y",
		})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days, nil
}
