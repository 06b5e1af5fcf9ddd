package kis

import (
	"context"
	"time"

	"AutoTrade/internal/domain/models"
	"AutoTrade/internal/domain/service"
)

var (
	_ service.Broker         = (*Broker)(nil)
	_ service.CalendarSource = (*Client)(nil)
)

// Broker routes each call to the account serving the country, then to the
// domestic or overseas endpoints.
type Broker struct {
	def    *Client
	routes map[models.Country]*Client
}

// NewBroker serves every market from def unless routes names another client.
func NewBroker(def *Client, routes map[models.Country]*Client) *Broker {
	return &Broker{def: def, routes: routes}
}

func (b *Broker) client(country models.Country) *Client {
	if c, ok := b.routes[country]; ok && c != nil {
		return c
	}
	return b.def
}

func (b *Broker) Holdings(ctx context.Context, country models.Country) (models.Holdings, error) {
	c := b.client(country)
	if country.Domestic() {
		return c.DomesticBalance(ctx)
	}
	return c.OverseasBalance(ctx, country)
}

func (b *Broker) Fills(ctx context.Context, country models.Country, from, to time.Time) ([]models.Fill, error) {
	c := b.client(country)
	if country.Domestic() {
		return c.DomesticFills(ctx, from, to)
	}
	return c.OverseasFills(ctx, country, from, to)
}

func (b *Broker) PlaceReservation(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	c := b.client(req.Country)
	if req.Country.Domestic() {
		return c.DomesticReservation(ctx, req)
	}
	return c.OverseasReservation(ctx, req)
}
