package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/rxtech-lab/fxstream-trading/internal/logger"
	"github.com/rxtech-lab/fxstream-trading/internal/types"
	"github.com/rxtech-lab/fxstream-trading/pkg/errors"
)

// OandaBroker implements Broker against the OANDA v20 REST API.
type OandaBroker struct {
	client    *resty.Client
	accountID string
	log       *logger.Logger
}

// NewOandaBroker creates a broker client for the given account. token may be
// empty when talking to an unauthenticated mock server.
func NewOandaBroker(baseURL, accountID, token string, timeout time.Duration, log *logger.Logger) *OandaBroker {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	if token != "" {
		client.SetAuthToken(token)
	}

	return &OandaBroker{
		client:    client,
		accountID: accountID,
		log:       log,
	}
}

// Wire shapes for the v20 endpoints. Prices and units travel as strings.

type accountResponse struct {
	Account struct {
		ID              string `json:"id"`
		Currency        string `json:"currency"`
		Balance         string `json:"balance"`
		MarginAvailable string `json:"marginAvailable"`
	} `json:"account"`
}

type pricingResponse struct {
	Prices []struct {
		Type       string `json:"type"`
		Instrument string `json:"instrument"`
		Time       string `json:"time"`
		Bids       []struct {
			Price string `json:"price"`
		} `json:"bids"`
		Asks []struct {
			Price string `json:"price"`
		} `json:"asks"`
	} `json:"prices"`
}

type openTradesResponse struct {
	Trades []struct {
		Instrument   string `json:"instrument"`
		CurrentUnits string `json:"currentUnits"`
		Price        string `json:"price"`
	} `json:"trades"`
}

type orderRequest struct {
	Order orderBody `json:"order"`
}

type orderBody struct {
	Type             string    `json:"type"`
	Instrument       string    `json:"instrument"`
	Units            string    `json:"units"`
	TimeInForce      string    `json:"timeInForce"`
	PositionFill     string    `json:"positionFill"`
	ClientExtensions clientExt `json:"clientExtensions"`
	StopLossOnFill   *onFill   `json:"stopLossOnFill,omitempty"`
	TakeProfitOnFill *onFill   `json:"takeProfitOnFill,omitempty"`
}

type clientExt struct {
	ID string `json:"id"`
}

type onFill struct {
	Price string `json:"price"`
}

// PlaceOrder implements Broker. The order's client extension carries the
// order ID so the broker side can de-duplicate retried submissions.
func (b *OandaBroker) PlaceOrder(ctx context.Context, order types.ExecuteOrder) error {
	if err := order.Validate(); err != nil {
		return err
	}

	payload := orderRequest{
		Order: orderBody{
			Type:             "MARKET",
			Instrument:       order.Instrument,
			Units:            strconv.FormatInt(order.Units, 10),
			TimeInForce:      "FOK",
			PositionFill:     "DEFAULT",
			ClientExtensions: clientExt{ID: order.ID},
			StopLossOnFill:   &onFill{Price: order.StopLoss.String()},
			TakeProfitOnFill: &onFill{Price: order.TakeProfit.String()},
		},
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(fmt.Sprintf("/v3/accounts/%s/orders", b.accountID))
	if err != nil {
		return errors.Wrap(errors.ErrCodeOrderDispatchFailed, "order request failed", err)
	}

	if resp.IsError() {
		return errors.Newf(errors.ErrCodeOrderDispatchFailed,
			"order rejected with status %d: %s", resp.StatusCode(), resp.String())
	}

	b.log.Info("order placed",
		zap.String("instrument", order.Instrument),
		zap.Int64("units", order.Units),
		zap.String("order_id", order.ID),
	)

	return nil
}

// GetPosition implements Broker. It sums the account's open trades for the
// instrument; no trades means no position.
func (b *OandaBroker) GetPosition(ctx context.Context, instrument string) (optional.Option[types.Position], error) {
	var out openTradesResponse

	resp, err := b.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/v3/accounts/%s/openTrades", b.accountID))
	if err != nil {
		return optional.None[types.Position](), errors.Wrap(errors.ErrCodePositionQueryFailed, "open trades request failed", err)
	}

	if resp.IsError() {
		return optional.None[types.Position](), errors.Newf(errors.ErrCodePositionQueryFailed,
			"open trades query failed with status %d", resp.StatusCode())
	}

	var units int64

	for _, trade := range out.Trades {
		if trade.Instrument != instrument {
			continue
		}

		parsed, parseErr := strconv.ParseInt(trade.CurrentUnits, 10, 64)
		if parseErr != nil {
			return optional.None[types.Position](), errors.Wrapf(errors.ErrCodePositionQueryFailed, parseErr,
				"bad units %q in open trade for %s", trade.CurrentUnits, instrument)
		}

		units += parsed
	}

	if units == 0 {
		return optional.None[types.Position](), nil
	}

	position := types.Position{
		Instrument: instrument,
		Direction:  types.PositionTypeLong,
		Units:      units,
	}

	if units < 0 {
		position.Direction = types.PositionTypeShort
		position.Units = -units
	}

	return optional.Some(position), nil
}

// GetAccountInfo implements Broker.
func (b *OandaBroker) GetAccountInfo(ctx context.Context) (types.AccountInfo, error) {
	var out accountResponse

	resp, err := b.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/v3/accounts/%s", b.accountID))
	if err != nil {
		return types.AccountInfo{}, errors.Wrap(errors.ErrCodeAccountQueryFailed, "account request failed", err)
	}

	if resp.IsError() {
		return types.AccountInfo{}, errors.Newf(errors.ErrCodeAccountQueryFailed,
			"account query failed with status %d", resp.StatusCode())
	}

	balance, err := strconv.ParseFloat(out.Account.Balance, 64)
	if err != nil {
		return types.AccountInfo{}, errors.Wrapf(errors.ErrCodeAccountQueryFailed, err,
			"bad balance %q in account response", out.Account.Balance)
	}

	margin := 0.0
	if out.Account.MarginAvailable != "" {
		margin, _ = strconv.ParseFloat(out.Account.MarginAvailable, 64)
	}

	return types.AccountInfo{
		Balance:         balance,
		Currency:        out.Account.Currency,
		MarginAvailable: margin,
	}, nil
}

// GetPrice implements Broker. It returns the top-of-book bid and ask from the
// pricing endpoint; order pricing must use this, not a bar close.
func (b *OandaBroker) GetPrice(ctx context.Context, instrument string) (types.Price, error) {
	var out pricingResponse

	resp, err := b.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetQueryParam("instruments", instrument).
		Get(fmt.Sprintf("/v3/accounts/%s/pricing", b.accountID))
	if err != nil {
		return types.Price{}, errors.Wrap(errors.ErrCodePriceQueryFailed, "pricing request failed", err)
	}

	if resp.IsError() {
		return types.Price{}, errors.Newf(errors.ErrCodePriceQueryFailed,
			"pricing query failed with status %d", resp.StatusCode())
	}

	for _, price := range out.Prices {
		if price.Instrument != instrument || len(price.Bids) == 0 || len(price.Asks) == 0 {
			continue
		}

		bid, bidErr := strconv.ParseFloat(price.Bids[0].Price, 64)
		ask, askErr := strconv.ParseFloat(price.Asks[0].Price, 64)

		if bidErr != nil || askErr != nil {
			return types.Price{}, errors.Newf(errors.ErrCodePriceQueryFailed,
				"bad prices in pricing response for %s", instrument)
		}

		quote := types.Price{
			Instrument: instrument,
			Bid:        bid,
			Ask:        ask,
			Time:       time.Now(),
		}

		if parsed, timeErr := time.Parse(time.RFC3339Nano, price.Time); timeErr == nil {
			quote.Time = parsed
		}

		return quote, nil
	}

	return types.Price{}, errors.Newf(errors.ErrCodePriceQueryFailed, "no price returned for %s", instrument)
}

// Verify OandaBroker implements the Broker interface.
var _ Broker = (*OandaBroker)(nil)
