// Package trading exposes the typed streams of the trading API on top of a
// stream.Client.
//
// Every Subscribe function returns the session's cleanup. Payloads that do
// not decode into the stream's type are reported to onError as a
// *stream.DecodeError; the subscription stays up.
package trading

import (
	"strconv"

	"github.com/ggoodman/tradestream-go/stream"
)

// Stream paths.
const (
	ProposalPath        = "/v1/trading/proposal/stream"
	OpenContractsPath   = "/v1/trading/contracts/open/stream"
	ClosedContractsPath = "/v1/trading/contracts/close/stream"
	BalancePath         = "/v1/accounting/balance/stream"
)

// Params returns the query parameters of a proposal subscription. Unset
// optional fields are omitted.
func (r ProposalRequest) Params() map[string]string {
	p := map[string]string{
		"action":        "subscribe",
		"stream":        "proposal",
		"product_id":    r.ProductID,
		"instrument_id": r.InstrumentID,
		"duration_unit": r.DurationUnit,
		"stake":         r.Stake,
	}
	if r.Duration != 0 {
		p["duration"] = strconv.Itoa(r.Duration)
	}
	if r.AllowEquals != nil {
		p["allow_equals"] = strconv.FormatBool(*r.AllowEquals)
	}
	if r.AccountUUID != "" {
		p["account_uuid"] = r.AccountUUID
	}
	return p
}

// Params returns the query parameters of a contract price subscription.
func (r ContractPriceRequest) Params() map[string]string {
	return map[string]string{
		"action":     "contract_price",
		"duration":   r.Duration,
		"trade_type": r.TradeType,
		"instrument": r.Instrument,
		"currency":   r.Currency,
		"payout":     orZero(r.Payout),
		"strike":     orZero(r.Strike),
	}
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// SubscribeProposal streams prices for the contract described by req.
func SubscribeProposal(c *stream.Client, req ProposalRequest, onData func(Proposal), onError func(error)) stream.CleanupFunc {
	return subscribe(c, ProposalPath, req.Params(), onData, onError)
}

// SubscribeOpenContracts streams the account's open contracts.
func SubscribeOpenContracts(c *stream.Client, onData func(OpenContracts), onError func(error)) stream.CleanupFunc {
	return subscribe(c, OpenContractsPath, nil, onData, onError)
}

// SubscribeClosedContracts streams the account's closed contracts.
func SubscribeClosedContracts(c *stream.Client, onData func(ClosedContracts), onError func(error)) stream.CleanupFunc {
	return subscribe(c, ClosedContractsPath, nil, onData, onError)
}

// SubscribeBalance streams balance updates of one account.
func SubscribeBalance(c *stream.Client, accountUUID string, onData func(Balance), onError func(error)) stream.CleanupFunc {
	return subscribe(c, BalancePath, map[string]string{"account_uuid": accountUUID}, onData, onError)
}

// SubscribeBalanceStream streams balance updates on the public path.
func SubscribeBalanceStream(c *stream.Client, onData func(PublicBalance), onError func(error)) stream.CleanupFunc {
	return subscribe(c, "", map[string]string{"action": "subscribe", "stream": "balance"}, onData, onError)
}

// SubscribeContractPrice streams quotes on the public path. The request
// headers, typically credentials, come from the client's header source.
func SubscribeContractPrice(c *stream.Client, req ContractPriceRequest, onData func(ContractPrice), onError func(error)) stream.CleanupFunc {
	return subscribe(c, "", req.Params(), onData, onError)
}

func subscribe[T any](c *stream.Client, path string, params map[string]string, onData func(T), onError func(error)) stream.CleanupFunc {
	return c.Subscribe(stream.Request{
		Path:      path,
		Params:    params,
		OnMessage: stream.JSON(onData, onError),
		OnError:   onError,
	})
}
