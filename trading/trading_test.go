package trading_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/tradestream-go/eventsource/ssetest"
	"github.com/ggoodman/tradestream-go/stream"
	"github.com/ggoodman/tradestream-go/trading"
)

const waitTimeout = 2 * time.Second

func newClient(t *testing.T, srv *ssetest.Server) *stream.Client {
	t.Helper()
	c, err := stream.NewClient(stream.Config{BaseURL: srv.URL, ReconnectAttempts: -1})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func receive[T any](t *testing.T, ch <-chan T, errs <-chan error) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for data")
	}
	var zero T
	return zero
}

func TestProposalParams(t *testing.T) {
	no := false
	p := trading.ProposalRequest{
		ProductID:    "rise_fall",
		InstrumentID: "frxUSDJPY",
		Duration:     900,
		DurationUnit: "seconds",
		AllowEquals:  &no,
		Stake:        "2.00",
	}.Params()

	want := map[string]string{
		"action":        "subscribe",
		"stream":        "proposal",
		"product_id":    "rise_fall",
		"instrument_id": "frxUSDJPY",
		"duration":      "900",
		"duration_unit": "seconds",
		"allow_equals":  "false",
		"stake":         "2.00",
	}
	if len(p) != len(want) {
		t.Fatalf("unexpected params %v", p)
	}
	for k, v := range want {
		if p[k] != v {
			t.Fatalf("param %s: got %q want %q", k, p[k], v)
		}
	}
	if _, ok := p["account_uuid"]; ok {
		t.Fatalf("unset account_uuid must be omitted")
	}
}

func TestProposalParamsOmitZeroDuration(t *testing.T) {
	p := trading.ProposalRequest{
		ProductID:    "multipliers",
		InstrumentID: "R_100",
		Stake:        "5.00",
	}.Params()

	if _, ok := p["duration"]; ok {
		t.Fatalf("unset duration must be omitted, got %q", p["duration"])
	}
	if p["instrument_id"] != "R_100" || p["stake"] != "5.00" {
		t.Fatalf("unexpected params %v", p)
	}
}

func TestSubscribeProposal(t *testing.T) {
	srv := ssetest.NewServer(t)
	c := newClient(t, srv)
	data := make(chan trading.Proposal, 4)
	errs := make(chan error, 4)

	cleanup := trading.SubscribeProposal(c, trading.ProposalRequest{
		ProductID:    "rise_fall",
		InstrumentID: "R_100",
		Duration:     60,
		DurationUnit: "seconds",
		Stake:        "10.00",
		AccountUUID:  "9f8c1b23-4e2a-47ad-92c2-b1e5d2a7e65f",
	}, func(p trading.Proposal) { data <- p }, func(err error) { errs <- err })
	defer cleanup()

	conn := srv.Accept(t, waitTimeout)
	if conn.URL.Path != trading.ProposalPath {
		t.Fatalf("unexpected path %q", conn.URL.Path)
	}
	q := conn.URL.Query()
	if q.Get("stream") != "proposal" || q.Get("instrument_id") != "R_100" || q.Get("account_uuid") == "" {
		t.Fatalf("unexpected query %v", q)
	}

	_ = conn.Send(`{"data":{"variants":[{"variant":"rise","contract_details":{"payout":"19.50","stake":"10.00","probability":0.51,"allow_equals":false,"contract_expiry_time":1700000060}}]}}`)

	p := receive(t, data, errs)
	if len(p.Data.Variants) != 1 {
		t.Fatalf("unexpected variants %+v", p.Data.Variants)
	}
	v := p.Data.Variants[0]
	if v.Variant != "rise" || v.ContractDetails.Payout != "19.50" || v.ContractDetails.Probability != 0.51 {
		t.Fatalf("unexpected variant %+v", v)
	}
}

func TestSubscribeClosedContracts(t *testing.T) {
	srv := ssetest.NewServer(t)
	c := newClient(t, srv)
	data := make(chan trading.ClosedContracts, 4)
	errs := make(chan error, 4)

	cleanup := trading.SubscribeClosedContracts(c, func(v trading.ClosedContracts) { data <- v }, func(err error) { errs <- err })
	defer cleanup()

	conn := srv.Accept(t, waitTimeout)
	if conn.URL.Path != trading.ClosedContractsPath || conn.URL.RawQuery != "" {
		t.Fatalf("unexpected url %s", conn.URL)
	}
	_ = conn.Send(`{"data":{"contracts":[{"contract_id":"c1","product_id":"rise_fall","contract_details":{"exit_spot":"101.2","exit_time":1700000100,"is_sold":true,"tick_stream":[{"ask":"1","bid":"0.9","epoch_ms":1700000000000,"price":"0.95"}]}}],"pagination":{"current_page":1,"limit":10,"total_items":1,"total_pages":1}}}`)

	v := receive(t, data, errs)
	if len(v.Data.Contracts) != 1 || v.Data.Pagination.TotalItems != 1 {
		t.Fatalf("unexpected payload %+v", v)
	}
	d := v.Data.Contracts[0].ContractDetails
	if d.ExitTime == nil || *d.ExitTime != 1700000100 || d.ExitTickTime != nil {
		t.Fatalf("unexpected optional fields %+v", d)
	}
	if len(d.TickStream) != 1 || d.TickStream[0].EpochMS != 1700000000000 {
		t.Fatalf("unexpected ticks %+v", d.TickStream)
	}
}

func TestSubscribeBalanceReportsDecodeErrors(t *testing.T) {
	srv := ssetest.NewServer(t)
	c := newClient(t, srv)
	data := make(chan trading.Balance, 4)
	errs := make(chan error, 4)

	cleanup := trading.SubscribeBalance(c, "acct-1", func(v trading.Balance) { data <- v }, func(err error) { errs <- err })
	defer cleanup()

	conn := srv.Accept(t, waitTimeout)
	if conn.URL.Path != trading.BalancePath || conn.URL.Query().Get("account_uuid") != "acct-1" {
		t.Fatalf("unexpected url %s", conn.URL)
	}

	_ = conn.Send(`{"data":{"balance":12}}`)
	select {
	case err := <-errs:
		var decodeErr *stream.DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for decode error")
	}

	_ = conn.Send(`{"data":{"balance":"1000.00","currency":"USD","timestamp":1700000000}}`)
	v := receive(t, data, errs)
	if v.Data.Balance != "1000.00" || v.Data.Currency != "USD" {
		t.Fatalf("unexpected balance %+v", v)
	}
}

func TestSubscribeBalanceStreamUsesPublicPath(t *testing.T) {
	srv := ssetest.NewServer(t)
	c := newClient(t, srv)
	data := make(chan trading.PublicBalance, 4)
	errs := make(chan error, 4)

	cleanup := trading.SubscribeBalanceStream(c, func(v trading.PublicBalance) { data <- v }, func(err error) { errs <- err })
	defer cleanup()

	conn := srv.Accept(t, waitTimeout)
	if got, want := conn.URL.String(), "/sse?action=subscribe&stream=balance"; got != want {
		t.Fatalf("unexpected url %s, want %s", got, want)
	}
	_ = conn.Send(`{"balance":"5.00","currency":"USD","id":"b1","loginid":"CR1"}`)
	if v := receive(t, data, errs); v.LoginID != "CR1" {
		t.Fatalf("unexpected balance %+v", v)
	}
}

func TestContractPriceParams(t *testing.T) {
	p := trading.ContractPriceRequest{Duration: "5m", TradeType: "CALL", Instrument: "R_100", Currency: "USD"}.Params()
	if p["action"] != "contract_price" || p["payout"] != "0" || p["strike"] != "0" {
		t.Fatalf("unexpected params %v", p)
	}
}
