package trading

// ProposalRequest selects the contract a proposal stream prices.
type ProposalRequest struct {
	ProductID    string // e.g. "rise_fall"
	InstrumentID string // e.g. "frxUSDJPY"
	Duration     int
	DurationUnit string // e.g. "seconds"
	AllowEquals  *bool
	Stake        string // decimal string, e.g. "2.00"
	AccountUUID  string
}

// ProposalDetails is the priced contract of one proposal variant.
type ProposalDetails struct {
	Payout             string  `json:"payout"`
	Stake              string  `json:"stake"`
	Probability        float64 `json:"probability"`
	PricingSpot        string  `json:"pricing_spot"`
	Barrier            string  `json:"barrier"`
	AllowEquals        bool    `json:"allow_equals"`
	ContractExpiryTime int64   `json:"contract_expiry_time"`
}

// ProposalVariant is one side of a proposal, e.g. "rise" or "fall".
type ProposalVariant struct {
	Variant         string          `json:"variant"`
	ContractDetails ProposalDetails `json:"contract_details"`
}

// Proposal is one message of the proposal stream.
type Proposal struct {
	Data struct {
		Variants []ProposalVariant `json:"variants"`
	} `json:"data"`
}

// Tick is one entry of a contract's tick stream.
type Tick struct {
	Ask     string `json:"ask"`
	Bid     string `json:"bid"`
	EpochMS int64  `json:"epoch_ms"`
	Price   string `json:"price"`
}

// ContractDetails describes a bought contract.
type ContractDetails struct {
	AllowEquals        bool   `json:"allow_equals"`
	Barrier            string `json:"barrier"`
	BidPrice           string `json:"bid_price"`
	BidPriceCurrency   string `json:"bid_price_currency"`
	ContractExpiryTime int64  `json:"contract_expiry_time"`
	ContractStartTime  int64  `json:"contract_start_time"`
	Duration           int    `json:"duration"`
	DurationUnit       string `json:"duration_unit"`
	EntrySpot          string `json:"entry_spot"`
	EntryTickTime      int64  `json:"entry_tick_time"`
	ExitSpot           string `json:"exit_spot"`
	ExitTickTime       *int64 `json:"exit_tick_time,omitempty"`
	ExitTime           *int64 `json:"exit_time,omitempty"`
	InstrumentID       string `json:"instrument_id"`
	InstrumentName     string `json:"instrument_name"`
	IsExpired          bool   `json:"is_expired"`
	IsSold             bool   `json:"is_sold"`
	IsValidToSell      bool   `json:"is_valid_to_sell"`
	PotentialPayout    string `json:"potential_payout"`
	ProfitLoss         string `json:"profit_loss"`
	ReferenceID        string `json:"reference_id"`
	Stake              string `json:"stake"`
	Variant            string `json:"variant"`
	BuyTickID          *int64 `json:"buy_tick_id,omitempty"`
	PricingTickID      string `json:"pricing_tick_id,omitempty"`
	SellTickID         *int64 `json:"sell_tick_id,omitempty"`
	TickStream         []Tick `json:"tick_stream"`
}

// Contract is one entry of the open or closed contracts streams.
type Contract struct {
	ContractID      string          `json:"contract_id"`
	ProductID       string          `json:"product_id"`
	ContractDetails ContractDetails `json:"contract_details"`
}

// OpenContracts is one message of the open contracts stream.
type OpenContracts struct {
	Data struct {
		Contracts []Contract `json:"contracts"`
	} `json:"data"`
}

// Pagination describes a page of closed contracts.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	Limit       int `json:"limit"`
	TotalItems  int `json:"total_items"`
	TotalPages  int `json:"total_pages"`
}

// ClosedContracts is one message of the closed contracts stream.
type ClosedContracts struct {
	Data struct {
		Contracts  []Contract `json:"contracts"`
		Pagination Pagination `json:"pagination"`
	} `json:"data"`
}

// Balance is one message of the account balance stream.
type Balance struct {
	Data struct {
		Balance   string `json:"balance"`
		Currency  string `json:"currency"`
		Timestamp int64  `json:"timestamp"`
		Change    string `json:"change,omitempty"`
	} `json:"data"`
}

// PublicBalance is one message of the balance stream on the public path.
type PublicBalance struct {
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
	ID       string `json:"id"`
	LoginID  string `json:"loginid"`
}

// ContractPriceRequest selects the contract a price stream quotes.
type ContractPriceRequest struct {
	Duration   string // e.g. "5m"
	TradeType  string // e.g. "CALL"
	Instrument string // e.g. "R_100"
	Currency   string
	Payout     string
	Strike     string
}

// ContractPrice is one message of the contract price stream.
type ContractPrice struct {
	Price      string  `json:"price"`
	ID         string  `json:"id"`
	DateStart  int64   `json:"date_start"`
	DateExpiry int64   `json:"date_expiry"`
	Currency   string  `json:"currency"`
	Payout     float64 `json:"payout"`
}
