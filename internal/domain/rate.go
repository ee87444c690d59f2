package domain

// TreasuryRate is external reference data for a security on a given date.
type TreasuryRate struct {
	RecordDate   string  `json:"record_date"`
	SecurityType string  `json:"security_type"`
	SecurityDesc string  `json:"security_desc"`
	RateDate     string  `json:"rate_date"`
	Rate         float64 `json:"rate"`
	CUSIP        string  `json:"cusip"`
}

// Key returns the table key combining CUSIP and rate date.
func (r TreasuryRate) Key() string {
	return r.CUSIP + "_" + r.RateDate
}

// VerifiedBrokerPurchase records an off-system broker purchase backing issued tokens.
type VerifiedBrokerPurchase struct {
	Sequence    uint64 `json:"sequence"`
	Amount      int64  `json:"amount"`
	Price       int64  `json:"price"`
	Timestamp   int64  `json:"timestamp"`
	BrokerTxnID string `json:"broker_txn_id"`
	BillType    string `json:"bill_type"`
}
