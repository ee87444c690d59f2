// Package domain defines the tokenized treasury bill entities and their derived computations.
package domain

const secondsPerDay = 86400

// BillStatus is the lifecycle state of a bill offering.
type BillStatus string

const (
	BillActive    BillStatus = "Active"
	BillSoldOut   BillStatus = "SoldOut"
	BillMatured   BillStatus = "Matured"
	BillCancelled BillStatus = "Cancelled"
)

// Bill is a tokenized treasury bill offering.
type Bill struct {
	ID            uint64     `json:"id"`
	CUSIP         string     `json:"cusip"`
	FaceValue     int64      `json:"face_value"`
	PurchasePrice int64      `json:"purchase_price"`
	MaturityDate  int64      `json:"maturity_date"`
	AnnualYield   float64    `json:"annual_yield"`
	TotalTokens   int64      `json:"total_tokens"`
	TokensSold    int64      `json:"tokens_sold"`
	Status        BillStatus `json:"status"`
	CreatedAt     int64      `json:"created_at"`
	UpdatedAt     int64      `json:"updated_at"`
	Issuer        string     `json:"issuer"`
	BillType      string     `json:"bill_type"`
}

// AvailableTokens returns tokens that can still be sold.
func (b *Bill) AvailableTokens() int64 {
	return b.TotalTokens - b.TokensSold
}

// IsPurchasable reports whether the bill accepts new purchases.
func (b *Bill) IsPurchasable() bool {
	return b.Status == BillActive && b.AvailableTokens() > 0
}

// DaysToMaturity returns whole days left until maturity, never negative.
func (b *Bill) DaysToMaturity(now int64) int64 {
	if b.MaturityDate <= now {
		return 0
	}

	return (b.MaturityDate - now) / secondsPerDay
}

// HasMatured reports whether maturity has arrived at now.
func (b *Bill) HasMatured(now int64) bool {
	return b.MaturityDate <= now
}

// BillCreateRequest carries the administrator supplied terms of a new bill.
type BillCreateRequest struct {
	CUSIP         string  `json:"cusip"`
	FaceValue     int64   `json:"face_value"`
	PurchasePrice int64   `json:"purchase_price"`
	MaturityDate  int64   `json:"maturity_date"`
	AnnualYield   float64 `json:"annual_yield"`
	TotalTokens   int64   `json:"total_tokens"`
	Issuer        string  `json:"issuer"`
	BillType      string  `json:"bill_type"`
}

// Validate checks the request against the issuance rules at now.
func (r BillCreateRequest) Validate(now int64) error {
	if err := ValidateCUSIP(r.CUSIP); err != nil {
		return err
	}
	if err := ValidateYieldRate(r.AnnualYield); err != nil {
		return err
	}
	if r.TotalTokens <= 0 {
		return ErrInvalidTokenAmount
	}
	if r.FaceValue <= 0 || r.PurchasePrice <= 0 {
		return ErrInvalidAmount.Withf("face value and purchase price must be greater than zero")
	}

	return ValidateMaturityDate(r.MaturityDate, now)
}

// NewBill builds an active bill from a validated request.
func NewBill(id uint64, r BillCreateRequest, now int64) Bill {
	return Bill{
		ID:            id,
		CUSIP:         r.CUSIP,
		FaceValue:     r.FaceValue,
		PurchasePrice: r.PurchasePrice,
		MaturityDate:  r.MaturityDate,
		AnnualYield:   r.AnnualYield,
		TotalTokens:   r.TotalTokens,
		Status:        BillActive,
		CreatedAt:     now,
		UpdatedAt:     now,
		Issuer:        r.Issuer,
		BillType:      r.BillType,
	}
}
