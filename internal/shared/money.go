package shared

import "github.com/shopspring/decimal"

// MoneyPlaces is the scale of every stored amount (NUMERIC(18,2)).
const MoneyPlaces = 2

// maxMoney is the first magnitude NUMERIC(18,2) cannot hold.
var maxMoney = decimal.New(1, 16)

var (
	// ErrAmountPrecision rejects amounts finer than a cent.
	ErrAmountPrecision = Validation("amount must not have more than two decimal places")
	// ErrAmountOutOfRange rejects amounts the store cannot represent.
	ErrAmountOutOfRange = Validation("amount out of range")
)

// CheckMoney rejects amounts that the database would round or refuse. Stored
// amounts must be exact cents for cached balances to equal their sums.
func CheckMoney(amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(MoneyPlaces)) {
		return ErrAmountPrecision
	}
	if amount.Abs().GreaterThanOrEqual(maxMoney) {
		return ErrAmountOutOfRange
	}
	return nil
}
