// Package award implements the award service: resolves the prize a draw
// produced and delivers it, exactly once per charge.
package award

import (
	"github.com/wisbric/paygate/pkg/fairness"
)

// Plan is the input the successful-payment handler builds once a draw
// completes.
type Plan struct {
	ChargeID         string
	ProviderChargeID string
	AmountStars      int64
	Currency         string
	UserID           int64
	CaseID           string
	Nonce            string
	ResultItemID     *string
	RngRecord        fairness.DrawRecord
	RngReceipt       fairness.Receipt
}
