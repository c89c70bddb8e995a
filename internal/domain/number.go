package domain

import (
	"fmt"
	"time"
)

// NumberScheme describes how an entity's human-readable number is laid out.
type NumberScheme struct {
	Prefix string
	Yearly bool // PREFIX-YY-NN instead of PREFIX/YYYY/MM/NNNN
}

var (
	NumberRFQ           = NumberScheme{Prefix: "RFQ"}
	NumberOffer         = NumberScheme{Prefix: "OFF"}
	NumberPurchaseOrder = NumberScheme{Prefix: "PO"}
	NumberGoodsReceipt  = NumberScheme{Prefix: "GR"}
	NumberMatch         = NumberScheme{Prefix: "TWM"}
	NumberProposal      = NumberScheme{Prefix: "PROP", Yearly: true}
)

// Period returns the counter period that t falls into.
func (s NumberScheme) Period(t time.Time) string {
	if s.Yearly {
		return t.Format("06")
	}
	return t.Format("2006/01")
}

// Format renders sequence seq of period.
func (s NumberScheme) Format(period string, seq int) string {
	if s.Yearly {
		return fmt.Sprintf("%s-%s-%02d", s.Prefix, period, seq)
	}
	return fmt.Sprintf("%s/%s/%04d", s.Prefix, period, seq)
}

// CounterKey identifies the counter document for a period.
func (s NumberScheme) CounterKey(period string) string {
	return s.Prefix + "/" + period
}
