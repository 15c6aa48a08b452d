package models

import "time"

type TenderStatus string

const (
	TenderOpen        TenderStatus = "OPEN"
	TenderUnderReview TenderStatus = "UNDER_REVIEW"
	TenderAwarded     TenderStatus = "AWARDED"
	TenderCompleted   TenderStatus = "COMPLETED"
	TenderCancelled   TenderStatus = "CANCELLED"
)

func ValidTenderStatus(t TenderStatus) bool {
	switch t {
	case TenderOpen, TenderUnderReview, TenderAwarded, TenderCompleted, TenderCancelled:
		return true
	default:
		return false
	}
}

var tenderTransitions = map[TenderStatus][]TenderStatus{
	TenderOpen:        {TenderUnderReview, TenderAwarded, TenderCancelled},
	TenderUnderReview: {TenderAwarded, TenderCancelled},
	TenderAwarded:     {TenderCompleted, TenderCancelled},
}

// CanTransitionTender reports whether a tender may move from one status to another.
// COMPLETED and CANCELLED have no outgoing transitions.
func CanTransitionTender(from, to TenderStatus) bool {
	for _, s := range tenderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (t TenderStatus) Terminal() bool {
	return t == TenderCompleted || t == TenderCancelled
}

// AcceptsBids reports whether a bid may still be accepted on a tender in this status.
func (t TenderStatus) AcceptsBids() bool {
	return t == TenderOpen || t == TenderUnderReview
}

type Tender struct {
	Id            string       `json:"id" db:"id"`
	LedgerId      string       `json:"ledgerId" db:"ledger_id"`
	Title         string       `json:"title" db:"title"`
	Description   string       `json:"description" db:"description"`
	Budget        float64      `json:"budget" db:"budget"`
	Deadline      time.Time    `json:"deadline" db:"deadline"`
	Status        TenderStatus `json:"status" db:"status"`
	CreatedBy     string       `json:"createdBy" db:"created_by"`
	DocumentHash  string       `json:"documentHash,omitempty" db:"document_hash"`
	SelectedBidId *string      `json:"selectedBidId,omitempty" db:"selected_bid_id"`
	CreatedAt     time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time    `json:"updatedAt" db:"updated_at"`
}

type TenderFilter struct {
	Status    TenderStatus
	MinBudget *float64
	MaxBudget *float64
	Search    string
	Limit     int
	Offset    int
}

// LedgerSnapshot is the ledger's view of a tender.
type LedgerSnapshot struct {
	Id     string         `json:"id"`
	Status TenderStatus   `json:"status"`
	Fields map[string]any `json:"fields,omitempty"`
}

type TenderDetails struct {
	Tender Tender          `json:"tender"`
	Bids   []TenderBid     `json:"bids,omitempty"`
	Ledger *LedgerSnapshot `json:"ledger,omitempty"`
}
