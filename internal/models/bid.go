package models

import "time"

type BidStatus string

const (
	BidSubmitted   BidStatus = "SUBMITTED"
	BidUnderReview BidStatus = "UNDER_REVIEW"
	BidAccepted    BidStatus = "ACCEPTED"
	BidRejected    BidStatus = "REJECTED"
)

func ValidBidStatus(t BidStatus) bool {
	switch t {
	case BidSubmitted, BidUnderReview, BidAccepted, BidRejected:
		return true
	default:
		return false
	}
}

func (t BidStatus) Final() bool {
	return t == BidAccepted || t == BidRejected
}

type Bid struct {
	Id               string    `json:"id" db:"id"`
	LedgerId         string    `json:"ledgerId" db:"ledger_id"`
	TenderId         string    `json:"tenderId" db:"tender_id"`
	BidderId         string    `json:"bidderId" db:"bidder_id"`
	Amount           float64   `json:"amount" db:"amount"`
	Description      string    `json:"description" db:"description"`
	ProposedTimeline string    `json:"proposedTimeline" db:"proposed_timeline"`
	DocumentHash     string    `json:"documentHash,omitempty" db:"document_hash"`
	Status           BidStatus `json:"status" db:"status"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time `json:"updatedAt" db:"updated_at"`
}

// TenderBid is a bid as seen by the tender side, with the bidder's contact.
type TenderBid struct {
	Bid
	BidderName  string `json:"bidderName" db:"bidder_name"`
	BidderEmail string `json:"bidderEmail" db:"bidder_email"`
}

// CitizenBid is a bid as seen by its bidder, with the tender it targets.
type CitizenBid struct {
	Bid
	TenderTitle  string       `json:"tenderTitle" db:"tender_title"`
	TenderStatus TenderStatus `json:"tenderStatus" db:"tender_status"`
}
