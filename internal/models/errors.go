package models

import "errors"

var (
	ErrValidation            = errors.New("validation failed")
	ErrDuplicateUser         = errors.New("user with this login already exists")
	ErrUnauthorized          = errors.New("unauthorized request")
	ErrInvalidToken          = errors.New("invalid token")
	ErrExpiredOrRevokedToken = errors.New("refresh token is expired or used")
	ErrAccountNotVerified    = errors.New("account is not verified yet")
	ErrInvalidCredentials    = errors.New("invalid user credentials")
	ErrForbidden             = errors.New("principal does not have permission for this operation")
	ErrNoCitizen             = errors.New("requested citizen does not exist")
	ErrNoAdmin               = errors.New("requested admin does not exist")
	ErrNoOwner               = errors.New("requested owner does not exist")
	ErrNoTender              = errors.New("requested tender does not exist")
	ErrNoBid                 = errors.New("requested bid does not exist")
	ErrTenderNotOpen         = errors.New("tender is not open for bidding")
	ErrInvalidTransition     = errors.New("status transition is not allowed")
	ErrBidFinalized          = errors.New("bid is already accepted or rejected")
	ErrUpload                = errors.New("profile image upload failed")
	ErrStorage               = errors.New("document storage failed")
	ErrLedger                = errors.New("ledger call failed")
)
