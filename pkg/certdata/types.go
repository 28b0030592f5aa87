// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package certdata

import (
	"blockwatch.cc/certreg/pkg/stx"
)

const (
	ContractName = "certificate-data"

	// micro-STX charged per credit until changed
	DefaultStxPerCredit stx.MicroStx = 1_000_000
)

var (
	ErrNotAuthorized       = stx.NewContractError(100, "ERR_NOT_AUTHORIZED")
	ErrCertificateNotFound = stx.NewContractError(101, "ERR_CERTIFICATE_NOT_FOUND")
	ErrSchoolAlreadyExists = stx.NewContractError(104, "ERR_SCHOOL_ALREADY_EXISTS")
	ErrSchoolNotFound      = stx.NewContractError(105, "ERR_SCHOOL_NOT_FOUND")
	ErrInsufficientCredits = stx.NewContractError(106, "ERR_INSUFFICIENT_CREDITS")
	ErrInvalidAmount       = stx.NewContractError(107, "ERR_INVALID_AMOUNT")
)

type School struct {
	Name               string `json:"name"`
	Active             bool   `json:"active"`
	Verified           bool   `json:"verified"`
	RegistrationHeight uint64 `json:"registration_height"`
	MetadataURL        string `json:"metadata_url"`
}

// Certificate is immutable after creation except for Revoked.
type Certificate struct {
	SchoolID         stx.Principal `json:"school_id"`
	StudentWallet    stx.Principal `json:"student_wallet"`
	Grade            *string       `json:"grade"`
	IssueHeight      uint64        `json:"issue_height"`
	GraduationDate   uint64        `json:"graduation_date"`
	ExpirationHeight *uint64       `json:"expiration_height"`
	MetadataURL      string        `json:"metadata_url"`
	DataHash         stx.Hash      `json:"data_hash"`
	Revoked          bool          `json:"revoked"`
}

// IsValid derives validity at height; it is never stored.
func (c Certificate) IsValid(height uint64) bool {
	return !c.Revoked && !c.IsExpired(height)
}

func (c Certificate) IsExpired(height uint64) bool {
	return c.ExpirationHeight != nil && height > *c.ExpirationHeight
}

// Storage of the data contract. Map keys are plain types so the state can
// be borsh encoded for snapshots.
type ContractState struct {
	SuperAdmin         stx.Principal
	Writers            map[string]bool        // principal -> authorized writer
	Schools            map[string]School      // school principal -> record
	Credits            map[string]uint64      // school principal -> credits
	Certificates       map[uint64]Certificate // id -> record
	CertificateCounter uint64                 // last issued id
	StxPerCredit       stx.MicroStx
}
