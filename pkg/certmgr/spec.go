// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package certmgr

import (
	"blockwatch.cc/certreg/pkg/certdata"
	"blockwatch.cc/certreg/pkg/stx"
)

const ContractName = "certificate-manager-v1"

// Error codes are stable; clients branch on them.
var (
	ErrNotAuthorized       = certdata.ErrNotAuthorized       // u100
	ErrCertificateNotFound = certdata.ErrCertificateNotFound // u101
	ErrSchoolAlreadyExists = certdata.ErrSchoolAlreadyExists // u104
	ErrSchoolNotFound      = certdata.ErrSchoolNotFound      // u105
	ErrInsufficientCredits = certdata.ErrInsufficientCredits // u106
	ErrInvalidAmount       = certdata.ErrInvalidAmount       // u107
)

// Storage is the capability the manager needs from the data layer. The
// manager keeps no state of its own, so any contract implementing Storage
// and granting the manager writer access can back it.
type Storage interface {
	Principal() stx.Principal
	GetSuperAdmin() stx.Principal

	StoreSchool(ctx stx.CallContext, p stx.Principal, name, url string) error
	UpdateSchool(ctx stx.CallContext, p stx.Principal, s certdata.School) error
	GetSchool(p stx.Principal) (certdata.School, bool)

	GetCredits(p stx.Principal) uint64
	AddCredits(ctx stx.CallContext, p stx.Principal, n uint64) (uint64, error)
	ConsumeCredit(ctx stx.CallContext, p stx.Principal) (uint64, error)

	StoreCertificate(ctx stx.CallContext, c certdata.Certificate) (uint64, error)
	SetCertificateRevoked(ctx stx.CallContext, id uint64, revoked bool) error
	GetCertificate(id uint64) (certdata.Certificate, bool)
	GetCertificateCounter() uint64

	SetStxPerCredit(ctx stx.CallContext, price stx.MicroStx) error
	GetStxPerCredit() stx.MicroStx
}

// IssueRequest carries the arguments of issue-certificate.
type IssueRequest struct {
	StudentWallet    stx.Principal `json:"student_wallet"`
	Grade            *string       `json:"grade"`
	GraduationDate   uint64        `json:"graduation_date"`
	ExpirationHeight *uint64       `json:"expiration_height"`
	MetadataURL      string        `json:"metadata_url"`
	DataHash         stx.Hash      `json:"data_hash"`
}

type Contract interface {
	// Creates an active, unverified school
	// Called by: super admin
	AddSchool(ctx stx.CallContext, school stx.Principal, name, url string) error

	// Called by: super admin
	DeactivateSchool(ctx stx.CallContext, school stx.Principal) error
	ReactivateSchool(ctx stx.CallContext, school stx.Principal) error
	VerifySchool(ctx stx.CallContext, school stx.Principal) error
	UnverifySchool(ctx stx.CallContext, school stx.Principal) error
	UpdateSchoolMetadataURL(ctx stx.CallContext, school stx.Principal, url string) error

	// Grants credits without payment
	// Called by: super admin
	AdminFundSchool(ctx stx.CallContext, school stx.Principal, amount uint64) (uint64, error)

	// Pays for credits and receives them in the same transaction
	// Called by: anyone
	PurchaseCredits(ctx stx.CallContext, school stx.Principal, credits uint64) (uint64, error)

	// Called by: super admin
	SetStxPerCredit(ctx stx.CallContext, price stx.MicroStx) error

	// Debits one credit and stores a new certificate
	// Called by: school
	IssueCertificate(ctx stx.CallContext, req IssueRequest) (uint64, error)

	// Called by: issuing school or super admin
	RevokeCertificate(ctx stx.CallContext, id uint64) error
	ReactivateCertificate(ctx stx.CallContext, id uint64) error

	// Views
	IsCertificateValid(ctx stx.CallContext, id uint64) (bool, error)
	GetCertificate(id uint64) (certdata.Certificate, bool)
	GetTotalCertificates() uint64
	GetSchoolInfo(school stx.Principal) (certdata.School, bool)
	GetSchoolCredits(school stx.Principal) uint64
	GetStxPerCredit() stx.MicroStx
}
