// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package certmgr

import (
	"fmt"

	"blockwatch.cc/certreg/pkg/certdata"
	"blockwatch.cc/certreg/pkg/stx"
)

var _ Contract = (*Manager)(nil)

// Manager holds the business rules for schools, credits and certificates.
// All state lives in the Storage it was deployed against.
type Manager struct {
	principal stx.Principal
	store     Storage
}

func New(deployer stx.Principal, name string, store Storage) *Manager {
	if name == "" {
		name = ContractName
	}
	return &Manager{
		principal: deployer.Contract(name),
		store:     store,
	}
}

func (m *Manager) Principal() stx.Principal {
	return m.principal
}

// inner is the context seen by the data contract when the manager calls it.
func (m *Manager) inner(ctx stx.CallContext) stx.CallContext {
	return ctx.As(m.principal)
}

func (m *Manager) isAdmin(ctx stx.CallContext) bool {
	return ctx.Sender == m.store.GetSuperAdmin()
}

func (m *Manager) AddSchool(ctx stx.CallContext, school stx.Principal, name, url string) error {
	if !m.isAdmin(ctx) {
		return ErrNotAuthorized
	}
	if _, ok := m.store.GetSchool(school); ok {
		return ErrSchoolAlreadyExists
	}
	return m.store.StoreSchool(m.inner(ctx), school, name, url)
}

func (m *Manager) updateSchool(ctx stx.CallContext, school stx.Principal, fn func(*certdata.School)) error {
	if !m.isAdmin(ctx) {
		return ErrNotAuthorized
	}
	s, ok := m.store.GetSchool(school)
	if !ok {
		return ErrSchoolNotFound
	}
	fn(&s)
	return m.store.UpdateSchool(m.inner(ctx), school, s)
}

// A deactivated school can no longer issue. Existing certificates stay valid.
func (m *Manager) DeactivateSchool(ctx stx.CallContext, school stx.Principal) error {
	return m.updateSchool(ctx, school, func(s *certdata.School) { s.Active = false })
}

func (m *Manager) ReactivateSchool(ctx stx.CallContext, school stx.Principal) error {
	return m.updateSchool(ctx, school, func(s *certdata.School) { s.Active = true })
}

// Verification is informational and not checked on issuance.
func (m *Manager) VerifySchool(ctx stx.CallContext, school stx.Principal) error {
	return m.updateSchool(ctx, school, func(s *certdata.School) { s.Verified = true })
}

func (m *Manager) UnverifySchool(ctx stx.CallContext, school stx.Principal) error {
	return m.updateSchool(ctx, school, func(s *certdata.School) { s.Verified = false })
}

func (m *Manager) UpdateSchoolMetadataURL(ctx stx.CallContext, school stx.Principal, url string) error {
	return m.updateSchool(ctx, school, func(s *certdata.School) { s.MetadataURL = url })
}

func (m *Manager) AdminFundSchool(ctx stx.CallContext, school stx.Principal, amount uint64) (uint64, error) {
	if !m.isAdmin(ctx) {
		return 0, ErrNotAuthorized
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	if _, ok := m.store.GetSchool(school); !ok {
		return 0, ErrSchoolNotFound
	}
	return m.store.AddCredits(m.inner(ctx), school, amount)
}

// PurchaseCredits moves credits * stx-per-credit from the tx-sender to the
// super admin and credits the school. Both effects commit or abort together.
func (m *Manager) PurchaseCredits(ctx stx.CallContext, school stx.Principal, credits uint64) (uint64, error) {
	if credits == 0 {
		return 0, ErrInvalidAmount
	}
	if _, ok := m.store.GetSchool(school); !ok {
		return 0, ErrSchoolNotFound
	}
	price := m.store.GetStxPerCredit()
	cost := price.Mul(credits)
	if price > 0 && cost.Div(uint64(price)) != stx.MicroStx(credits) {
		return 0, ErrInvalidAmount
	}
	if err := ctx.Transfer(m.store.GetSuperAdmin(), cost); err != nil {
		return 0, fmt.Errorf("paying %s for %d credits: %w", cost, credits, err)
	}
	return m.store.AddCredits(m.inner(ctx), school, credits)
}

func (m *Manager) SetStxPerCredit(ctx stx.CallContext, price stx.MicroStx) error {
	if !m.isAdmin(ctx) {
		return ErrNotAuthorized
	}
	if price == 0 {
		return ErrInvalidAmount
	}
	return m.store.SetStxPerCredit(m.inner(ctx), price)
}

// IssueCertificate checks, in order, that the caller is an active school and
// that it holds a credit. It then debits the credit and stores the
// certificate under the next id.
func (m *Manager) IssueCertificate(ctx stx.CallContext, req IssueRequest) (uint64, error) {
	school, ok := m.store.GetSchool(ctx.Sender)
	if !ok || !school.Active {
		return 0, ErrNotAuthorized
	}
	if m.store.GetCredits(ctx.Sender) < 1 {
		return 0, ErrInsufficientCredits
	}
	inner := m.inner(ctx)
	if _, err := m.store.ConsumeCredit(inner, ctx.Sender); err != nil {
		return 0, err
	}
	return m.store.StoreCertificate(inner, certdata.Certificate{
		SchoolID:         ctx.Sender,
		StudentWallet:    req.StudentWallet,
		Grade:            req.Grade,
		IssueHeight:      ctx.Height,
		GraduationDate:   req.GraduationDate,
		ExpirationHeight: req.ExpirationHeight,
		MetadataURL:      req.MetadataURL,
		DataHash:         req.DataHash,
		Revoked:          false,
	})
}

func (m *Manager) setRevoked(ctx stx.CallContext, id uint64, revoked bool) error {
	c, ok := m.store.GetCertificate(id)
	if !ok {
		return ErrCertificateNotFound
	}
	if ctx.Sender != c.SchoolID && !m.isAdmin(ctx) {
		return ErrNotAuthorized
	}
	return m.store.SetCertificateRevoked(m.inner(ctx), id, revoked)
}

func (m *Manager) RevokeCertificate(ctx stx.CallContext, id uint64) error {
	return m.setRevoked(ctx, id, true)
}

func (m *Manager) ReactivateCertificate(ctx stx.CallContext, id uint64) error {
	return m.setRevoked(ctx, id, false)
}

func (m *Manager) IsCertificateValid(ctx stx.CallContext, id uint64) (bool, error) {
	c, ok := m.store.GetCertificate(id)
	if !ok {
		return false, ErrCertificateNotFound
	}
	return c.IsValid(ctx.Height), nil
}

func (m *Manager) GetCertificate(id uint64) (certdata.Certificate, bool) {
	return m.store.GetCertificate(id)
}

func (m *Manager) GetTotalCertificates() uint64 {
	return m.store.GetCertificateCounter()
}

func (m *Manager) GetSchoolInfo(school stx.Principal) (certdata.School, bool) {
	return m.store.GetSchool(school)
}

func (m *Manager) GetSchoolCredits(school stx.Principal) uint64 {
	return m.store.GetCredits(school)
}

func (m *Manager) GetStxPerCredit() stx.MicroStx {
	return m.store.GetStxPerCredit()
}

// The manager has no storage of its own.
func (m *Manager) Snapshot() ([]byte, error) {
	return nil, nil
}

func (m *Manager) Restore([]byte) error {
	return nil
}
