// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package certmgr

import (
	"blockwatch.cc/certreg/pkg/certdata"
	"blockwatch.cc/certreg/pkg/ledger"
	"blockwatch.cc/certreg/pkg/stx"
)

type schoolArgs struct {
	School stx.Principal `json:"school"`
}

type addSchoolArgs struct {
	School      stx.Principal `json:"school"`
	Name        string        `json:"name"`
	MetadataURL string        `json:"metadata_url"`
}

type metadataURLArgs struct {
	School      stx.Principal `json:"school"`
	MetadataURL string        `json:"metadata_url"`
}

type fundArgs struct {
	School stx.Principal `json:"school"`
	Amount uint64        `json:"amount"`
}

type priceArgs struct {
	Price stx.MicroStx `json:"price"`
}

type idArgs struct {
	ID uint64 `json:"id"`
}

func (m *Manager) Functions() []ledger.Function {
	return []ledger.Function{
		// school lifecycle
		ledger.Public("add-school", func(ctx stx.CallContext, a addSchoolArgs) (interface{}, error) {
			return true, m.AddSchool(ctx, a.School, a.Name, a.MetadataURL)
		}),
		ledger.Public("deactivate-school", func(ctx stx.CallContext, a schoolArgs) (interface{}, error) {
			return true, m.DeactivateSchool(ctx, a.School)
		}),
		ledger.Public("reactivate-school", func(ctx stx.CallContext, a schoolArgs) (interface{}, error) {
			return true, m.ReactivateSchool(ctx, a.School)
		}),
		ledger.Public("verify-school", func(ctx stx.CallContext, a schoolArgs) (interface{}, error) {
			return true, m.VerifySchool(ctx, a.School)
		}),
		ledger.Public("unverify-school", func(ctx stx.CallContext, a schoolArgs) (interface{}, error) {
			return true, m.UnverifySchool(ctx, a.School)
		}),
		ledger.Public("update-school-metadata-url", func(ctx stx.CallContext, a metadataURLArgs) (interface{}, error) {
			return true, m.UpdateSchoolMetadataURL(ctx, a.School, a.MetadataURL)
		}),
		ledger.ReadOnly("get-school-info", func(_ stx.CallContext, a schoolArgs) (interface{}, error) {
			s, ok := m.GetSchoolInfo(a.School)
			return certdata.SchoolInfo{School: s, Found: ok}, nil
		}),

		// credits
		ledger.Public("admin-fund-school", func(ctx stx.CallContext, a fundArgs) (interface{}, error) {
			return m.AdminFundSchool(ctx, a.School, a.Amount)
		}),
		ledger.Public("purchase-credits", func(ctx stx.CallContext, a fundArgs) (interface{}, error) {
			return m.PurchaseCredits(ctx, a.School, a.Amount)
		}),
		ledger.Public("set-stx-per-credit", func(ctx stx.CallContext, a priceArgs) (interface{}, error) {
			return true, m.SetStxPerCredit(ctx, a.Price)
		}),
		ledger.ReadOnly("get-stx-per-credit", func(_ stx.CallContext, _ ledger.NoArgs) (interface{}, error) {
			return m.GetStxPerCredit(), nil
		}),
		ledger.ReadOnly("get-school-credits", func(_ stx.CallContext, a schoolArgs) (interface{}, error) {
			return m.GetSchoolCredits(a.School), nil
		}),

		// certificates
		ledger.Public("issue-certificate", func(ctx stx.CallContext, req IssueRequest) (interface{}, error) {
			return m.IssueCertificate(ctx, req)
		}),
		ledger.Public("revoke-certificate", func(ctx stx.CallContext, a idArgs) (interface{}, error) {
			return true, m.RevokeCertificate(ctx, a.ID)
		}),
		ledger.Public("reactivate-certificate", func(ctx stx.CallContext, a idArgs) (interface{}, error) {
			return true, m.ReactivateCertificate(ctx, a.ID)
		}),
		ledger.ReadOnly("is-certificate-valid", func(ctx stx.CallContext, a idArgs) (interface{}, error) {
			return m.IsCertificateValid(ctx, a.ID)
		}),
		ledger.ReadOnly("get-certificate", func(_ stx.CallContext, a idArgs) (interface{}, error) {
			if c, ok := m.GetCertificate(a.ID); ok {
				return &c, nil
			}
			return nil, nil
		}),
		ledger.ReadOnly("get-total-certificates", func(_ stx.CallContext, _ ledger.NoArgs) (interface{}, error) {
			return m.GetTotalCertificates(), nil
		}),
	}
}
