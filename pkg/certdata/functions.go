// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package certdata

import (
	"blockwatch.cc/certreg/pkg/ledger"
	"blockwatch.cc/certreg/pkg/stx"
)

type principalArgs struct {
	Principal stx.Principal `json:"principal"`
}

type storeSchoolArgs struct {
	School      stx.Principal `json:"school"`
	Name        string        `json:"name"`
	MetadataURL string        `json:"metadata_url"`
}

type updateSchoolArgs struct {
	School stx.Principal `json:"school"`
	Record School        `json:"record"`
}

type creditsArgs struct {
	School stx.Principal `json:"school"`
	Amount uint64        `json:"amount"`
}

type idArgs struct {
	ID uint64 `json:"id"`
}

type revokedArgs struct {
	ID      uint64 `json:"id"`
	Revoked bool   `json:"revoked"`
}

type priceArgs struct {
	Price stx.MicroStx `json:"price"`
}

// SchoolInfo is the optional school record returned by get-school.
type SchoolInfo struct {
	School
	Found bool `json:"found"`
}

func (d *Data) Functions() []ledger.Function {
	return []ledger.Function{
		// writer set
		ledger.Public("authorize-writer", func(ctx stx.CallContext, a principalArgs) (interface{}, error) {
			return true, d.AuthorizeWriter(ctx, a.Principal)
		}),
		ledger.Public("revoke-writer", func(ctx stx.CallContext, a principalArgs) (interface{}, error) {
			return true, d.RevokeWriter(ctx, a.Principal)
		}),
		ledger.ReadOnly("is-writer-authorized", func(_ stx.CallContext, a principalArgs) (interface{}, error) {
			return d.IsWriterAuthorized(a.Principal), nil
		}),
		ledger.ReadOnly("get-super-admin", func(_ stx.CallContext, _ ledger.NoArgs) (interface{}, error) {
			return d.GetSuperAdmin(), nil
		}),
		ledger.Public("change-super-admin", func(ctx stx.CallContext, a principalArgs) (interface{}, error) {
			return true, d.ChangeSuperAdmin(ctx, a.Principal)
		}),

		// schools
		ledger.Public("store-school", func(ctx stx.CallContext, a storeSchoolArgs) (interface{}, error) {
			return true, d.StoreSchool(ctx, a.School, a.Name, a.MetadataURL)
		}),
		ledger.Public("update-school", func(ctx stx.CallContext, a updateSchoolArgs) (interface{}, error) {
			return true, d.UpdateSchool(ctx, a.School, a.Record)
		}),
		ledger.ReadOnly("get-school", func(_ stx.CallContext, a principalArgs) (interface{}, error) {
			s, ok := d.GetSchool(a.Principal)
			return SchoolInfo{School: s, Found: ok}, nil
		}),

		// credits
		ledger.ReadOnly("get-credits", func(_ stx.CallContext, a principalArgs) (interface{}, error) {
			return d.GetCredits(a.Principal), nil
		}),
		ledger.Public("set-credits", func(ctx stx.CallContext, a creditsArgs) (interface{}, error) {
			return a.Amount, d.SetCredits(ctx, a.School, a.Amount)
		}),
		ledger.Public("add-credits", func(ctx stx.CallContext, a creditsArgs) (interface{}, error) {
			return d.AddCredits(ctx, a.School, a.Amount)
		}),
		ledger.Public("consume-credit", func(ctx stx.CallContext, a principalArgs) (interface{}, error) {
			return d.ConsumeCredit(ctx, a.Principal)
		}),
		ledger.Public("set-stx-per-credit", func(ctx stx.CallContext, a priceArgs) (interface{}, error) {
			return true, d.SetStxPerCredit(ctx, a.Price)
		}),
		ledger.ReadOnly("get-stx-per-credit", func(_ stx.CallContext, _ ledger.NoArgs) (interface{}, error) {
			return d.GetStxPerCredit(), nil
		}),

		// certificates
		ledger.Public("store-certificate", func(ctx stx.CallContext, c Certificate) (interface{}, error) {
			return d.StoreCertificate(ctx, c)
		}),
		ledger.Public("set-certificate-revoked", func(ctx stx.CallContext, a revokedArgs) (interface{}, error) {
			return true, d.SetCertificateRevoked(ctx, a.ID, a.Revoked)
		}),
		ledger.ReadOnly("get-certificate", func(_ stx.CallContext, a idArgs) (interface{}, error) {
			if c, ok := d.GetCertificate(a.ID); ok {
				return &c, nil
			}
			return nil, nil
		}),
		ledger.ReadOnly("get-certificate-counter", func(_ stx.CallContext, _ ledger.NoArgs) (interface{}, error) {
			return d.GetCertificateCounter(), nil
		}),
	}
}
