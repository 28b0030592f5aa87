// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package certdata

import (
	"fmt"

	"github.com/near/borsh-go"

	"blockwatch.cc/certreg/pkg/stx"
)

// Data is the storage layer of the certificate system. Business data can
// only be mutated by contracts in the writer set, so the manager logic can
// be replaced without migrating schools, credits or certificates.
type Data struct {
	ContractState
	principal stx.Principal
}

func New(deployer stx.Principal) *Data {
	return &Data{
		principal: deployer.Contract(ContractName),
		ContractState: ContractState{
			SuperAdmin:   deployer,
			Writers:      make(map[string]bool),
			Schools:      make(map[string]School),
			Credits:      make(map[string]uint64),
			Certificates: make(map[uint64]Certificate),
			StxPerCredit: DefaultStxPerCredit,
		},
	}
}

func (d *Data) Principal() stx.Principal {
	return d.principal
}

func (d *Data) checkWriter(ctx stx.CallContext) error {
	if !d.Writers[string(ctx.Caller)] {
		return ErrNotAuthorized
	}
	return nil
}

func (d *Data) checkAdmin(ctx stx.CallContext) error {
	if ctx.Sender != d.SuperAdmin {
		return ErrNotAuthorized
	}
	return nil
}

// Grants storage write access to a principal
// Called by: super admin
func (d *Data) AuthorizeWriter(ctx stx.CallContext, p stx.Principal) error {
	if err := d.checkAdmin(ctx); err != nil {
		return err
	}
	d.Writers[string(p)] = true
	return nil
}

// Removes storage write access from a principal
// Called by: super admin
func (d *Data) RevokeWriter(ctx stx.CallContext, p stx.Principal) error {
	if err := d.checkAdmin(ctx); err != nil {
		return err
	}
	delete(d.Writers, string(p))
	return nil
}

func (d *Data) IsWriterAuthorized(p stx.Principal) bool {
	return d.Writers[string(p)]
}

func (d *Data) GetSuperAdmin() stx.Principal {
	return d.SuperAdmin
}

// Called by: super admin
func (d *Data) ChangeSuperAdmin(ctx stx.CallContext, admin stx.Principal) error {
	if err := d.checkAdmin(ctx); err != nil {
		return err
	}
	if admin == d.SuperAdmin {
		return ErrNotAuthorized
	}
	d.SuperAdmin = admin
	return nil
}

// Creates a school record. Fails when the school already exists.
// Called by: writer
func (d *Data) StoreSchool(ctx stx.CallContext, p stx.Principal, name, url string) error {
	if err := d.checkWriter(ctx); err != nil {
		return err
	}
	if _, ok := d.Schools[string(p)]; ok {
		return ErrSchoolAlreadyExists
	}
	d.Schools[string(p)] = School{
		Name:               name,
		Active:             true,
		Verified:           false,
		RegistrationHeight: ctx.Height,
		MetadataURL:        url,
	}
	return nil
}

// Overwrites an existing school record.
// Called by: writer
func (d *Data) UpdateSchool(ctx stx.CallContext, p stx.Principal, s School) error {
	if err := d.checkWriter(ctx); err != nil {
		return err
	}
	if _, ok := d.Schools[string(p)]; !ok {
		return ErrSchoolNotFound
	}
	d.Schools[string(p)] = s
	return nil
}

func (d *Data) GetSchool(p stx.Principal) (School, bool) {
	s, ok := d.Schools[string(p)]
	return s, ok
}

// Unknown schools have zero credits.
func (d *Data) GetCredits(p stx.Principal) uint64 {
	return d.Credits[string(p)]
}

// Called by: writer
func (d *Data) SetCredits(ctx stx.CallContext, p stx.Principal, n uint64) error {
	if err := d.checkWriter(ctx); err != nil {
		return err
	}
	d.Credits[string(p)] = n
	return nil
}

// Called by: writer
func (d *Data) AddCredits(ctx stx.CallContext, p stx.Principal, n uint64) (uint64, error) {
	if err := d.checkWriter(ctx); err != nil {
		return 0, err
	}
	bal := d.Credits[string(p)]
	if bal+n < bal {
		return 0, fmt.Errorf("credits overflow for %s", p)
	}
	d.Credits[string(p)] = bal + n
	return bal + n, nil
}

// Removes a single credit. Balances never go negative.
// Called by: writer
func (d *Data) ConsumeCredit(ctx stx.CallContext, p stx.Principal) (uint64, error) {
	if err := d.checkWriter(ctx); err != nil {
		return 0, err
	}
	bal := d.Credits[string(p)]
	if bal < 1 {
		return 0, ErrInsufficientCredits
	}
	d.Credits[string(p)] = bal - 1
	return bal - 1, nil
}

// Persists a certificate under the next id and returns the id.
// Called by: writer
func (d *Data) StoreCertificate(ctx stx.CallContext, c Certificate) (uint64, error) {
	if err := d.checkWriter(ctx); err != nil {
		return 0, err
	}
	id := d.CertificateCounter + 1
	d.Certificates[id] = c
	d.CertificateCounter = id
	return id, nil
}

// Called by: writer
func (d *Data) SetCertificateRevoked(ctx stx.CallContext, id uint64, revoked bool) error {
	if err := d.checkWriter(ctx); err != nil {
		return err
	}
	c, ok := d.Certificates[id]
	if !ok {
		return ErrCertificateNotFound
	}
	c.Revoked = revoked
	d.Certificates[id] = c
	return nil
}

func (d *Data) GetCertificate(id uint64) (Certificate, bool) {
	c, ok := d.Certificates[id]
	return c, ok
}

func (d *Data) GetCertificateCounter() uint64 {
	return d.CertificateCounter
}

// Called by: writer
// A zero price would make purchased credits free.
func (d *Data) SetStxPerCredit(ctx stx.CallContext, price stx.MicroStx) error {
	if err := d.checkWriter(ctx); err != nil {
		return err
	}
	if price == 0 {
		return ErrInvalidAmount
	}
	d.StxPerCredit = price
	return nil
}

func (d *Data) GetStxPerCredit() stx.MicroStx {
	return d.StxPerCredit
}

func (d *Data) Snapshot() ([]byte, error) {
	return borsh.Serialize(d.ContractState)
}

func (d *Data) Restore(buf []byte) error {
	var s ContractState
	if err := borsh.Deserialize(&s, buf); err != nil {
		return fmt.Errorf("certificate-data: %v", err)
	}
	d.ContractState = s
	return nil
}
