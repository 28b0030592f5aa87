// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package cache

import (
	"gorm.io/gorm"
)

// Certificate maps an on-chain certificate id to the transaction that
// issued it and keeps display fields. It is never authoritative for validity.
type Certificate struct {
	gorm.Model
	ChainCertID   uint64 `json:"chain_cert_id" gorm:"uniqueIndex;not null"`
	TxID          string `json:"tx_id" gorm:"uniqueIndex;size:66;not null"`
	SchoolID      string `json:"school_id" gorm:"index"`
	StudentWallet string `json:"student_wallet" gorm:"index"`
	StudentName   string `json:"student_name"`
	CourseTitle   string `json:"course_title"`
	Grade         string `json:"grade"`
	MetadataURL   string `json:"metadata_url"`
	DataHash      string `json:"data_hash" gorm:"size:66"`
	HashScheme    string `json:"hash_scheme" gorm:"default:'canonical'"`
	Revoked       bool   `json:"revoked" gorm:"default:false"`
}

// Credential resolves a human-entered email to a wallet principal.
type Credential struct {
	gorm.Model
	Email  string `json:"email" gorm:"uniqueIndex;not null"`
	Wallet string `json:"wallet" gorm:"not null"`
}
