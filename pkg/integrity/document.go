// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package integrity

import (
	"encoding/json"
	"errors"
	"fmt"
)

const DocumentVersion = "1.0"

var ErrIdentifierMismatch = errors.New("integrity: identifier does not match recipient commitment")

// Document is the off-chain metadata bound to a certificate by its data hash.
// Field order matters for the legacy serialization scheme.
type Document struct {
	Version     string      `json:"version"`
	Certificate Course      `json:"certificate"`
	Recipient   Recipient   `json:"recipient"`
	Issuer      Issuer      `json:"issuer"`
	Achievement Achievement `json:"achievement"`
}

type Course struct {
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Modality     string      `json:"modality"`
	Hours        json.Number `json:"hours"`
	IssueDateISO string      `json:"issue_date_iso"`
	Language     string      `json:"language"`
	Category     string      `json:"category"`
}

type Recipient struct {
	Name           string `json:"name"`
	IdentifierHash string `json:"identifier_hash"`
	IdentifierSalt string `json:"identifier_salt"`
}

type Issuer struct {
	Name            string   `json:"name"`
	Department      string   `json:"department"`
	Instructors     []string `json:"instructors"`
	AuthorizationID string   `json:"authorization_id"`
}

type Achievement struct {
	SkillsAcquired []string `json:"skills_acquired"`
	Grade          string   `json:"grade"`
	Category       string   `json:"category"`
}

// Commit fills the recipient commitment for identifier with a fresh code and
// salt and returns the code. The code is handed to the student only.
func (d *Document) Commit(identifier string) (string, error) {
	code, err := NewVerificationCode()
	if err != nil {
		return "", err
	}
	salt, err := NewSalt()
	if err != nil {
		return "", err
	}
	d.Recipient.IdentifierSalt = salt
	d.Recipient.IdentifierHash = IdentifierHash(identifier, code, salt)
	return code, nil
}

// CheckRecipient proves ownership of a document by recomputing the recipient
// commitment from the real-world identifier and the verification code.
func CheckRecipient(d Document, identifier, code string) error {
	if d.Recipient.IdentifierHash == "" || d.Recipient.IdentifierSalt == "" {
		return fmt.Errorf("%w: document carries no commitment", ErrIdentifierMismatch)
	}
	if IdentifierHash(identifier, code, d.Recipient.IdentifierSalt) != d.Recipient.IdentifierHash {
		return ErrIdentifierMismatch
	}
	return nil
}

// ParseDocument decodes fetched metadata. Unknown fields are tolerated so
// that documents with extra display fields still verify.
func ParseDocument(buf []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(buf, &d); err != nil {
		return d, fmt.Errorf("integrity: decoding document: %w", err)
	}
	return d, nil
}
