// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package integrity

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

const (
	// no I, O, 0 or 1
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength   = 6
	SaltLength   = 16
)

// Normalize lowercases an identifier and drops everything outside [a-z0-9].
func Normalize(identifier string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(identifier) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func NewVerificationCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	// 256 is a multiple of the alphabet size, so there is no modulo bias
	for i, v := range buf {
		buf[i] = CodeAlphabet[int(v)%len(CodeAlphabet)]
	}
	return string(buf), nil
}

func NewSalt() (string, error) {
	buf := make([]byte, SaltLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// IdentifierHash is hex(sha256(normalize(identifier) + code + salt)).
func IdentifierHash(identifier, code, salt string) string {
	h := digest([]byte(Normalize(identifier) + code + salt))
	return hex.EncodeToString(h[:])
}
