// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockwatch.cc/certreg/pkg/stx"
)

func testDocument() Document {
	return Document{
		Version: DocumentVersion,
		Certificate: Course{
			Title:        "Smart Contracts 101",
			Description:  "Clarity & <Go> basics",
			Modality:     "online",
			Hours:        "40.50",
			IssueDateISO: "2024-05-01",
			Language:     "en",
			Category:     "engineering",
		},
		Recipient: Recipient{Name: "Ada Lovelace"},
		Issuer: Issuer{
			Name:            "Academy",
			Department:      "CS",
			Instructors:     []string{"Alan", "Grace"},
			AuthorizationID: "AUTH-1",
		},
		Achievement: Achievement{
			SkillsAcquired: []string{"clarity"},
			Grade:          "A",
			Category:       "course",
		},
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "abc123", Normalize(" A.b-C 1/2_3 "))
	assert.Equal(t, "", Normalize("__--"))
	assert.Equal(t, "ab", Normalize("Äab"), "non ascii dropped")
}

func TestVerificationCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := NewVerificationCode()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(CodeAlphabet, r), "symbol %q", r)
		}
		assert.NotContains(t, code, "0")
		assert.NotContains(t, code, "O")
	}
	assert.Len(t, CodeAlphabet, 32)
}

func TestIdentifierHash(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	assert.Len(t, salt, 2*SaltLength, "hex encoded")

	sum := sha256.Sum256([]byte("12345678x" + "ABC234" + salt))
	assert.Equal(t, hex.EncodeToString(sum[:]), IdentifierHash("12.345.678-X", "ABC234", salt))
}

func TestCheckRecipient(t *testing.T) {
	d := testDocument()
	code, err := d.Commit("ada@example.org")
	require.NoError(t, err)
	assert.NoError(t, CheckRecipient(d, "ADA@example.org", code), "normalized identifier")
	assert.ErrorIs(t, CheckRecipient(d, "bob@example.org", code), ErrIdentifierMismatch, "wrong identifier")
	assert.ErrorIs(t, CheckRecipient(testDocument(), "ada@example.org", code), ErrIdentifierMismatch, "no commitment")
}

func TestSerializeLegacy(t *testing.T) {
	buf, err := Serialize(testDocument(), SchemeLegacy)
	require.NoError(t, err)
	s := string(buf)
	assert.True(t, strings.HasPrefix(s, "{\n  \"version\": \"1.0\",\n  \"certificate\": {\n    \"title\""), "document order, 2 space indent")
	assert.Contains(t, s, `"hours": 40.50`, "number verbatim")
	assert.Contains(t, s, "Clarity & <Go> basics", "no html escaping")
	assert.False(t, strings.HasSuffix(s, "\n"), "no trailing newline")
}

func TestSerializeCanonical(t *testing.T) {
	buf, err := Serialize(testDocument(), SchemeCanonical)
	require.NoError(t, err)
	s := string(buf)
	assert.True(t, strings.HasPrefix(s, "{\n  \"achievement\": {\n    \"category\""), "sorted keys")
	assert.Contains(t, s, `"hours": 40.50`, "number verbatim")
	assert.Contains(t, s, "Clarity & <Go> basics", "no html escaping")

	// independent of input key order and whitespace
	a, err := Reserialize([]byte(`{"b":1,"a":{"y":2.0,"x":[1,2]}}`), SchemeCanonical)
	require.NoError(t, err)
	b, err := Reserialize([]byte("{ \"a\" : { \"x\":[1, 2], \"y\":2.0 },\n\"b\":1 }"), SchemeCanonical)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, "{\n  \"a\": {\n    \"x\": [\n      1,\n      2\n    ],\n    \"y\": 2.0\n  },\n  \"b\": 1\n}", string(a))

	_, err = Reserialize([]byte(`{"a":1}{"b":2}`), SchemeCanonical)
	assert.ErrorIs(t, err, ErrTrailingData)

	_, err = Reserialize([]byte(`{}`), Scheme("yaml"))
	assert.ErrorIs(t, err, ErrUnknownScheme)
}

func TestRoundTrip(t *testing.T) {
	for _, s := range Schemes {
		buf, err := Serialize(testDocument(), s)
		require.NoError(t, err)
		onchain := DataHash(buf)
		assert.Equal(t, stx.Hash(sha256.Sum256(buf)), onchain, "plain sha256")

		// a verifier re-serializing fetched bytes under the same scheme
		again, err := Reserialize(buf, s)
		require.NoError(t, err)
		assert.Equal(t, onchain, DataHash(again), "scheme %s is stable", s)

		got, h, ok := Match(buf, onchain)
		assert.True(t, ok, "scheme %s matches", s)
		assert.Equal(t, s, got)
		assert.Equal(t, onchain, h)
	}
}

func TestRoundTripBoundary(t *testing.T) {
	buf, err := Serialize(testDocument(), SchemeLegacy)
	require.NoError(t, err)
	onchain := DataHash(buf)

	// any other convention breaks the commitment
	compact := strings.NewReplacer("\n", "", "  ", "").Replace(string(buf))
	assert.NotEqual(t, onchain, DataHash([]byte(compact)), "whitespace changes the hash")
	tabs := strings.ReplaceAll(string(buf), "  ", "\t")
	assert.NotEqual(t, onchain, DataHash([]byte(tabs)), "indent changes the hash")
	canon, err := Serialize(testDocument(), SchemeCanonical)
	require.NoError(t, err)
	assert.NotEqual(t, onchain, DataHash(canon), "key order changes the hash")

	// legacy matching recovers re-indented bytes in the original key order
	s, _, ok := Match([]byte(compact), onchain)
	assert.True(t, ok, "legacy re-indent")
	assert.Equal(t, SchemeLegacy, s)

	// tampered content never matches
	tampered := strings.Replace(string(buf), `"grade": "A"`, `"grade": "A+"`, 1)
	_, h, ok := Match([]byte(tampered), onchain)
	assert.False(t, ok, "tampered")
	assert.NotEqual(t, onchain, h)

	// neither does the committed document followed by more data
	canonHash := DataHash(canon)
	for _, extra := range []string{
		` {"recipient":{"name":"Mallory"}}`,
		"\n<script>",
		"}",
		"\n[]",
	} {
		appended := append(append([]byte{}, canon...), extra...)
		for _, s := range Schemes {
			_, err := Reserialize(appended, s)
			assert.Error(t, err, "%s with %q", s, extra)
		}
		_, h, ok := Match(appended, canonHash)
		assert.False(t, ok, "appended %q", extra)
		assert.Equal(t, DataHash(appended), h, "raw hash reported")
	}
	_, _, ok = Match(append(append([]byte{}, canon...), " \n\t"...), canonHash)
	assert.True(t, ok, "trailing whitespace is not data")
}

func TestDocumentCID(t *testing.T) {
	buf, err := Serialize(testDocument(), SchemeCanonical)
	require.NoError(t, err)
	c, err := DocumentCID(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.Version())
	h, err := HashFromCID(c)
	require.NoError(t, err)
	assert.Equal(t, DataHash(buf), h, "cid digest is the data hash")
}

func TestParseDocument(t *testing.T) {
	buf, err := Serialize(testDocument(), SchemeCanonical)
	require.NoError(t, err)
	d, err := ParseDocument(buf)
	require.NoError(t, err)
	assert.Equal(t, testDocument(), d)

	_, err = ParseDocument([]byte(`{"version":`))
	assert.Error(t, err)
}
