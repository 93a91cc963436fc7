package quorum_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressPrinting(t *testing.T) {
	addr := quorum.NewAddress([]byte("ABCD123456LHB"))
	assert.Equal(t, fmt.Sprintf("%X", []byte(addr)), addr.String())
	assert.Equal(t, "(nil)", quorum.Address(nil).String())

	cond := quorum.NewCondition("sigs", "ed25519", []byte{0xAB, 0x01})
	assert.Equal(t, "sigs/ed25519/AB01", cond.String())
}

func TestConditionParse(t *testing.T) {
	cond := quorum.NewCondition("multi", "sig", []byte("data"))
	ext, typ, data, err := cond.Parse()
	require.NoError(t, err)
	assert.Equal(t, "multi", ext)
	assert.Equal(t, "sig", typ)
	assert.Equal(t, []byte("data"), data)

	_, _, _, err = quorum.Condition("no-slashes").Parse()
	require.True(t, errors.ErrInvalidInput.Is(err))
	require.Error(t, quorum.Condition("x/y/z").Validate())
}

func TestAddressUnmarshalJSON(t *testing.T) {
	hexAddr := quorum.NewAddress([]byte("some data"))

	cases := map[string]struct {
		json     string
		wantErr  *errors.Error
		wantAddr quorum.Address
	}{
		"default decoding": {
			json:     fmt.Sprintf(`"%s"`, hexAddr),
			wantAddr: hexAddr,
		},
		"hex decoding": {
			json:     fmt.Sprintf(`"hex:%s"`, hexAddr),
			wantAddr: hexAddr,
		},
		"cond decoding": {
			json:     `"cond:foo/bar/636f6e646974696f6e64617461"`,
			wantAddr: quorum.NewCondition("foo", "bar", []byte("conditiondata")).Address(),
		},
		"hex with invalid length": {
			json:    `"6865782d61646472"`,
			wantErr: errors.ErrInvalidInput,
		},
		"invalid condition format": {
			json:    `"cond:foo/636f6e646974696f6e64617461"`,
			wantErr: errors.ErrInvalidInput,
		},
		"invalid condition data": {
			json:    `"cond:foo/bar/zzzzz"`,
			wantErr: errors.ErrInvalidInput,
		},
		"unknown format": {
			json:    `"foobar:xxx"`,
			wantErr: errors.ErrInvalidType,
		},
		"zero address": {
			json:     `""`,
			wantAddr: nil,
		},
		"zero cond address": {
			json:     `"cond:"`,
			wantAddr: nil,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			var a quorum.Address
			err := json.Unmarshal([]byte(tc.json), &a)
			if !tc.wantErr.Is(err) {
				t.Fatalf("got error: %+v", err)
			}
			if err == nil {
				assert.Equal(t, tc.wantAddr, a)
			}
		})
	}
}

func TestAddressMarshalJSONRoundTrip(t *testing.T) {
	addr := quorum.NewAddress([]byte("round trip"))
	raw, err := json.Marshal(addr)
	require.NoError(t, err)

	var got quorum.Address
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.True(t, addr.Equals(got))
}

func TestAddressBech32(t *testing.T) {
	addr := quorum.NewAddress([]byte("bech32 address"))
	enc, err := addr.Bech32("qrm")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc, "qrm1"))

	got, err := quorum.ParseAddress("bech32:" + enc)
	require.NoError(t, err)
	assert.True(t, addr.Equals(got))

	_, err = quorum.ParseAddress("bech32:qrm1invalid")
	assert.Error(t, err)
}

func TestAddressFlagValue(t *testing.T) {
	addr := quorum.NewAddress([]byte("flag value"))

	var got quorum.Address
	require.NoError(t, got.Set(addr.String()))
	assert.True(t, addr.Equals(got))

	require.NoError(t, got.Set(""))
	assert.Nil(t, got)

	assert.Error(t, got.Set("zz"))
}
