package discovery

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/near-handshake/handshake-go/pkg/identity"
)

func testPeerID(t *testing.T, seed byte) identity.PeerID {
	t.Helper()
	id, err := identity.FromSeed(bytes.Repeat([]byte{seed}, 32))
	require.NoError(t, err)
	return id.PeerID()
}

func TestNodeTXTRoundTrip(t *testing.T) {
	info := &NodeInfo{
		PeerID:                 testPeerID(t, 1),
		ChainID:                "localnet",
		ProtocolVersion:        63,
		OldestSupportedVersion: 61,
		Port:                   24567,
	}

	txt := EncodeNodeTXT(info)
	assert.Equal(t, info.PeerID.String(), txt[TXTKeyPeerID])
	assert.Equal(t, "localnet", txt[TXTKeyChainID])
	assert.Equal(t, "63", txt[TXTKeyProtocolVersion])
	assert.Equal(t, "61", txt[TXTKeyOldestVersion])

	decoded, err := DecodeNodeTXT(StringsToTXTRecords(TXTRecordsToStrings(txt)))
	require.NoError(t, err)
	assert.True(t, decoded.PeerID.Equal(info.PeerID))
	assert.Equal(t, info.ChainID, decoded.ChainID)
	assert.Equal(t, info.ProtocolVersion, decoded.ProtocolVersion)
	assert.Equal(t, info.OldestSupportedVersion, decoded.OldestSupportedVersion)
	assert.Zero(t, decoded.Port, "port travels in the SRV record")
}

func TestEncodeNodeTXTOmitsZeroOldest(t *testing.T) {
	txt := EncodeNodeTXT(&NodeInfo{PeerID: testPeerID(t, 1), ChainID: "testnet", ProtocolVersion: 63})
	_, ok := txt[TXTKeyOldestVersion]
	assert.False(t, ok)
}

func TestDecodeNodeTXTErrors(t *testing.T) {
	valid := EncodeNodeTXT(&NodeInfo{PeerID: testPeerID(t, 1), ChainID: "localnet", ProtocolVersion: 63})

	without := func(key string) TXTRecordMap {
		m := TXTRecordMap{}
		for k, v := range valid {
			if k != key {
				m[k] = v
			}
		}
		return m
	}
	with := func(key, value string) TXTRecordMap {
		m := without(key)
		m[key] = value
		return m
	}

	tests := []struct {
		name    string
		txt     TXTRecordMap
		wantErr error
	}{
		{"MissingPeerID", without(TXTKeyPeerID), ErrMissingRequired},
		{"MissingChain", without(TXTKeyChainID), ErrMissingRequired},
		{"EmptyChain", with(TXTKeyChainID, ""), ErrMissingRequired},
		{"MissingVersion", without(TXTKeyProtocolVersion), ErrMissingRequired},
		{"BadPeerID", with(TXTKeyPeerID, "ed25519:notbase58!"), ErrInvalidTXT},
		{"UnknownKeyType", with(TXTKeyPeerID, "rsa:abc"), ErrInvalidTXT},
		{"BadVersion", with(TXTKeyProtocolVersion, "sixty"), ErrInvalidTXT},
		{"NegativeVersion", with(TXTKeyProtocolVersion, "-1"), ErrInvalidTXT},
		{"BadOldest", with(TXTKeyOldestVersion, "x"), ErrInvalidTXT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeNodeTXT(tt.txt)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeNodeTXT() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTXTStrings(t *testing.T) {
	strs := TXTRecordsToStrings(TXTRecordMap{"pv": "63", "chain": "localnet", "id": "x"})
	assert.Equal(t, []string{"chain=localnet", "id=x", "pv=63"}, strs)

	txt := StringsToTXTRecords([]string{"a=1", "flag", "", "b=x=y"})
	assert.Equal(t, TXTRecordMap{"a": "1", "flag": "", "b": "x=y"}, txt)
}

func TestInstanceName(t *testing.T) {
	id := testPeerID(t, 1)
	name := InstanceName(id)

	assert.True(t, strings.HasPrefix(name, InstancePrefix))
	assert.LessOrEqual(t, len(name), MaxInstanceNameLen)
	assert.NotContains(t, name, ":")
	require.NoError(t, ValidateInstanceName(name))

	assert.NotEqual(t, name, InstanceName(testPeerID(t, 2)))
}

func TestValidateInstanceName(t *testing.T) {
	assert.ErrorIs(t, ValidateInstanceName(""), ErrInvalidTXT)
	assert.ErrorIs(t, ValidateInstanceName(strings.Repeat("a", MaxInstanceNameLen+1)), ErrInvalidTXT)
	assert.NoError(t, ValidateInstanceName(strings.Repeat("a", MaxInstanceNameLen)))
}

func TestValidateTXTStrings(t *testing.T) {
	assert.NoError(t, validateTXTStrings([]string{"chain=localnet"}))
	err := validateTXTStrings([]string{"chain=" + strings.Repeat("x", MaxTXTValueLen)})
	assert.ErrorIs(t, err, ErrInvalidTXT)
	assert.Contains(t, err.Error(), "chain")
}
