package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/near-handshake/handshake-go/pkg/identity"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeNodeTXT creates the TXT records for a node advertisement.
func EncodeNodeTXT(info *NodeInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyPeerID:          info.PeerID.String(),
		TXTKeyChainID:         info.ChainID,
		TXTKeyProtocolVersion: strconv.FormatUint(uint64(info.ProtocolVersion), 10),
	}
	if info.OldestSupportedVersion != 0 {
		txt[TXTKeyOldestVersion] = strconv.FormatUint(uint64(info.OldestSupportedVersion), 10)
	}
	return txt
}

// DecodeNodeTXT parses TXT records of a node advertisement. Port is not
// part of the TXT data and is left zero.
func DecodeNodeTXT(txt TXTRecordMap) (*NodeInfo, error) {
	info := &NodeInfo{}

	idStr, ok := txt[TXTKeyPeerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyPeerID)
	}
	id, err := identity.ParsePeerID(idStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTXT, TXTKeyPeerID, err)
	}
	info.PeerID = id

	info.ChainID, ok = txt[TXTKeyChainID]
	if !ok || info.ChainID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyChainID)
	}

	pvStr, ok := txt[TXTKeyProtocolVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyProtocolVersion)
	}
	pv, err := strconv.ParseUint(pvStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXT, TXTKeyProtocolVersion, pvStr)
	}
	info.ProtocolVersion = uint32(pv)

	if opvStr, ok := txt[TXTKeyOldestVersion]; ok {
		opv, err := strconv.ParseUint(opvStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXT, TXTKeyOldestVersion, opvStr)
		}
		info.OldestSupportedVersion = uint32(opv)
	}

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if found {
			txt[k] = v
		} else if k != "" {
			// Key without value (boolean flag)
			txt[k] = ""
		}
	}
	return txt
}

// InstanceName returns the mDNS instance name for a peer: the prefix and
// as much of the base58 key as fits in a DNS label.
func InstanceName(id identity.PeerID) string {
	s := id.String()
	if _, key, ok := strings.Cut(s, ":"); ok {
		s = key
	}
	name := InstancePrefix + s
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty instance name", ErrInvalidTXT)
	}
	if len(name) > MaxInstanceNameLen {
		return fmt.Errorf("%w: instance name longer than %d bytes", ErrInvalidTXT, MaxInstanceNameLen)
	}
	return nil
}

func validateTXTStrings(strs []string) error {
	for _, s := range strs {
		if len(s) > MaxTXTValueLen {
			k, _, _ := strings.Cut(s, "=")
			return fmt.Errorf("%w: %s longer than %d bytes", ErrInvalidTXT, k, MaxTXTValueLen)
		}
	}
	return nil
}
