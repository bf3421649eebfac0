package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(t *testing.T, info *NodeInfo, v4 ...string) *zeroconf.ServiceEntry {
	t.Helper()
	entry := &zeroconf.ServiceEntry{}
	entry.Instance = InstanceName(info.PeerID)
	entry.HostName = "node.local."
	entry.Port = int(info.Port)
	entry.Text = TXTRecordsToStrings(EncodeNodeTXT(info))
	for _, a := range v4 {
		entry.AddrIPv4 = append(entry.AddrIPv4, net.ParseIP(a))
	}
	return entry
}

func TestEntryToService(t *testing.T) {
	info := &NodeInfo{PeerID: testPeerID(t, 1), ChainID: "localnet", ProtocolVersion: 63, Port: 24567}

	t.Run("Valid", func(t *testing.T) {
		b := NewMDNSBrowser(DefaultBrowserConfig())
		entry := testEntry(t, info, "192.168.1.10")
		entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}

		svc := b.entryToService(entry)
		require.NotNil(t, svc)
		assert.Equal(t, InstanceName(info.PeerID), svc.InstanceName)
		assert.Equal(t, uint16(24567), svc.Port)
		assert.Equal(t, uint16(24567), svc.Info.Port)
		assert.Equal(t, []string{"192.168.1.10", "fe80::1"}, svc.Addresses)
		assert.True(t, svc.Info.PeerID.Equal(info.PeerID))
	})

	t.Run("ChainFilter", func(t *testing.T) {
		cfg := DefaultBrowserConfig()
		cfg.ChainID = "testnet"
		b := NewMDNSBrowser(cfg)
		assert.Nil(t, b.entryToService(testEntry(t, info, "10.0.0.1")))

		cfg.ChainID = "localnet"
		b = NewMDNSBrowser(cfg)
		assert.NotNil(t, b.entryToService(testEntry(t, info, "10.0.0.1")))
	})

	t.Run("BadTXT", func(t *testing.T) {
		b := NewMDNSBrowser(DefaultBrowserConfig())
		entry := testEntry(t, info, "10.0.0.1")
		entry.Text = []string{"id=garbage"}
		assert.Nil(t, b.entryToService(entry))
	})

	t.Run("BadPort", func(t *testing.T) {
		b := NewMDNSBrowser(DefaultBrowserConfig())
		entry := testEntry(t, info, "10.0.0.1")
		entry.Port = 0
		assert.Nil(t, b.entryToService(entry))
		entry.Port = 70000
		assert.Nil(t, b.entryToService(entry))
	})
}

func TestServicePeerInfo(t *testing.T) {
	id := testPeerID(t, 1)

	tests := []struct {
		name     string
		svc      Service
		wantHost string
		wantErr  error
	}{
		{
			name:     "PrefersIPv4",
			svc:      Service{Port: 24567, Addresses: []string{"fe80::1", "192.168.1.10"}},
			wantHost: "192.168.1.10",
		},
		{
			name:     "IPv6Only",
			svc:      Service{Port: 24567, Addresses: []string{"fe80::1"}},
			wantHost: "fe80::1",
		},
		{
			name:     "HostFallback",
			svc:      Service{Port: 24567, Host: "node.local."},
			wantHost: "node.local",
		},
		{
			name:    "NoAddress",
			svc:     Service{Port: 24567},
			wantErr: ErrNoAddress,
		},
		{
			name:    "NoPort",
			svc:     Service{Addresses: []string{"10.0.0.1"}},
			wantErr: ErrInvalidPort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.svc.Info.PeerID = id
			pi, err := tt.svc.PeerInfo()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, pi.Host)
			assert.Equal(t, tt.svc.Port, pi.Port)
			assert.True(t, pi.ID.Equal(id))
		})
	}
}

func TestNodeInfoValidate(t *testing.T) {
	ok := NodeInfo{PeerID: testPeerID(t, 1), ChainID: "localnet", Port: 1}
	assert.NoError(t, ok.Validate())

	noChain := ok
	noChain.ChainID = ""
	assert.ErrorIs(t, noChain.Validate(), ErrMissingRequired)

	noPort := ok
	noPort.Port = 0
	assert.ErrorIs(t, noPort.Validate(), ErrInvalidPort)

	assert.ErrorIs(t, (&NodeInfo{ChainID: "x", Port: 1}).Validate(), ErrMissingRequired)
}

func TestMergeAndRemoveAddresses(t *testing.T) {
	merged := mergeAddresses([]string{"10.0.0.1"}, []string{"10.0.0.1", "10.0.0.2"})
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, merged)

	entry := &zeroconf.ServiceEntry{AddrIPv4: []net.IP{net.ParseIP("10.0.0.1")}}
	assert.Equal(t, []string{"10.0.0.2"}, removeAddresses(merged, entry))
}

func TestAdvertiseRejectsInvalidInfo(t *testing.T) {
	adv := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	err := adv.Advertise(context.Background(), &NodeInfo{PeerID: testPeerID(t, 1), Port: 1})
	assert.ErrorIs(t, err, ErrMissingRequired)
	assert.False(t, adv.Advertising())
	assert.NoError(t, adv.Stop())
}

func TestBrowseCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMDNSBrowser(DefaultBrowserConfig()).Browse(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindReturnsBrowseError(t *testing.T) {
	failure := errors.New("no multicast interface")
	b := NewMDNSBrowser(DefaultBrowserConfig())
	b.query = func(context.Context, chan *zeroconf.ServiceEntry, chan *zeroconf.ServiceEntry) error {
		return failure
	}

	start := time.Now()
	_, err := b.Find(context.Background(), testPeerID(t, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBrowse)
	assert.ErrorIs(t, err, failure)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Less(t, time.Since(start), BrowseTimeout/2)
}

func TestFindNotFoundAfterQueryEnds(t *testing.T) {
	cfg := DefaultBrowserConfig()
	cfg.BrowseTimeout = 50 * time.Millisecond
	b := NewMDNSBrowser(cfg)
	b.query = func(ctx context.Context, _ chan *zeroconf.ServiceEntry, _ chan *zeroconf.ServiceEntry) error {
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := b.Find(context.Background(), testPeerID(t, 1))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrBrowse)
}

// TestAdvertiseAndFind runs over real multicast sockets.
func TestAdvertiseAndFind(t *testing.T) {
	if testing.Short() {
		t.Skip("mDNS test uses the network")
	}

	info := &NodeInfo{PeerID: testPeerID(t, 7), ChainID: "localnet", ProtocolVersion: 63, Port: 24567}

	adv := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	if err := adv.Advertise(context.Background(), info); err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer adv.Stop()
	assert.True(t, adv.Advertising())

	cfg := DefaultBrowserConfig()
	cfg.ChainID = "localnet"
	b := NewMDNSBrowser(cfg)
	defer b.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc, err := b.Find(ctx, info.PeerID)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrBrowse) {
		t.Skipf("no mDNS response on this host: %v", err)
	}
	require.NoError(t, err)
	assert.Equal(t, info.Port, svc.Port)
	assert.Equal(t, uint32(63), svc.Info.ProtocolVersion)

	pi, err := svc.PeerInfo()
	require.NoError(t, err)
	assert.True(t, pi.ID.Equal(info.PeerID))
}
