package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"

	"github.com/near-handshake/handshake-go/pkg/identity"
)

// MDNSAdvertiser implements the Advertiser interface using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{config: config}
}

// Advertise starts advertising info, replacing any previous advertisement.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, info *NodeInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	instanceName := InstanceName(info.PeerID)
	txtStrings := TXTRecordsToStrings(EncodeNodeTXT(info))
	if err := validateTXTStrings(txtStrings); err != nil {
		return err
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(
		instanceName,
		ServiceType,
		Domain,
		int(info.Port),
		txtStrings,
		interfaces(a.config.Interface),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", ServiceType, err)
	}

	a.server = server
	return nil
}

// Advertising reports whether an advertisement is active.
func (a *MDNSAdvertiser) Advertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// Stop withdraws the advertisement.
func (a *MDNSAdvertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	return nil
}

// MDNSBrowser implements the Browser interface using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig

	// query runs one zeroconf browse until ctx ends.
	query func(ctx context.Context, entries, removed chan *zeroconf.ServiceEntry) error

	mu      sync.Mutex
	cancels map[int]context.CancelFunc
	nextID  int
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	b := &MDNSBrowser{
		config:  config,
		cancels: make(map[int]context.CancelFunc),
	}
	b.query = func(ctx context.Context, entries, removed chan *zeroconf.ServiceEntry) error {
		return zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}
	return b
}

// Browse searches for handshake nodes.
// Services are aggregated by instance name: addresses resolved on several
// interfaces are merged and the service is emitted once.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *Service, error) {
	out, _, err := b.browse(ctx)
	return out, err
}

// browse starts a browse. If the query fails the services channel is closed
// and the error is delivered on the buffered error channel first.
func (b *MDNSBrowser) browse(ctx context.Context) (<-chan *Service, <-chan error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	ctx, done := b.track(ctx)
	errc := make(chan error, 1)

	out := make(chan *Service)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		defer done()

		services := make(map[string]*Service)

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := b.entryToService(entry)
				if svc == nil {
					continue
				}

				if existing, found := services[svc.InstanceName]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				services[svc.InstanceName] = svc
				emitted := *svc
				emitted.Addresses = append([]string(nil), svc.Addresses...)
				select {
				case out <- &emitted:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				if existing, found := services[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, entry)
					if len(existing.Addresses) == 0 {
						delete(services, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if err := b.query(ctx, entries, removed); err != nil && ctx.Err() == nil {
			errc <- fmt.Errorf("%w: %s: %w", ErrBrowse, ServiceType, err)
			done()
		}
	}()

	return out, errc, nil
}

// Find returns the first service advertising peerID. Without a deadline on
// ctx the search is bounded by BrowseTimeout.
func (b *MDNSBrowser) Find(ctx context.Context, peerID identity.PeerID) (*Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	services, errc, err := b.browse(ctx)
	if err != nil {
		return nil, err
	}
	for svc := range services {
		if svc.Info.PeerID.Equal(peerID) {
			return svc, nil
		}
	}
	select {
	case err := <-errc:
		return nil, err
	default:
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, peerID, ctx.Err())
}

// Stop cancels all active browse operations.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, cancel := range b.cancels {
		cancel()
		delete(b.cancels, id)
	}
}

func (b *MDNSBrowser) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.cancels[id] = cancel
	b.mu.Unlock()
	return ctx, func() {
		cancel()
		b.mu.Lock()
		delete(b.cancels, id)
		b.mu.Unlock()
	}
}

// browserOptions returns zeroconf client options based on config.
func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	return opts
}

// entryToService converts a zeroconf entry, returning nil for entries that
// do not decode or belong to another chain.
func (b *MDNSBrowser) entryToService(entry *zeroconf.ServiceEntry) *Service {
	info, err := DecodeNodeTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return nil
	}
	if b.config.ChainID != "" && info.ChainID != b.config.ChainID {
		return nil
	}
	if entry.Port <= 0 || entry.Port > 0xFFFF {
		return nil
	}
	info.Port = uint16(entry.Port)

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &Service{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         info.Port,
		Addresses:    addrs,
		Info:         *info,
	}
}

// interfaces returns the interface list for name, or nil for all interfaces.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses removes addresses from a zeroconf entry from the list.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	toRemove := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		toRemove[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		toRemove[ip.String()] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}

// Ensure MDNSAdvertiser implements Advertiser interface.
var _ Advertiser = (*MDNSAdvertiser)(nil)

// Ensure MDNSBrowser implements Browser interface.
var _ Browser = (*MDNSBrowser)(nil)
