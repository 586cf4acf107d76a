package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	pb "github.com/osrg/gobgp/v3/api"
	"github.com/osrg/gobgp/v3/pkg/server"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"google.golang.org/protobuf/types/known/anypb"
)

// BGPBackend defines the subset of GoBGP server methods we use,
// allowing us to mock it for testing.
type BGPBackend interface {
	Serve()
	StartBgp(ctx context.Context, r *pb.StartBgpRequest) error
	StopBgp(ctx context.Context, r *pb.StopBgpRequest) error
	AddPeer(ctx context.Context, r *pb.AddPeerRequest) error
	AddPath(ctx context.Context, r *pb.AddPathRequest) (*pb.AddPathResponse, error)
	DeletePath(ctx context.Context, r *pb.DeletePathRequest) error
}

// GoBGPAdapter implements the RoutingEngine port using an embedded GoBGP speaker.
type GoBGPAdapter struct {
	bgpServer BGPBackend
	routerID  string
	logger    *slog.Logger
	started   bool
}

// NewGoBGPAdapter initializes a new GoBGPAdapter with a real GoBGP server.
// routerID is also used as the next hop of announced VIPs.
func NewGoBGPAdapter(routerID string, logger *slog.Logger) *GoBGPAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoBGPAdapter{
		bgpServer: server.NewBgpServer(),
		routerID:  routerID,
		logger:    logger,
	}
}

// Start begins the BGP process and establishes peering.
func (a *GoBGPAdapter) Start(ctx context.Context, localASN, peerASN uint32, peerIP string) error {
	if _, err := netip.ParseAddr(a.routerID); err != nil {
		return fmt.Errorf("invalid router id %q: %w", a.routerID, err)
	}
	a.logger.Info("starting GoBGP engine", "local_asn", localASN, "peer_asn", peerASN, "peer_ip", peerIP)

	go a.bgpServer.Serve()

	err := a.bgpServer.StartBgp(ctx, &pb.StartBgpRequest{
		Global: &pb.Global{
			Asn:        localASN,
			RouterId:   a.routerID,
			ListenPort: -1, // outbound sessions only
		},
	})
	if err != nil {
		return fmt.Errorf("start bgp: %w", err)
	}
	a.started = true

	peer := &pb.Peer{
		Conf: &pb.PeerConf{
			NeighborAddress: peerIP,
			PeerAsn:         peerASN,
		},
	}
	if err := a.bgpServer.AddPeer(ctx, &pb.AddPeerRequest{Peer: peer}); err != nil {
		return fmt.Errorf("add peer %s: %w", peerIP, err)
	}

	return nil
}

// Announce advertises a VIP via BGP.
func (a *GoBGPAdapter) Announce(ctx context.Context, vip string) error {
	if !a.started {
		return errors.New("BGP server not started")
	}

	a.logger.Info("announcing anycast VIP", "vip", vip)

	path, err := a.hostRoute(vip, true)
	if err != nil {
		return err
	}
	if _, err := a.bgpServer.AddPath(ctx, &pb.AddPathRequest{Path: path}); err != nil {
		return err
	}
	return nil
}

// Withdraw removes a VIP advertisement from BGP.
func (a *GoBGPAdapter) Withdraw(ctx context.Context, vip string) error {
	if !a.started {
		return errors.New("BGP server not started")
	}

	a.logger.Info("withdrawing anycast VIP", "vip", vip)

	path, err := a.hostRoute(vip, false)
	if err != nil {
		return err
	}
	return a.bgpServer.DeletePath(ctx, &pb.DeletePathRequest{Path: path})
}

// Stop gracefully shuts down the BGP engine.
func (a *GoBGPAdapter) Stop() error {
	if !a.started {
		return nil
	}
	a.started = false
	return a.bgpServer.StopBgp(context.Background(), &pb.StopBgpRequest{})
}

// hostRoute builds the /32 path for vip. Attributes are only needed on announce.
func (a *GoBGPAdapter) hostRoute(vip string, withAttrs bool) (*pb.Path, error) {
	addr, err := netip.ParseAddr(vip)
	if err != nil || !addr.Is4() {
		return nil, fmt.Errorf("invalid IPv4 VIP %q", vip)
	}

	nlri, err := anypb.New(&pb.IPAddressPrefix{
		Prefix:    addr.String(),
		PrefixLen: 32,
	})
	if err != nil {
		return nil, err
	}

	path := &pb.Path{
		Nlri:   nlri,
		Family: &pb.Family{Afi: pb.Family_AFI_IP, Safi: pb.Family_SAFI_UNICAST},
	}
	if !withAttrs {
		return path, nil
	}

	origin, err := anypb.New(&pb.OriginAttribute{Origin: 0}) // IGP
	if err != nil {
		return nil, err
	}
	nextHop, err := anypb.New(&pb.NextHopAttribute{NextHop: a.routerID})
	if err != nil {
		return nil, err
	}
	path.Pattrs = []*anypb.Any{origin, nextHop}
	return path, nil
}

var _ ports.RoutingEngine = (*GoBGPAdapter)(nil)
