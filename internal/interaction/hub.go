package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	validateMessageMethod    = "/HubService/ValidateMessage"
	verificationsByFidMethod = "/HubService/GetVerificationsByFid"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// HubConfig holds configuration for the hub gRPC client.
type HubConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultHubConfig returns default configuration for addr.
func DefaultHubConfig(addr string) HubConfig {
	return HubConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// HubSource validates signed messages by calling a Farcaster hub's
// ValidateMessage RPC.
type HubSource struct {
	conn    *grpc.ClientConn
	addr    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewHubSource connects to a hub and waits until the connection is ready.
func NewHubSource(cfg HubConfig, logger *slog.Logger, opts ...grpc.DialOption) (*HubSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("create hub client for %s: %w", cfg.Address, err)
	}

	// Fail fast at startup on a bad hub endpoint.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("hub at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("connected to hub", "address", cfg.Address)
	return &HubSource{conn: conn, addr: cfg.Address, timeout: cfg.RequestTimeout, logger: logger}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (s *HubSource) Close() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Interaction implements Source.
func (s *HubSource) Interaction(ctx context.Context, p Payload) (Interaction, error) {
	msg, err := messageBytes(p)
	if err != nil {
		return Interaction{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := rawMessage(msg)
	var resp rawMessage
	if err := s.conn.Invoke(ctx, validateMessageMethod, &req, &resp, grpc.ForceCodec(rawCodec{})); err != nil {
		switch status.Code(err) {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Canceled:
			s.logger.Warn("hub validation call failed", "address", s.addr, "error", err)
			return Interaction{}, unavailable("hub unreachable", err)
		default:
			return Interaction{}, reject("hub rejected message", err)
		}
	}
	in, err := DecodeValidationResponse(resp)
	if err != nil {
		return Interaction{}, err
	}
	in.VerifiedAddresses = s.verifiedAddresses(ctx, in.FID)
	return in, nil
}

// verifiedAddresses asks the hub for fid's verified Ethereum addresses. A
// failed lookup only costs the address quick picks, so it is logged.
func (s *HubSource) verifiedAddresses(ctx context.Context, fid int64) []string {
	if fid <= 0 {
		return nil
	}
	req := rawMessage(protowire.AppendVarint(protowire.AppendTag(nil, 1, protowire.VarintType), uint64(fid)))
	var resp rawMessage
	if err := s.conn.Invoke(ctx, verificationsByFidMethod, &req, &resp, grpc.ForceCodec(rawCodec{})); err != nil {
		s.logger.Warn("hub verification lookup failed", "fid", fid, "error", err)
		return nil
	}
	addrs, err := DecodeVerifications(resp)
	if err != nil {
		s.logger.Warn("hub verification lookup failed", "fid", fid, "error", err)
		return nil
	}
	return addrs
}

// rawMessage is an already-serialized protobuf message.
type rawMessage []byte

// rawCodec passes protobuf bytes through untouched so the hub's messages can
// be handled without generated code.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(*rawMessage)
	if !ok {
		return nil, fmt.Errorf("raw codec: cannot marshal %T", v)
	}
	return *m, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(*rawMessage)
	if !ok {
		return fmt.Errorf("raw codec: cannot unmarshal into %T", v)
	}
	*m = append((*m)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return "proto" }
