package transport

import (
	"context"
	"encoding/json"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/ubsv-storage/validator-core/errors"
	"github.com/ubsv-storage/validator-core/protocol"
)

// These method names identify the unary RPC on the miner side; there is no
// generated stub because the miner's .proto is outside this repo's scope,
// so calls go through ClientConnInterface.Invoke directly with a codec that
// marshals arbitrary Go values as JSON instead of protobuf.
const (
	methodStore     = "/miner.Synapse/Store"
	methodChallenge = "/miner.Synapse/Challenge"
	methodRetrieve  = "/miner.Synapse/Retrieve"

	jsonCodecName = "validator-json"
)

// jsonCodec implements encoding.Codec so Invoke can carry plain structs
// instead of protobuf messages, matching the wire protocol's JSON contract.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// GRPCClient dials one axon endpoint per miner and reuses the connection
// across a validator's lifetime; connections are established lazily and
// cached by endpoint.
type GRPCClient struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func NewGRPCClient() *GRPCClient {
	return &GRPCClient{conns: make(map[string]*grpc.ClientConn)}
}

func (c *GRPCClient) connFor(endpoint string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[endpoint]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.New(errors.ERR_TRANSPORT_TIMEOUT, "dialing miner endpoint %s", endpoint, err)
	}
	c.conns[endpoint] = conn
	return conn, nil
}

func invokeJSON(ctx context.Context, conn *grpc.ClientConn, method string, req, resp interface{}) error {
	if err := conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return errors.New(errors.ERR_TRANSPORT_TIMEOUT, "invoking %s", method, err)
	}
	return nil
}

func (c *GRPCClient) Store(ctx context.Context, endpoint string, req protocol.StoreRequest) (*protocol.StoreResponse, error) {
	conn, err := c.connFor(endpoint)
	if err != nil {
		return nil, err
	}
	var resp protocol.StoreResponse
	if err := invokeJSON(ctx, conn, methodStore, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) Challenge(ctx context.Context, endpoint string, req protocol.ChallengeRequest) (*protocol.ChallengeResponse, error) {
	conn, err := c.connFor(endpoint)
	if err != nil {
		return nil, err
	}
	var resp protocol.ChallengeResponse
	if err := invokeJSON(ctx, conn, methodChallenge, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) Retrieve(ctx context.Context, endpoint string, req protocol.RetrieveRequest) (*protocol.RetrieveResponse, error) {
	conn, err := c.connFor(endpoint)
	if err != nil {
		return nil, err
	}
	var resp protocol.RetrieveResponse
	if err := invokeJSON(ctx, conn, methodRetrieve, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

var _ MinerClient = (*GRPCClient)(nil)
