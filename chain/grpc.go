package chain

import (
	"context"
	"encoding/json"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// Method names for the chain fabric's unary RPCs. As with transport's miner
// client, there is no generated stub: the chain RPC fabric is an external
// collaborator with no .proto specified here, so calls go through
// ClientConnInterface.Invoke directly with a JSON codec.
const (
	methodGetCurrentBlock            = "/chain.Chain/GetCurrentBlock"
	methodSetWeights                 = "/chain.Chain/SetWeights"
	methodIsHotkeyRegisteredOnSubnet = "/chain.Chain/IsHotkeyRegisteredOnSubnet"
	methodGetMetagraph               = "/chain.Chain/GetMetagraph"

	chainJSONCodecName = "validator-chain-json"
)

type chainJSONCodec struct{}

func (chainJSONCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (chainJSONCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
func (chainJSONCodec) Name() string { return chainJSONCodecName }

func init() {
	encoding.RegisterCodec(chainJSONCodec{})
}

// GRPCClient is the production Client, dialing a single chain RPC endpoint
// once and reusing the connection, mirroring transport.GRPCClient's
// per-endpoint connection cache (here there is only ever one endpoint).
type GRPCClient struct {
	mu   sync.Mutex
	conn *grpc.ClientConn
	addr string
}

func NewGRPCClient(addr string) *GRPCClient {
	return &GRPCClient{addr: addr}
}

func (c *GRPCClient) connect() (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := grpc.NewClient(c.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

func (c *GRPCClient) invoke(ctx context.Context, method string, req, resp interface{}) error {
	conn, err := c.connect()
	if err != nil {
		return err
	}
	return conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(chainJSONCodecName))
}

type getCurrentBlockResponse struct {
	Block int64 `json:"block"`
}

func (c *GRPCClient) GetCurrentBlock(ctx context.Context) (int64, error) {
	var resp getCurrentBlockResponse
	if err := c.invoke(ctx, methodGetCurrentBlock, struct{}{}, &resp); err != nil {
		return 0, err
	}
	return resp.Block, nil
}

type setWeightsRequest struct {
	UIDs       []int     `json:"uids"`
	Weights    []float64 `json:"weights"`
	NetUID     int       `json:"netuid"`
	VersionKey int64     `json:"version_key"`
}

func (c *GRPCClient) SetWeights(ctx context.Context, uids []int, weights []float64, netuid int, versionKey int64) error {
	req := setWeightsRequest{UIDs: uids, Weights: weights, NetUID: netuid, VersionKey: versionKey}
	return c.invoke(ctx, methodSetWeights, req, &struct{}{})
}

type isHotkeyRegisteredRequest struct {
	Hotkey string `json:"hotkey"`
	NetUID int    `json:"netuid"`
}

type isHotkeyRegisteredResponse struct {
	Registered bool `json:"registered"`
}

func (c *GRPCClient) IsHotkeyRegisteredOnSubnet(ctx context.Context, hotkey string, netuid int) (bool, error) {
	req := isHotkeyRegisteredRequest{Hotkey: hotkey, NetUID: netuid}
	var resp isHotkeyRegisteredResponse
	if err := c.invoke(ctx, methodIsHotkeyRegisteredOnSubnet, req, &resp); err != nil {
		return false, err
	}
	return resp.Registered, nil
}

type getMetagraphRequest struct {
	NetUID int `json:"netuid"`
}

func (c *GRPCClient) GetMetagraph(ctx context.Context, netuid int) (Metagraph, error) {
	req := getMetagraphRequest{NetUID: netuid}
	var resp Metagraph
	if err := c.invoke(ctx, methodGetMetagraph, req, &resp); err != nil {
		return Metagraph{}, err
	}
	return resp, nil
}

var _ Client = (*GRPCClient)(nil)
