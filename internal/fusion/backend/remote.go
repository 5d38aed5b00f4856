package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sentra/internal/fusion/ir"
)

// Remote is a Backend that ships kernel source to an external
// compiler/runtime daemon over a websocket, grounded on the teacher's
// internal/network.WebSocketConn dial/send/receive pattern. It never
// looks at a spec's structured Ops/Locals fields — only the string
// contract (Body/Preamble/Name, param lists) crosses the wire, since
// a real daemon on the other end owns compilation and execution.
type Remote struct {
	url    string
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewRemote builds a Remote backend that dials url lazily on first
// use. HandshakeTimeout mirrors the teacher's WebSocketConnect.
func NewRemote(url string) *Remote {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	return &Remote{url: url, dialer: dialer}
}

func (r *Remote) connection() (*websocket.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn, nil
	}
	conn, _, err := r.dialer.Dial(r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("fusion: remote backend dial %s: %w", r.url, err)
	}
	r.conn = conn
	return conn, nil
}

type remoteCompileRequest struct {
	Kind      string     `json:"kind"` // "elementwise" or "reduction"
	Name      string     `json:"name"`
	Body      string     `json:"body"`
	Preamble  string     `json:"preamble"`
	InParams  []ir.Param `json:"in_params"`
	OutParams []ir.Param `json:"out_params"`
}

type remoteCompileResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type remoteLaunchRequest struct {
	Name string        `json:"name"`
	Args []interface{} `json:"args"`
}

type remoteLaunchResponse struct {
	OK      bool          `json:"ok"`
	Error   string        `json:"error"`
	Results []interface{} `json:"results"`
}

func (r *Remote) NewElementwise(spec ElementwiseSpec) (Kernel, error) {
	conn, err := r.connection()
	if err != nil {
		return nil, err
	}
	req := remoteCompileRequest{
		Kind: "elementwise", Name: spec.Name, Body: spec.Body,
		Preamble: spec.Preamble, InParams: spec.InParams, OutParams: spec.OutParams,
	}
	if err := r.roundTrip(conn, req, &remoteCompileResponse{}); err != nil {
		return nil, err
	}
	return &remoteKernel{remote: r, name: spec.Name, source: spec.Preamble + spec.Body}, nil
}

func (r *Remote) NewReduction(spec ReductionSpec) (Kernel, error) {
	conn, err := r.connection()
	if err != nil {
		return nil, err
	}
	req := remoteCompileRequest{
		Kind: "reduction", Name: spec.Name, Body: spec.MapExpr + ";" + spec.ReduceBody + ";" + spec.PostExpr,
		Preamble: spec.Preamble, InParams: spec.InParams, OutParams: spec.OutParams,
	}
	if err := r.roundTrip(conn, req, &remoteCompileResponse{}); err != nil {
		return nil, err
	}
	return &remoteKernel{remote: r, name: spec.Name, source: spec.Preamble + spec.MapExpr}, nil
}

// roundTrip sends req as JSON text and decodes the reply into resp.
// It does not implement request/response correlation beyond strict
// ordering, matching the single-outstanding-call usage this module
// makes of a Remote backend.
func (r *Remote) roundTrip(conn *websocket.Conn, req interface{}, resp interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("fusion: remote backend encode: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("fusion: remote backend send: %w", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("fusion: remote backend receive: %w", err)
	}
	if err := json.Unmarshal(msg, resp); err != nil {
		return fmt.Errorf("fusion: remote backend decode: %w", err)
	}
	return nil
}

type remoteKernel struct {
	remote *Remote
	name   string
	source string
}

func (k *remoteKernel) Name() string   { return k.name }
func (k *remoteKernel) Source() string { return k.source }

func (k *remoteKernel) Launch(ctx context.Context, args ...Value) ([]Value, error) {
	conn, err := k.remote.connection()
	if err != nil {
		return nil, err
	}
	wire := make([]interface{}, len(args))
	for i, a := range args {
		wire[i] = a
	}
	var resp remoteLaunchResponse
	if err := k.remote.roundTrip(conn, remoteLaunchRequest{Name: k.name, Args: wire}, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("fusion: remote backend launch %s: %s", k.name, resp.Error)
	}
	results := make([]Value, len(resp.Results))
	for i, v := range resp.Results {
		results[i] = v
	}
	return results, nil
}
