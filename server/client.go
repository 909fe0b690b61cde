package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/chazu/vmgen/ir"
)

// Client calls a remote compile service.
type Client struct {
	compile     *connect.Client[CompileRequest, CompileResponse]
	lookup      *connect.Client[LookupRequest, LookupResponse]
	disassemble *connect.Client[DisassembleRequest, DisassembleResponse]
}

// NewClient returns a client for the service at baseURL, for example
// http://localhost:8970.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(cborCodec{})}, opts...)
	return &Client{
		compile:     connect.NewClient[CompileRequest, CompileResponse](httpClient, baseURL+CompileProcedure, opts...),
		lookup:      connect.NewClient[LookupRequest, LookupResponse](httpClient, baseURL+LookupProcedure, opts...),
		disassemble: connect.NewClient[DisassembleRequest, DisassembleResponse](httpClient, baseURL+DisassembleProcedure, opts...),
	}
}

// Compile sends one batch.
func (c *Client) Compile(ctx context.Context, decls []ir.Declaration) (*CompileResponse, error) {
	resp, err := c.compile.CallUnary(ctx, connect.NewRequest(&CompileRequest{Decls: decls}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Lookup fetches the table record of name.
func (c *Client) Lookup(ctx context.Context, name string) (*LookupResponse, error) {
	resp, err := c.lookup.CallUnary(ctx, connect.NewRequest(&LookupRequest{Name: name}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Disassemble fetches the listing of a compiled procedure.
func (c *Client) Disassemble(ctx context.Context, name string) (*DisassembleResponse, error) {
	resp, err := c.disassemble.CallUnary(ctx, connect.NewRequest(&DisassembleRequest{Name: name}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
