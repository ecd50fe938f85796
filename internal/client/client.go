// Package client is the typed gRPC client for a running cashd.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/maclap/cashtrack/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, service, method string, req, resp any) error {
	in, err := api.ToStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+service+"/"+method, in, out); err != nil {
		return err
	}
	return api.FromStruct(out, resp)
}

// Submit sends a new record of the given kind.
func (c *Client) Submit(ctx context.Context, kind string, payload json.RawMessage) (*api.SubmitResponse, error) {
	var resp api.SubmitResponse
	err := c.invoke(ctx, api.RecordServiceName, "Submit", &api.SubmitRequest{Kind: kind, Payload: payload}, &resp)
	return &resp, err
}

// SyncNow triggers a drain and waits for its result.
func (c *Client) SyncNow(ctx context.Context) (*api.SyncNowResponse, error) {
	var resp api.SyncNowResponse
	err := c.invoke(ctx, api.SyncServiceName, "SyncNow", &api.Empty{}, &resp)
	return &resp, err
}

// Status returns the daemon's sync status.
func (c *Client) Status(ctx context.Context) (*api.SyncStatus, error) {
	var resp api.SyncStatus
	err := c.invoke(ctx, api.SyncServiceName, "GetSyncStatus", &api.Empty{}, &resp)
	return &resp, err
}

// Pending lists unsynced records.
func (c *Client) Pending(ctx context.Context) ([]api.PendingRecord, error) {
	var resp api.ListPendingResponse
	err := c.invoke(ctx, api.SyncServiceName, "ListPending", &api.Empty{}, &resp)
	return resp.Records, err
}

// DeadLetters lists records that exhausted their retry budget.
func (c *Client) DeadLetters(ctx context.Context) ([]api.DeadLetter, error) {
	var resp api.ListDeadLettersResponse
	err := c.invoke(ctx, api.SyncServiceName, "ListDeadLetters", &api.Empty{}, &resp)
	return resp.Records, err
}

// Requeue puts a dead letter back in the queue and returns its new id.
func (c *Client) Requeue(ctx context.Context, id string) (string, error) {
	var resp api.RequeueResponse
	err := c.invoke(ctx, api.SyncServiceName, "RequeueDeadLetter", &api.RequeueRequest{ID: id}, &resp)
	return resp.ID, err
}

// Purge deletes all dead letters.
func (c *Client) Purge(ctx context.Context) (int64, error) {
	var resp api.PurgeResponse
	err := c.invoke(ctx, api.SyncServiceName, "PurgeDeadLetters", &api.Empty{}, &resp)
	return resp.Purged, err
}

// SetNetworkMode switches between probing and forced connectivity.
func (c *Client) SetNetworkMode(ctx context.Context, mode string) (*api.SetNetworkModeResponse, error) {
	var resp api.SetNetworkModeResponse
	err := c.invoke(ctx, api.SyncServiceName, "SetNetworkMode", &api.SetNetworkModeRequest{Mode: mode}, &resp)
	return &resp, err
}

var watchDesc = &grpc.StreamDesc{StreamName: "WatchEvents", ServerStreams: true}

// Watch streams daemon events whose kind starts with prefix to fn until
// ctx is cancelled, the daemon goes away, or fn returns an error.
func (c *Client) Watch(ctx context.Context, prefix string, fn func(*api.Event) error) error {
	stream, err := c.conn.NewStream(ctx, watchDesc, "/"+api.SyncServiceName+"/WatchEvents")
	if err != nil {
		return err
	}
	in, err := api.ToStruct(&api.WatchEventsRequest{Prefix: prefix})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var evt api.Event
		if err := api.FromStruct(msg, &evt); err != nil {
			return err
		}
		if err := fn(&evt); err != nil {
			return err
		}
	}
}
