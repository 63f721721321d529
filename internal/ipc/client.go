package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// ListQueues returns every transmission queue.
func (c *Client) ListQueues() (*QueueListResponse, error) {
	return call[QueueListResponse](c, "ListQueues", QueueListRequest{})
}

// Items lists a queue's items.
func (c *Client) Items(req ItemsRequest) (*ItemsResponse, error) {
	return call[ItemsResponse](c, "Items", req)
}

// Refresh pulls new entries into a queue.
func (c *Client) Refresh(queueID int64) (*RefreshResponse, error) {
	return call[RefreshResponse](c, "Refresh", RefreshRequest{QueueID: queueID})
}

// Transmit sends a queue's Scheduled items.
func (c *Client) Transmit(queueID int64) (*TransmitResponse, error) {
	return call[TransmitResponse](c, "Transmit", TransmitRequest{QueueID: queueID})
}

// SetAction moves items to a new action.
func (c *Client) SetAction(ids []int64, action string) (*SetActionResponse, error) {
	return call[SetActionResponse](c, "SetAction", SetActionRequest{IDs: ids, Action: action})
}

// StatusCounts runs the status report.
func (c *Client) StatusCounts(req StatusCountsRequest) (*StatusCountsResponse, error) {
	return call[StatusCountsResponse](c, "StatusCounts", req)
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
