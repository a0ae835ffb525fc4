package admin

import (
	"fmt"
	"net"
	"sync"
)

// Client is the admin-socket caller side, the counterpart to vici's
// Session: one command transport guarded by a mutex (only one command
// in flight at a time) and, on Listen, a second connection dedicated to
// streaming events. The Server answers one command per connection and then
// closes it, so only the first Do on a Client gets a Response.
type Client struct {
	sockPath string

	mu  sync.Mutex
	cmd *frameConn

	evMu sync.Mutex
	ev   *frameConn
}

func Dial(sockPath string) (*Client, error) {
	c, err := net.Dial("unix", sockPath)
	if err != nil {
		return nil, err
	}
	return &Client{sockPath: sockPath, cmd: newFrameConn(c)}, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.cmd != nil {
		err = c.cmd.Close()
	}
	c.evMu.Lock()
	if c.ev != nil {
		c.ev.Close()
	}
	c.evMu.Unlock()
	return err
}

// Do sends req over the locked command transport and returns its Response.
func (c *Client) Do(req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.cmd.sendRequest(req); err != nil {
		return Response{}, err
	}
	return c.cmd.recvResponse()
}

func (c *Client) Add(name string) (Response, error) { return c.Do(Request{Verb: VerbAdd, ConnName: name}) }
func (c *Client) Delete(name string) (Response, error) {
	return c.Do(Request{Verb: VerbDelete, ConnName: name})
}
func (c *Client) Route(name string) (Response, error) {
	return c.Do(Request{Verb: VerbRoute, ConnName: name})
}
func (c *Client) Unroute(name string) (Response, error) {
	return c.Do(Request{Verb: VerbUnroute, ConnName: name})
}
func (c *Client) Up(name string) (Response, error) { return c.Do(Request{Verb: VerbUp, ConnName: name}) }
func (c *Client) Down(name string) (Response, error) {
	return c.Do(Request{Verb: VerbDown, ConnName: name})
}
func (c *Client) Initiate(name, remoteHost string) (Response, error) {
	return c.Do(Request{Verb: VerbInitiate, ConnName: name, RemoteHost: remoteHost})
}
func (c *Client) Terminate(name string) (Response, error) {
	return c.Do(Request{Verb: VerbTerminate, ConnName: name})
}
func (c *Client) Status(name string) (Response, error) {
	return c.Do(Request{Verb: VerbStatus, ConnName: name})
}

// Listen opens a dedicated connection in the `listen` state and returns a
// channel of Events; the channel closes when the connection is closed or
// the peer goes away. Only one outstanding Listen is supported per Client.
func (c *Client) Listen(events []string) (<-chan Event, error) {
	c.evMu.Lock()
	defer c.evMu.Unlock()
	conn, err := net.Dial("unix", c.sockPath)
	if err != nil {
		return nil, err
	}
	fc := newFrameConn(conn)
	c.ev = fc
	if err := fc.sendRequest(Request{Verb: VerbListen, Events: events}); err != nil {
		fc.Close()
		return nil, err
	}
	if resp, err := fc.recvResponse(); err != nil {
		fc.Close()
		return nil, err
	} else if resp.Code != RC_OK {
		fc.Close()
		return nil, fmt.Errorf("admin: listen rejected: %s", resp.Message)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for {
			ev, err := fc.recvEvent()
			if err != nil {
				return
			}
			out <- ev
		}
	}()
	return out, nil
}
