package admin

import (
	"fmt"

	"github.com/PatrisiousHaddad/libreswan/internal/connstore"
	"github.com/PatrisiousHaddad/libreswan/internal/routing"
)

// Initiator is implemented by the IKE layer (internal/ikev1/internal/ikev2
// session managers); the dispatcher calls InitiateIKE for `up`/`initiate`
// directly, without dispatching a routing event first, and TerminateIKE for
// `down` before it dispatches the routing teardown events, keeping the
// teacher's conn.go split between "accept the administrative request" and
// "actually send the first packet".
type Initiator interface {
	InitiateIKE(c *connstore.Connection, remoteHost string) error
	TerminateIKE(c *connstore.Connection) error
}

// Dispatcher executes one admin.Request against the live connection store
// and routing engine, the in-process implementation of the admin socket's
// server side.
type Dispatcher struct {
	Store     *connstore.Store
	Routing   *routing.Engine
	Initiator Initiator
}

func NewDispatcher(store *connstore.Store, eng *routing.Engine, init Initiator) *Dispatcher {
	return &Dispatcher{Store: store, Routing: eng, Initiator: init}
}

// Dispatch executes req and returns the Response an admin-socket client
// would receive; it never panics on malformed input, always returning an
// RC_* response instead.
func (d *Dispatcher) Dispatch(req Request) Response {
	switch req.Verb {
	case VerbAdd:
		return d.add(req)
	case VerbDelete:
		return d.delete(req)
	case VerbRoute:
		return d.route(req)
	case VerbUnroute:
		return d.unroute(req)
	case VerbUp, VerbInitiate:
		return d.up(req)
	case VerbDown, VerbTerminate:
		return d.down(req)
	case VerbStatus:
		return d.status(req)
	case VerbListen:
		return okf("listening")
	default:
		return errf(RC_FATAL, "unknown command %q", req.Verb)
	}
}

func (d *Dispatcher) lookup(name string) (*connstore.Connection, *Response) {
	c, ok := d.Store.ByName(name)
	if !ok {
		r := errf(RC_UNKNOWN_NAME, "no connection named %q", name)
		return nil, &r
	}
	return c, nil
}

func (d *Dispatcher) add(req Request) Response {
	if _, ok := d.Store.ByName(req.ConnName); ok {
		return errf(RC_DUPNAME, "connection %q already exists", req.ConnName)
	}
	return errf(RC_FATAL, "add requires a parsed connection record, not bare name %q", req.ConnName)
}

func (d *Dispatcher) delete(req Request) Response {
	if err := d.Store.Delete(req.ConnName); err != nil {
		return errf(RC_UNKNOWN_NAME, "%v", err)
	}
	return okf("connection %q deleted", req.ConnName)
}

func (d *Dispatcher) route(req Request) Response {
	c, errResp := d.lookup(req.ConnName)
	if errResp != nil {
		return *errResp
	}
	if err := d.Routing.Dispatch(routing.EventRoute, c); err != nil {
		return errf(RC_ROUTE, "%s: %v", c.Name, err)
	}
	return okf("%s: routed", c.Name)
}

func (d *Dispatcher) unroute(req Request) Response {
	c, errResp := d.lookup(req.ConnName)
	if errResp != nil {
		return *errResp
	}
	if err := d.Routing.Dispatch(routing.EventUnroute, c); err != nil {
		return errf(RC_ROUTE, "%s: %v", c.Name, err)
	}
	return okf("%s: unrouted", c.Name)
}

func (d *Dispatcher) up(req Request) Response {
	c, errResp := d.lookup(req.ConnName)
	if errResp != nil {
		return *errResp
	}
	if !c.Local.Host.IsSet() {
		return errf(RC_ORIENT, "%s: connection not oriented", c.Name)
	}
	if req.RemoteHost == "" && !c.Remote.Host.IsSet() {
		return errf(RC_NOPEERIP, "%s: no peer IP known, and no --remote-host given", c.Name)
	}
	if d.Initiator == nil {
		return errf(RC_FATAL, "%s: no IKE session manager wired", c.Name)
	}
	if err := d.Initiator.InitiateIKE(c, req.RemoteHost); err != nil {
		return errf(RC_OPPOFAILURE, "%s: %v", c.Name, err)
	}
	return okf("%s: initiating", c.Name)
}

func (d *Dispatcher) down(req Request) Response {
	c, errResp := d.lookup(req.ConnName)
	if errResp != nil {
		return *errResp
	}
	if d.Initiator == nil {
		return errf(RC_FATAL, "%s: no IKE session manager wired", c.Name)
	}
	if err := d.Initiator.TerminateIKE(c); err != nil {
		return errf(RC_RTBUSY, "%s: %v", c.Name, err)
	}
	// TEARDOWN_CHILD must run before TEARDOWN_IKE: it is the only event that
	// owns kernel policy/SA removal (Hooks.Down/Hooks.RemovePolicy), so
	// skipping it would leave a live tunnel's kernel state in place forever.
	// A LABELED_PARENT's LABELED_CHILD clones each hold a separate Child SA
	// under the same IKE SA, so they tear down first, then the connection
	// itself, and only then the one shared IKE SA.
	for _, child := range d.secLabelChildren(c) {
		if err := d.Routing.Dispatch(routing.EventTeardownChild, child); err != nil {
			return errf(RC_ROUTE, "%s: %v", child.Name, err)
		}
	}
	if err := d.Routing.Dispatch(routing.EventTeardownChild, c); err != nil {
		return errf(RC_ROUTE, "%s: %v", c.Name, err)
	}
	if err := d.Routing.Dispatch(routing.EventTeardownIKE, c); err != nil {
		return errf(RC_ROUTE, "%s: %v", c.Name, err)
	}
	return okf("%s: terminated", c.Name)
}

// secLabelChildren returns every LABELED_CHILD connection cloned from
// parent; the Store keeps no reverse index from a LABELED_PARENT to its
// clones, so this is a linear scan over all loaded connections.
func (d *Dispatcher) secLabelChildren(parent *connstore.Connection) []*connstore.Connection {
	var children []*connstore.Connection
	for _, c := range d.Store.All() {
		if c.Kind == connstore.KindLabeledChild && c.Parent == parent {
			children = append(children, c)
		}
	}
	return children
}

func (d *Dispatcher) status(req Request) Response {
	if req.ConnName == "" {
		all := d.Store.All()
		msg := fmt.Sprintf("%d connection(s) loaded", len(all))
		for _, c := range all {
			msg += fmt.Sprintf("\n%s: %s %s", c.Name, c.Kind, c.Routing)
		}
		return okf("%s", msg)
	}
	c, errResp := d.lookup(req.ConnName)
	if errResp != nil {
		return *errResp
	}
	return okf("%s: %s %s, owners=%v", c.Name, c.Kind, c.Routing, c.Owners)
}
