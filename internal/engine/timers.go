package engine

import (
	"context"
	"time"

	"github.com/msgboxio/log"

	"github.com/PatrisiousHaddad/libreswan/internal/connstore"
	"github.com/PatrisiousHaddad/libreswan/internal/routing"
)

// Default intervals for the periodic timers §5 lists as part of the
// event loop's global mutable state (alongside the connection index,
// host-pair index, and ipsec-interface list).
const (
	DefaultDDNSInterval         = 2 * time.Minute
	DefaultPhase2StallInterval = 30 * time.Second
	DefaultOndemandInterval    = time.Minute
)

// RunTimers drives the three periodic checks §5 names until ctx is
// canceled: DDNS re-resolution for connections with a dynamic peer name,
// a Phase-2 stall sweep over routed connections, and ondemand revival of
// routed connections. The DDNS and stall checks dispatch EventReschedule
// through the routing engine; the ondemand check calls InitiateIKE
// directly.
func (d *Daemon) RunTimers(ctx context.Context) {
	ddns := time.NewTicker(DefaultDDNSInterval)
	stall := time.NewTicker(DefaultPhase2StallInterval)
	ondemand := time.NewTicker(DefaultOndemandInterval)
	defer ddns.Stop()
	defer stall.Stop()
	defer ondemand.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ddns.C:
			d.checkDDNS()
		case <-stall.C:
			d.checkPhase2Stall()
		case <-ondemand.C:
			d.checkOndemandRevival()
		}
	}
}

// checkDDNS re-dispatches EventReschedule for every connection whose
// remote host is unresolved, the hook point a real DNS-resolver
// collaborator would plug into (out of scope per spec.md §1, consumed
// only as an opaque resolver); absent one, this is a no-op pass over
// candidates so the timer wiring exists even before a resolver is wired.
func (d *Daemon) checkDDNS() {
	for _, c := range d.Store.All() {
		if c.Remote.Host.IsSet() {
			continue
		}
		if err := d.Routing.Dispatch(routing.EventReschedule, c); err != nil {
			log.Warningf("engine: ddns reschedule %s: %v", c.Name, err)
		}
	}
}

// checkPhase2Stall dispatches EventReschedule for every routed connection,
// whatever its Child SA state. The routing engine handles EventReschedule
// without changing state, and no stall duration is measured: neither
// internal/ikev1 nor internal/ikev2 records transition timestamps.
func (d *Daemon) checkPhase2Stall() {
	for _, c := range d.Store.All() {
		if !c.Routing.IsRouted() {
			continue
		}
		if err := d.Routing.Dispatch(routing.EventReschedule, c); err != nil {
			log.Warningf("engine: phase2 stall reschedule %s: %v", c.Name, err)
		}
	}
}

// checkOndemandRevival calls InitiateIKE for every routed connection whose
// OwnerNegotiatingIKE slot is empty. It does not look at the connection's
// policy, its autostart setting, or which routed state it is in.
func (d *Daemon) checkOndemandRevival() {
	for _, c := range d.Store.All() {
		if !c.Routing.IsRouted() {
			continue
		}
		if c.Owners.Get(connstore.OwnerNegotiatingIKE) != 0 {
			continue
		}
		if err := d.InitiateIKE(c, ""); err != nil {
			log.Warningf("engine: ondemand revival %s: %v", c.Name, err)
		}
	}
}
