package connstore

import (
	"testing"

	"github.com/PatrisiousHaddad/libreswan/internal/addr"
)

func mustParse(t *testing.T, s string) addr.IP {
	t.Helper()
	ip, err := addr.Parse(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return ip
}

func TestFindResponderConnectionExactHostPair(t *testing.T) {
	ResetSerialsForTest()
	store := NewStore()
	local := mustParse(t, "192.0.2.1")
	remote := mustParse(t, "192.0.2.2")
	c := &Connection{
		Name:       "exact",
		IKEVersion: 2,
		Policy:     PolicyEncrypt | PolicyAuthenticate,
		Local:      End{Host: local},
		Remote:     End{Host: remote},
	}
	if err := store.Add(c); err != nil {
		t.Fatal(err)
	}
	got := FindResponderConnection(store, local, remote, ResponderMatchContext{IKEVersion: 2}, nil)
	if got != c {
		t.Fatalf("expected exact match, got %v", got)
	}
}

func TestFindResponderConnectionRoadWarriorInstantiation(t *testing.T) {
	ResetSerialsForTest()
	store := NewStore()
	local := mustParse(t, "192.0.2.1")
	remote := mustParse(t, "203.0.113.9")
	template := &Connection{
		Name:       "rw",
		Kind:       KindTemplate,
		IKEVersion: 2,
		Policy:     PolicyEncrypt | PolicyAuthenticate,
		Local:      End{Host: local},
		Remote:     End{Host: addr.AnyV4},
	}
	if err := store.Add(template); err != nil {
		t.Fatal(err)
	}
	got := FindResponderConnection(store, local, remote, ResponderMatchContext{IKEVersion: 2}, nil)
	if got == nil {
		t.Fatal("expected instantiated connection")
	}
	if got.Kind != KindInstance {
		t.Fatalf("expected INSTANCE, got %v", got.Kind)
	}
	if !got.Remote.Host.Equal(remote) {
		t.Fatalf("expected instance remote %s, got %s", remote, got.Remote.Host)
	}
	if got.Parent != template {
		t.Fatal("expected instance parent to be the template")
	}
	if got.Serial == template.Serial {
		t.Fatal("expected instance to have its own serial")
	}
}

func TestMatchesResponderRejectsWrongIKEVersion(t *testing.T) {
	c := &Connection{IKEVersion: 1, Policy: PolicyEncrypt | PolicyAuthenticate}
	if c.MatchesResponder(ResponderMatchContext{IKEVersion: 2}) {
		t.Fatal("expected version mismatch to reject")
	}
}

func TestMatchesResponderNeverNegotiateOnlyGroupInstance(t *testing.T) {
	plain := &Connection{IKEVersion: 2, Policy: 0}
	if plain.MatchesResponder(ResponderMatchContext{IKEVersion: 2}) {
		t.Fatal("plain never-negotiate connection must not match")
	}

	group := &Connection{Kind: KindGroup, Policy: 0}
	instance := &Connection{Kind: KindInstance, Parent: group, IKEVersion: 2, Policy: 0}
	if !instance.MatchesResponder(ResponderMatchContext{IKEVersion: 2}) {
		t.Fatal("group-instance never-negotiate connection must match, to return NO_PROPOSAL_CHOSEN")
	}
}

func TestMatchesResponderXauthMismatch(t *testing.T) {
	c := &Connection{IKEVersion: 1, Policy: PolicyEncrypt | PolicyAuthenticate | policyXauth}
	if c.MatchesResponder(ResponderMatchContext{IKEVersion: 1, WantXauth: false}) {
		t.Fatal("expected xauth mismatch to reject")
	}
	if !c.MatchesResponder(ResponderMatchContext{IKEVersion: 1, WantXauth: true}) {
		t.Fatal("expected xauth match to accept")
	}
}

func TestFindOpportunisticTemplateFabricatesInstance(t *testing.T) {
	ResetSerialsForTest()
	store := NewStore()
	net10, _ := addr.Parse("10.0.0.0")
	net192, _ := addr.Parse("192.168.0.0")
	tmpl := &Connection{
		Name:    "opp",
		Kind:    KindTemplate,
		Policy:  PolicyOpportunistic,
		Routing: RoutingRoutedOndemand,
		Local:   End{Selectors: []addr.Selector{{Base: net10, PrefixLength: 8}}},
		Remote:  End{Selectors: []addr.Selector{{Base: net192, PrefixLength: 16}}},
	}
	if err := store.Add(tmpl); err != nil {
		t.Fatal(err)
	}
	ourIP, _ := addr.Parse("10.1.2.3")
	peerIP, _ := addr.Parse("192.168.5.6")
	inst := FindOpportunisticTemplate(store, addr.Endpoint{Addr: ourIP}, addr.Endpoint{Addr: peerIP})
	if inst == nil {
		t.Fatal("expected an instantiated connection")
	}
	if inst.Kind != KindInstance || inst.Parent != tmpl {
		t.Fatalf("expected instance cloned from template, got kind=%v parent=%v", inst.Kind, inst.Parent)
	}
	if len(inst.Remote.Selectors) != 1 || !inst.Remote.Selectors[0].Base.Equal(peerIP) {
		t.Fatal("expected narrowed remote selector to the exact peer address")
	}
}

func TestOrientSwapsWhenRemoteMatchesLocalInterface(t *testing.T) {
	a := mustParse(t, "192.0.2.1")
	b := mustParse(t, "203.0.113.1")
	c := &Connection{Local: End{Host: b}, Remote: End{Host: a}}
	ifaces := []LocalInterface{{Addr: a}}
	if err := Orient(c, ifaces); err != nil {
		t.Fatal(err)
	}
	if !c.Local.Host.Equal(a) {
		t.Fatalf("expected swap so local=%s, got %s", a, c.Local.Host)
	}
}

func TestOrientRejectsAmbiguous(t *testing.T) {
	a := mustParse(t, "192.0.2.1")
	b := mustParse(t, "203.0.113.1")
	c := &Connection{Local: End{Host: a}, Remote: End{Host: b}}
	ifaces := []LocalInterface{{Addr: a}, {Addr: b}}
	if err := Orient(c, ifaces); err == nil {
		t.Fatal("expected ambiguous orientation error")
	}
}

func TestOrientRejectsNoMatch(t *testing.T) {
	a := mustParse(t, "192.0.2.1")
	b := mustParse(t, "203.0.113.1")
	c := &Connection{Local: End{Host: a}, Remote: End{Host: b}}
	other := mustParse(t, "198.51.100.1")
	if err := Orient(c, []LocalInterface{{Addr: other}}); err == nil {
		t.Fatal("expected no-match orientation error")
	}
}
