package addr

import "testing"

func TestUnsetDistinctFromAny(t *testing.T) {
	var unset IP
	if unset.IsSet() {
		t.Fatal("zero value must be unset")
	}
	if AnyV4.IsAny() != true {
		t.Fatal("AnyV4 must be any")
	}
	if unset.Equal(AnyV4) {
		t.Fatal("unset must not equal any-address")
	}
}

func TestReverseDNSRoundTrip(t *testing.T) {
	cases := []string{"192.0.2.7", "2001:db8::1"}
	for _, s := range cases {
		a, err := Parse(s)
		if err != nil {
			t.Fatalf("parse %s: %v", s, err)
		}
		rev, err := a.ReverseDNS()
		if err != nil {
			t.Fatalf("reverse %s: %v", s, err)
		}
		if rev == "" {
			t.Fatalf("empty reverse form for %s", s)
		}
	}
}

func TestReverseDNSV4Form(t *testing.T) {
	a, _ := Parse("192.0.2.7")
	rev, _ := a.ReverseDNS()
	want := "7.2.0.192.IN-ADDR.ARPA."
	if rev != want {
		t.Fatalf("got %q want %q", rev, want)
	}
}

func TestAddressBlitIdempotence(t *testing.T) {
	a, _ := Parse("192.0.2.17")
	for m := uint8(0); m <= 32; m++ {
		out, err := AddressBlit(a, m, Keep, Keep)
		if err != nil {
			t.Fatalf("mask %d: %v", m, err)
		}
		if !out.Equal(a) {
			t.Fatalf("mask %d: keep/keep not idempotent: %s != %s", m, out, a)
		}
	}
}

func TestAddressBlitByteBoundarySkipsCrossover(t *testing.T) {
	a, _ := Parse("192.0.2.17")
	network, err := AddressBlit(a, 24, Keep, Clear)
	if err != nil {
		t.Fatal(err)
	}
	if network.String() != "192.0.2.0" {
		t.Fatalf("got %s want 192.0.2.0", network)
	}
}

func TestAddressBlitMaskGreaterThanLengthRejected(t *testing.T) {
	a, _ := Parse("192.0.2.17")
	if _, err := AddressBlit(a, 33, Keep, Keep); err == nil {
		t.Fatal("expected error for mask > bitlen")
	}
}

func TestAddressBlitBroadcast(t *testing.T) {
	a, _ := Parse("192.0.2.17")
	bcast, err := AddressBlit(a, 24, Keep, Set)
	if err != nil {
		t.Fatal(err)
	}
	if bcast.String() != "192.0.2.255" {
		t.Fatalf("got %s want 192.0.2.255", bcast)
	}
}

func TestCIDRContains(t *testing.T) {
	base, _ := Parse("10.0.0.0")
	c := CIDR{Addr: base, PrefixLength: 8}
	in, _ := Parse("10.1.2.3")
	out, _ := Parse("11.0.0.1")
	if !c.Contains(in) {
		t.Fatal("expected containment")
	}
	if c.Contains(out) {
		t.Fatal("expected no containment")
	}
}

func TestRangeOf(t *testing.T) {
	base, _ := Parse("192.0.2.0")
	lo, hi, err := RangeOf(CIDR{Addr: base, PrefixLength: 24})
	if err != nil {
		t.Fatalf("RangeOf: %v", err)
	}
	if lo.String() != "192.0.2.0" {
		t.Fatalf("got lo=%s want 192.0.2.0", lo)
	}
	if hi.String() != "192.0.2.255" {
		t.Fatalf("got hi=%s want 192.0.2.255", hi)
	}
}

func TestSelectorContainsEndpoint(t *testing.T) {
	base, _ := Parse("10.0.0.0")
	sel := Selector{Base: base, PrefixLength: 8, Protocol: 17, PortLo: 500, PortHi: 500}
	ip, _ := Parse("10.2.3.4")
	if !sel.ContainsEndpoint(Endpoint{Addr: ip, Protocol: 17, Port: 500}) {
		t.Fatal("expected endpoint to be contained")
	}
	if sel.ContainsEndpoint(Endpoint{Addr: ip, Protocol: 17, Port: 501}) {
		t.Fatal("expected endpoint with wrong port to be rejected")
	}
}
