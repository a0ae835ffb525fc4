package config

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseConnToConnectionRoundTrip(t *testing.T) {
	kr := KeywordRecord{
		Name: "office",
		Options: map[string]string{
			"type":        "tunnel",
			"authby":      "secret",
			"ikev2":       "yes",
			"pfs":         "yes",
			"auto":        "start",
			"leftid":      "@left.example.com",
			"leftsubnet":  "10.0.1.0/24",
			"rightid":     "@right.example.com",
			"rightsubnet": "10.0.2.0/24",
		},
	}
	rec, err := ParseConn(kr)
	if err != nil {
		t.Fatalf("ParseConn: %v", err)
	}
	if rec.AuthBy != AuthBySecret || !rec.IKEv2 || !rec.PFS {
		t.Fatalf("unexpected record: %+v", rec)
	}

	conn, err := rec.ToConnection()
	if err != nil {
		t.Fatalf("ToConnection: %v", err)
	}
	if conn.Name != "office" || conn.IKEVersion != 2 {
		t.Fatalf("unexpected connection: %+v", conn)
	}
	if len(conn.Local.Selectors) != 1 || conn.Local.Selectors[0].PrefixLength != 24 {
		t.Fatalf("unexpected local selector: %+v", conn.Local.Selectors)
	}
	if conn.Local.HostID != "@left.example.com" {
		t.Fatalf("unexpected local host id: %q", conn.Local.HostID)
	}
}

func TestParseConnRejectsUnknownEnum(t *testing.T) {
	kr := KeywordRecord{Name: "bad", Options: map[string]string{"type": "bogus"}}
	if _, err := ParseConn(kr); err == nil {
		t.Fatalf("expected error for unknown type value")
	}
}

func TestWriteConnEmitsFixedOrder(t *testing.T) {
	rec := &ConnRecord{
		Name:   "office",
		Type:   ConnTypeTunnel,
		AuthBy: AuthBySecret,
		IKEv2:  true,
		PFS:    true,
		Auto:   0,
		Left:   EndRecord{Prefix: "left", ID: "@left.example.com", Subnet: "10.0.1.0/24"},
		Right:  EndRecord{Prefix: "right", ID: "@right.example.com", Subnet: "10.0.2.0/24"},
	}
	var buf bytes.Buffer
	if err := Write(&buf, nil, []*ConnRecord{rec}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "conn office\n\ttype=tunnel\n\tauthby=secret\n\tikev2=yes\n\tpfs=yes\n") {
		t.Fatalf("unexpected leading order:\n%s", out)
	}
	if !strings.Contains(out, "\tleftid=@left.example.com\n") || !strings.Contains(out, "\trightsubnet=10.0.2.0/24\n") {
		t.Fatalf("missing leftright keys:\n%s", out)
	}
}

func TestLoadDaemonConfigDefaultsAndOverrides(t *testing.T) {
	cfg, err := LoadDaemonConfig(strings.NewReader("log_level: debug\n"))
	if err != nil {
		t.Fatalf("LoadDaemonConfig: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected override to apply, got %q", cfg.LogLevel)
	}
	if cfg.KernelBackend != "mock" {
		t.Fatalf("expected default kernel backend to survive, got %q", cfg.KernelBackend)
	}
}
