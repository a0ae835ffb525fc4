package config

import (
	"bufio"
	"fmt"
	"io"

	"github.com/PatrisiousHaddad/libreswan/internal/connstore"
)

// Write emits setup (if non-nil) followed by each conn, in the same
// overall shape confwrite's top-level confwrite() function does: an
// optional "config setup" block first, then one "conn <name>" stanza per
// record, each ended with a blank line.
func Write(w io.Writer, setup *SetupRecord, conns []*ConnRecord) error {
	bw := bufio.NewWriter(w)
	if setup != nil {
		if _, err := fmt.Fprintln(bw, "config setup"); err != nil {
			return err
		}
		for _, kv := range setup.Options {
			if _, err := fmt.Fprintf(bw, "\t%s=%s\n", kv.Key, kv.Value); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(bw); err != nil {
			return err
		}
	}
	for _, c := range conns {
		if err := writeConn(bw, c); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// writeConn emits one conn stanza in a fixed keyword order, matching the
// order spec §6 lists: type, authby, ikev2, pfs, ppk, esn, ike_frag, auto,
// phase2, then left's then right's leftright-prefixed keys.
func writeConn(w *bufio.Writer, c *ConnRecord) error {
	if _, err := fmt.Fprintf(w, "conn %s\n", c.Name); err != nil {
		return err
	}
	line := func(key, val string) error {
		_, err := fmt.Fprintf(w, "\t%s=%s\n", key, val)
		return err
	}
	if err := line("type", c.Type.String()); err != nil {
		return err
	}
	if err := line("authby", c.AuthBy.String()); err != nil {
		return err
	}
	if err := line("ikev2", yesNo(c.IKEv2)); err != nil {
		return err
	}
	if err := line("pfs", yesNo(c.PFS)); err != nil {
		return err
	}
	if err := line("ppk", c.PPK.String()); err != nil {
		return err
	}
	if err := line("esn", c.ESN.String()); err != nil {
		return err
	}
	// ike_frag is omitted entirely when unset, matching the original's
	// no-line-written case when POLICY_IKE_FRAG_ALLOW isn't set.
	if c.IKEFrag != IKEFragUnset {
		if err := line("ike_frag", c.IKEFrag.String()); err != nil {
			return err
		}
	}
	if err := line("auto", autostartString(c.Auto)); err != nil {
		return err
	}
	if err := line("phase2", c.Phase2.String()); err != nil {
		return err
	}
	if err := writeEnd(w, c.Left); err != nil {
		return err
	}
	if err := writeEnd(w, c.Right); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func writeEnd(w *bufio.Writer, e EndRecord) error {
	lineIfSet := func(key, val string) error {
		if val == "" {
			return nil
		}
		_, err := fmt.Fprintf(w, "\t%s%s=%s\n", e.Prefix, key, val)
		return err
	}
	if err := lineIfSet("id", e.ID); err != nil {
		return err
	}
	if err := lineIfSet("subnet", e.Subnet); err != nil {
		return err
	}
	if err := lineIfSet("interface-ip", e.InterfaceIP); err != nil {
		return err
	}
	if err := lineIfSet("vti", e.Vti); err != nil {
		return err
	}
	if err := lineIfSet("nexthop", e.Nexthop); err != nil {
		return err
	}
	if err := lineIfSet("protoport", e.ProtoPort); err != nil {
		return err
	}
	if err := lineIfSet("cert", e.Cert); err != nil {
		return err
	}
	if err := lineIfSet("sourceip", e.SourceIP); err != nil {
		return err
	}
	if e.IPsecKeyAlg != "" {
		if err := lineIfSet(e.IPsecKeyAlg, e.IPsecKeyPubkey); err != nil {
			return err
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// autostartString renders connstore.Autostart as the `auto=` keyword's
// text form; connstore.Autostart carries no String method of its own since
// that package has no reason to know about config's textual dialect.
func autostartString(a connstore.Autostart) string {
	switch a {
	case connstore.AutostartAdd:
		return "add"
	case connstore.AutostartOndemand:
		return "ondemand"
	case connstore.AutostartStart:
		return "start"
	case connstore.AutostartKeep:
		return "keep"
	default:
		return "ignore"
	}
}
