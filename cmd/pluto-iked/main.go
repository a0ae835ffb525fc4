// Command pluto-iked is the IKEv1/IKEv2 daemon: it loads its process
// configuration and connection set, opens the IKE transport and admin
// socket, and runs the single-goroutine event loop until signaled to stop.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/msgboxio/log"
	"go.uber.org/zap"

	"github.com/PatrisiousHaddad/libreswan/internal/addr"
	"github.com/PatrisiousHaddad/libreswan/internal/admin"
	"github.com/PatrisiousHaddad/libreswan/internal/config"
	"github.com/PatrisiousHaddad/libreswan/internal/connstore"
	"github.com/PatrisiousHaddad/libreswan/internal/engine"
	"github.com/PatrisiousHaddad/libreswan/internal/kernel"
	"github.com/PatrisiousHaddad/libreswan/internal/kernel/mock"
	"github.com/PatrisiousHaddad/libreswan/internal/kernel/xfrm"
	"github.com/PatrisiousHaddad/libreswan/internal/protocol"
	"github.com/PatrisiousHaddad/libreswan/internal/routing"
	"github.com/PatrisiousHaddad/libreswan/internal/secrets"
	"github.com/PatrisiousHaddad/libreswan/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to the daemon's YAML process configuration")
	connsPath := flag.String("conns", "", "path to a JSON list of connection keyword records")
	flag.Parse()

	zlog, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pluto-iked: zap: %v\n", err)
		os.Exit(1)
	}
	defer zlog.Sync() //nolint:errcheck // best-effort flush on exit

	cfg := config.DefaultDaemonConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			zlog.Fatal("open config", zap.String("path", *configPath), zap.Error(err))
		}
		cfg, err = config.LoadDaemonConfig(f)
		f.Close()
		if err != nil {
			zlog.Fatal("load config", zap.String("path", *configPath), zap.Error(err))
		}
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = lvl
		if rebuilt, err := zcfg.Build(); err == nil {
			zlog = rebuilt
		}
	}
	zlog.Info("starting pluto-iked",
		zap.Strings("listen", cfg.Listen),
		zap.Int("natt_port", cfg.NatTPort),
		zap.String("kernel_backend", cfg.KernelBackend),
		zap.String("admin_socket", cfg.AdminSocket))

	store := connstore.NewStore()
	if *connsPath != "" {
		if err := loadConnections(store, *connsPath); err != nil {
			zlog.Fatal("load connections", zap.String("path", *connsPath), zap.Error(err))
		}
	}

	secretStore := secrets.NewStore()
	if cfg.SecretsFile != "" {
		f, err := os.Open(cfg.SecretsFile)
		if err != nil {
			zlog.Fatal("open secrets file", zap.String("path", cfg.SecretsFile), zap.Error(err))
		}
		secretStore, err = secrets.ParseFile(f)
		f.Close()
		if err != nil {
			zlog.Fatal("parse secrets file", zap.String("path", cfg.SecretsFile), zap.Error(err))
		}
	}

	kern, err := newKernel(cfg.KernelBackend)
	if err != nil {
		zlog.Fatal("kernel backend", zap.Error(err))
	}

	routingEngine := routing.NewEngine(kern, nil, log.Infof)

	if len(cfg.Listen) == 0 {
		zlog.Fatal("no listen addresses configured")
	}
	conn, err := transport.Listen("udp", cfg.Listen[0])
	if err != nil {
		zlog.Fatal("listen", zap.String("address", cfg.Listen[0]), zap.Error(err))
	}
	defer conn.Close()

	localIP, err := localAddrOf(conn)
	if err != nil {
		zlog.Fatal("determine local address", zap.Error(err))
	}

	daemon := engine.New(store, routingEngine, kern, secretStore, conn, localIP)
	daemon.IKEv1Proposal = defaultIKEv1Proposal()
	daemon.IKEv2Proposals = defaultIKEv2Proposals()

	dispatcher := admin.NewDispatcher(store, routingEngine, daemon)
	server := admin.NewServer(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 3)
	go func() { errc <- daemon.Run(ctx) }()
	go daemon.RunTimers(ctx)
	go func() { errc <- server.ListenAndServe(ctx, cfg.AdminSocket) }()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		zlog.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errc:
		if err != nil {
			zlog.Error("fatal component error", zap.Error(err))
		}
	}

	cancel()
	daemon.Shutdown()
	zlog.Info("pluto-iked stopped")
}

func newKernel(backend string) (kernelHooks, error) {
	switch backend {
	case "", "mock":
		return mock.New(), nil
	case "xfrm":
		return xfrm.New(), nil
	default:
		return nil, fmt.Errorf("unknown kernel_backend %q", backend)
	}
}

// kernelHooks is the intersection of internal/kernel.Kernel and
// internal/routing.Hooks that main needs: both internal/kernel/mock.Kernel
// and internal/kernel/xfrm.Driver implement it from a single struct.
type kernelHooks interface {
	kernel.Kernel
	routing.Hooks
}

func localAddrOf(conn transport.Conn) (addr.IP, error) {
	if udp, ok := conn.LocalAddr().(*net.UDPAddr); ok && udp.IP != nil && !udp.IP.IsUnspecified() {
		return addr.FromNetIP(udp.IP)
	}
	// A 0.0.0.0 bind has no single local address; the per-packet localIP
	// reported by ReadPacket is what session code relies on instead, this
	// is only used to seed responder host-pair matching before any packet
	// has arrived.
	return addr.Parse("0.0.0.0")
}

// loadConnections reads a JSON array of config.KeywordRecord (the shape
// §6 has the external ipsec.conf parser hand to the core) and adds each
// resulting connection to store.
func loadConnections(store *connstore.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var records []config.KeywordRecord
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return fmt.Errorf("decode connection records: %w", err)
	}
	for _, kr := range records {
		rec, err := config.ParseConn(kr)
		if err != nil {
			return fmt.Errorf("conn %s: %w", kr.Name, err)
		}
		c, err := rec.ToConnection()
		if err != nil {
			return fmt.Errorf("conn %s: %w", kr.Name, err)
		}
		if err := store.Add(c); err != nil {
			return fmt.Errorf("conn %s: %w", kr.Name, err)
		}
	}
	return nil
}

func defaultIKEv1Proposal() *protocol.SaProposal {
	return &protocol.SaProposal{
		IsLast:     true,
		Number:     1,
		ProtocolId: protocol.IKE,
		Transforms: protocol.IKE_AES_CBC_SHA1_96_DH_1024.AsList(),
	}
}

func defaultIKEv2Proposals() []*protocol.SaProposal {
	return []*protocol.SaProposal{
		{IsLast: true, Number: 1, ProtocolId: protocol.IKE, Transforms: protocol.IKE_AES_GCM_16_DH_2048.AsList()},
	}
}
