// Command httpcored is a thin binary wiring the router, auth and http2
// packages into a runnable HTTP/2 server (spec SPEC_FULL.md §4.5). Route
// configuration is out of scope for this module (spec §1): embedding
// applications populate Routes from an init function with a pre-built
// []router.RouteSpec; this command's flags cover everything else
// (listen address, TLS material, connection cap).
package main

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/embedthis/httpcore/http2"
	"github.com/embedthis/httpcore/internal/log"
	"github.com/embedthis/httpcore/router"
)

// Routes is the route table, supplied by an init function in a file
// added to this package, e.g.:
//
//	func init() {
//	    Routes = []router.RouteSpec{
//	        {Name: "home", Pattern: `^/$`, Target: "write", TargetArg: "-r hello"},
//	    }
//	}
//
// Left empty, the default host serves a single placeholder route so the
// binary is runnable standalone.
var Routes []router.RouteSpec

type options struct {
	addr     string
	certFile string
	keyFile  string
	maxConns int
	verbose  bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "httpcored",
		Short: "Serve a router.Router's routes over HTTP/2",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", ":8443", "TCP address to listen on")
	flags.StringVar(&opts.certFile, "cert", "", "TLS certificate file (PEM)")
	flags.StringVar(&opts.keyFile, "key", "", "TLS private key file (PEM)")
	flags.IntVar(&opts.maxConns, "max-conns", 0, "maximum concurrent connections, 0 for unlimited")
	flags.BoolVar(&opts.verbose, "verbose", false, "enable debug logging")
	return cmd
}

func run(opts *options) error {
	log.SetVerbose(opts.verbose)
	logger := log.Default()

	if opts.certFile == "" || opts.keyFile == "" {
		return fmt.Errorf("httpcored: --cert and --key are required (HTTP/2 needs TLS+ALPN)")
	}
	cert, err := tls.LoadX509KeyPair(opts.certFile, opts.keyFile)
	if err != nil {
		return fmt.Errorf("httpcored: load TLS key pair: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2"},
		MinVersion:   tls.VersionTLS12,
	}

	specs := Routes
	if len(specs) == 0 {
		specs = []router.RouteSpec{
			{Name: "default", Pattern: `^/$`, Target: "write", TargetArg: "-r httpcored"},
		}
	}
	host, err := router.BuildHost("default", specs)
	if err != nil {
		return fmt.Errorf("httpcored: build routes: %w", err)
	}
	rt := router.NewRouter(host)

	ln, err := tls.Listen("tcp", opts.addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("httpcored: listen: %w", err)
	}
	if opts.maxConns > 0 {
		ln = netutil.LimitListener(ln, opts.maxConns)
	}
	defer ln.Close()

	logger.WithFields(log.Fields{"addr": opts.addr}).Info("httpcored listening")
	return serve(ln, rt, logger)
}

// serve accepts connections until ln.Accept fails, handing each one to
// its own goroutine the way the teacher's net/http-based server lets
// http.Server hand off one goroutine per accepted connection
// (_examples/baranov1ch-http2/server.go's ServeConn wiring), minus the
// teacher's http.Server scaffolding since httpcore speaks HTTP/2 only.
func serve(ln net.Listener, rt *router.Router, logger *log.Logger) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go handleConn(conn, rt, logger)
	}
}

func handleConn(conn net.Conn, rt *router.Router, logger *log.Logger) {
	if tc, ok := conn.(*tls.Conn); ok {
		if err := tc.Handshake(); err != nil {
			logger.WithError(err).Warn("tls handshake failed")
			conn.Close()
			return
		}
		if proto := tc.ConnectionState().NegotiatedProtocol; proto != "h2" {
			logger.WithFields(log.Fields{"protocol": proto}).Warn("peer did not negotiate h2, closing")
			conn.Close()
			return
		}
	}
	if err := http2.NewConn(conn, rt).Serve(); err != nil {
		logger.WithFields(log.Fields{"remote": conn.RemoteAddr()}).WithError(err).Debug("connection closed")
	}
}
