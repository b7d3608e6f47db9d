// Command h2demo serves a toy fasthttp handler over the engine, TLS
// certificates coming from Let's Encrypt via autocert (-host set) or a
// local self-signed pair (-host empty).
//
// Grounded on examples/simple/main.go and examples/autocert/main.go.
package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	http2 "github.com/arborian/h2core"
	"github.com/arborian/h2core/fasthttpadaptor"
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/acme/autocert"
)

func main() {
	addr := flag.String("addr", ":8443", "listen address")
	host := flag.String("host", "", "hostname to request a cert for via autocert; empty uses a self-signed cert")
	certDir := flag.String("certdir", "./certs", "autocert cache directory")
	flag.Parse()

	tlsConfig, err := buildTLSConfig(*host, *certDir)
	if err != nil {
		log.Fatalln(err)
	}

	ln, err := tls.Listen("tcp", *addr, tlsConfig)
	if err != nil {
		log.Fatalln(err)
	}

	log.Println("listening on", *addr)
	log.Fatalln(serve(ln))
}

func buildTLSConfig(host, certDir string) (*tls.Config, error) {
	if host == "" {
		cert, err := selfSignedCert()
		if err != nil {
			return nil, err
		}
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{http2.H2TLSProto},
		}, nil
	}

	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(host),
		Cache:      autocert.DirCache(certDir),
	}

	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{http2.H2TLSProto},
	}, nil
}

func serve(ln net.Listener) error {
	handler := fasthttpadaptor.New(requestHandler)

	for {
		c, err := ln.Accept()
		if err != nil {
			return err
		}

		tlsConn, ok := c.(*tls.Conn)
		if ok {
			if err := tlsConn.Handshake(); err != nil {
				c.Close()
				continue
			}
			if tlsConn.ConnectionState().NegotiatedProtocol != http2.H2TLSProto {
				c.Close()
				continue
			}
		}

		go func(c net.Conn) {
			defer c.Close()

			cfg := http2.DefaultConfig()
			cfg.IdleTimeout = 2 * time.Minute
			cfg.PingInterval = 30 * time.Second

			conn := http2.NewConn(c, cfg)
			if err := conn.Serve(handler); err != nil {
				log.Printf("conn %s: %v", c.RemoteAddr(), err)
			}
		}(c)
	}
}

func requestHandler(ctx *fasthttp.RequestCtx) {
	if ctx.Request.Header.IsPost() {
		fmt.Fprintf(ctx, "%s\n", ctx.Request.Body())
		return
	}
	fmt.Fprintf(ctx, "Hello from h2core!\n")
}
