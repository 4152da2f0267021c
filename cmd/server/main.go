// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli"
	"github.com/xtaci/smux"

	"github.com/xtaci/pipeline"
	"github.com/xtaci/pipeline/filter"
	"github.com/xtaci/pipeline/std"
	"github.com/xtaci/pipeline/transport"
)

const maxSmuxVer = 2

// VERSION is injected by buildflags
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "pipeline-server"
	myApp.Usage = "server (with SMUX)"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen,l",
			Value: ":29900",
			Usage: `listen address, eg: "IP:29900" for a single port, "IP:minport-maxport" for a port range`,
		},
		cli.StringFlag{
			Name:  "target, t",
			Value: "127.0.0.1:12948",
			Usage: `target address, eg: "IP:12948" or "unix:///tmp/echo.sock"`,
		},
		cli.StringFlag{
			Name:   "key",
			Value:  "it's a secrect",
			Usage:  "pre-shared secret between client and server",
			EnvVar: "PIPELINE_KEY",
		},
		cli.StringFlag{
			Name:  "filter",
			Value: "aes-ctr",
			Usage: "none, compress, qpp, telnet, or a cipher name (aes-ctr, salsa20, aes-gcm)",
		},
		cli.IntFlag{
			Name:  "qppcount",
			Value: 61,
			Usage: "number of pads for the qpp filter: more pads is more secure, and each pad costs 256 bytes",
		},
		cli.IntFlag{
			Name:  "smuxver",
			Value: 2,
			Usage: "specify smux version, available 1,2",
		},
		cli.IntFlag{
			Name:  "smuxbuf",
			Value: 4194304,
			Usage: "the overall de-mux buffer in bytes",
		},
		cli.IntFlag{
			Name:  "framesize",
			Value: 8192,
			Usage: "smux max frame size",
		},
		cli.IntFlag{
			Name:  "streambuf",
			Value: 2097152,
			Usage: "per stream receive buffer in bytes, smux v2+",
		},
		cli.IntFlag{
			Name:  "keepalive",
			Value: 10,
			Usage: "seconds between heartbeats",
		},
		cli.IntFlag{
			Name:  "closewait",
			Value: 0,
			Usage: "the seconds to wait before tearing down a connection",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "to suppress the 'stream open/close' messages",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "config from json file, which will override the command from shell",
		},
		cli.BoolFlag{
			Name:  "pprof",
			Usage: "start profiling server on :6060",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		config := Config{}
		config.Listen = c.String("listen")
		config.Target = c.String("target")
		config.Key = c.String("key")
		config.Filter = c.String("filter")
		config.QPPCount = c.Int("qppcount")
		config.SmuxBuf = c.Int("smuxbuf")
		config.FrameSize = c.Int("framesize")
		config.StreamBuf = c.Int("streambuf")
		config.SmuxVer = c.Int("smuxver")
		config.KeepAlive = c.Int("keepalive")
		config.CloseWait = c.Int("closewait")
		config.Log = c.String("log")
		config.Pprof = c.Bool("pprof")
		config.Quiet = c.Bool("quiet")

		if c.String("c") != "" {
			err := parseJSONConfig(&config, c.String("c"))
			checkError(err)
		}

		if config.Log != "" {
			f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			checkError(err)
			defer f.Close()
			log.SetOutput(f)
		}

		log.Println("version:", VERSION)
		log.Println("listening on:", config.Listen)
		log.Println("target:", config.Target)
		log.Println("filter:", config.Filter)
		log.Println("smux version:", config.SmuxVer)
		log.Println("smuxbuf:", config.SmuxBuf)
		log.Println("framesize:", config.FrameSize)
		log.Println("streambuf:", config.StreamBuf)
		log.Println("keepalive:", config.KeepAlive)
		log.Println("quiet:", config.Quiet)
		log.Println("pprof:", config.Pprof)

		if config.Filter == "qpp" {
			warnings, err := filter.ValidateQPPParams(config.QPPCount, config.Key)
			checkError(err)
			for _, w := range warnings {
				color.Red("QPP Warning: %s", w)
			}
		}

		if config.SmuxVer > maxSmuxVer {
			log.Fatal("unsupported smux version:", config.SmuxVer)
		}

		if config.Pprof {
			go http.ListenAndServe(":6060", nil)
		}

		mp, err := std.ParseMultiPort(config.Listen)
		checkError(err)

		for _, addr := range mp.Addrs() {
			lis, err := net.Listen("tcp", addr)
			checkError(err)
			log.Println("listening on:", lis.Addr())
			go serve(lis, &config)
		}

		select {}
	}
	myApp.Run(os.Args)
}

// serve accepts raw connections on lis, wraps each in the engine on the
// server side of the handshake, and multiplexes streams over it.
func serve(lis net.Listener, config *Config) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			log.Println("accept:", err)
			return
		}
		go handleMux(conn, config)
	}
}

// handleMux wraps one accepted raw connection in the pipeline engine, waits
// for its (filter-mediated) open handshake, then serves smux streams over
// it, dialing config.Target for each one.
func handleMux(conn net.Conn, config *Config) {
	filt, err := std.SelectFilter(config.Filter, []byte(config.Key), config.QPPCount, config.Filter != "none")
	if err != nil {
		log.Println("SelectFilter:", err)
		conn.Close()
		return
	}

	ll := transport.NewTCP(conn)
	pc := pipeline.NewConn(ll, filt, true)
	if err := pc.Open(); err != nil {
		log.Println("open:", err, "remote:", conn.RemoteAddr())
		return
	}
	defer pc.Close()

	smuxWarnings, smuxConfig, err := std.BuildSmuxConfig(config.SmuxVer, config.SmuxBuf, config.StreamBuf, config.FrameSize, config.KeepAlive)
	if err != nil {
		log.Printf("%+v", err)
		return
	}
	for _, w := range smuxWarnings {
		color.Red("smux Warning: %s", w)
	}

	log.Println("smux version:", config.SmuxVer, "on connection:", conn.RemoteAddr())
	mux, err := smux.Server(pc, smuxConfig)
	if err != nil {
		log.Println("smux.Server:", err)
		return
	}
	defer mux.Close()

	for {
		p1, err := mux.AcceptStream()
		if err != nil {
			return
		}
		go handleClient(p1, config)
	}
}

// handleClient dials config.Target and pipes it against p1.
func handleClient(p1 *smux.Stream, config *Config) {
	logln := func(v ...any) {
		if !config.Quiet {
			log.Println(v...)
		}
	}

	defer p1.Close()

	var p2 net.Conn
	var err error
	if network, addr, ok := unixTarget(config.Target); ok {
		p2, err = net.Dial(network, addr)
	} else {
		p2, err = net.Dial("tcp", config.Target)
	}
	if err != nil {
		logln(err)
		return
	}
	defer p2.Close()

	logln("stream opened", "in:", fmt.Sprint(p1.RemoteAddr(), "(", p1.ID(), ")"), "out:", p2.RemoteAddr())
	defer logln("stream closed", "in:", fmt.Sprint(p1.RemoteAddr(), "(", p1.ID(), ")"), "out:", p2.RemoteAddr())

	err1, err2 := std.Pipe(p1, p2, config.CloseWait)
	if err1 != nil && err1 != io.EOF {
		logln("pipe:", err1, "in:", fmt.Sprint(p1.RemoteAddr(), "(", p1.ID(), ")"), "out:", p2.RemoteAddr())
	}
	if err2 != nil && err2 != io.EOF {
		logln("pipe:", err2, "in:", fmt.Sprint(p1.RemoteAddr(), "(", p1.ID(), ")"), "out:", p2.RemoteAddr())
	}
}

// unixTarget reports whether target names a unix domain socket
// ("unix:///path/to/sock") and, if so, the net.Dial network/address pair.
func unixTarget(target string) (network, addr string, ok bool) {
	const prefix = "unix://"
	if len(target) > len(prefix) && target[:len(prefix)] == prefix {
		return "unix", target[len(prefix):], true
	}
	return "", "", false
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}
