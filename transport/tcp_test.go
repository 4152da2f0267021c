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

package transport

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/xtaci/pipeline"
)

// TestDialTCPIsAsync confirms DialTCP exercises the engine's IN_LL_OPEN
// path: Open returns ErrInProgress immediately and done fires later, once
// the dial actually completes.
func TestDialTCPIsAsync(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()
	go func() {
		conn, err := lis.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	tcp := DialTCP(lis.Addr().String())
	tcp.SetCallbacks(pipeline.LLCallbacks{})

	done := make(chan error, 1)
	err = tcp.Open(func(err error) { done <- err })
	if !errors.Is(err, pipeline.ErrInProgress) {
		t.Fatalf("Open = %v, want ErrInProgress", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("async open failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for async dial to complete")
	}
}

// TestNewTCPOpenIsSynchronous confirms the accepted-connection constructor
// completes Open immediately, with no async continuation required.
func TestNewTCPOpenIsSynchronous(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := lis.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err := net.Dial("tcp", lis.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	var server net.Conn
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	defer server.Close()

	tcp := NewTCP(server)
	tcp.SetCallbacks(pipeline.LLCallbacks{})
	if err := tcp.Open(func(error) {}); err != nil {
		t.Fatalf("Open = %v, want synchronous nil", err)
	}
}

// TestTCPWriteRead exercises the happy path end to end: a real TCP
// connection, an accepted TCP LL on the server, and a dialed TCP LL on the
// client, both fed through the LL contract directly (no filter/engine).
func TestTCPWriteRead(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := lis.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	clientConn, err := net.Dial("tcp", lis.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer clientConn.Close()

	var serverConn net.Conn
	select {
	case serverConn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	defer serverConn.Close()

	client := NewTCP(clientConn)
	server := NewTCP(serverConn)

	serverRead := make(chan []byte, 1)
	server.SetCallbacks(pipeline.LLCallbacks{
		ReadCallback: func(err error, buf []byte, n int) int {
			if err != nil {
				return 0
			}
			cp := make([]byte, n)
			copy(cp, buf[:n])
			serverRead <- cp
			return n
		},
	})
	client.SetCallbacks(pipeline.LLCallbacks{})

	if err := client.Open(func(error) {}); err != nil {
		t.Fatalf("client Open: %v", err)
	}
	if err := server.Open(func(error) {}); err != nil {
		t.Fatalf("server Open: %v", err)
	}
	server.SetReadCallbackEnable(true)

	msg := []byte("over the wire")
	if _, err := client.Write(msg); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-serverRead:
		if !bytes.Equal(got, msg) {
			t.Fatalf("payload mismatch: got %q, want %q", got, msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for TCP read")
	}

	if got := client.RAddrToStr(); got == "" {
		t.Fatal("RAddrToStr returned empty string for a live connection")
	}
}
