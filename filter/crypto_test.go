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

package filter

import (
	"bytes"
	"testing"

	"github.com/xtaci/pipeline"
)

func TestCryptoRoundTripAllSuites(t *testing.T) {
	for _, method := range []string{"aes-ctr", "salsa20", "aes-gcm"} {
		t.Run(method, func(t *testing.T) {
			pass := []byte("correct horse battery staple")
			sender, err := NewCrypto(method, pass)
			if err != nil {
				t.Fatalf("NewCrypto sender: %v", err)
			}
			receiver, err := NewCrypto(method, pass)
			if err != nil {
				t.Fatalf("NewCrypto receiver: %v", err)
			}
			sender.Setup(pipeline.FilterCallbacks{})
			receiver.Setup(pipeline.FilterCallbacks{})

			var wire bytes.Buffer
			msg := []byte("the quick brown fox jumps over the lazy dog")
			if _, err := sender.ULWrite(func(buf []byte) (int, error) {
				wire.Write(buf)
				return len(buf), nil
			}, msg); err != nil {
				t.Fatalf("ULWrite: %v", err)
			}

			var decoded bytes.Buffer
			if _, err := receiver.LLWrite(func(buf []byte) (int, error) {
				decoded.Write(buf)
				return len(buf), nil
			}, wire.Bytes()); err != nil {
				t.Fatalf("LLWrite: %v", err)
			}

			if !bytes.Equal(decoded.Bytes(), msg) {
				t.Fatalf("%s: decrypted payload mismatch: got %q, want %q", method, decoded.Bytes(), msg)
			}
		})
	}
}

// TestCryptoAESGCMDetectsTamper exercises scenario 9: corrupting a single
// ciphertext byte in transit under aes-gcm must surface as an error from
// LLWrite, not as silently wrong plaintext.
func TestCryptoAESGCMDetectsTamper(t *testing.T) {
	pass := []byte("another shared secret")
	sender, err := NewCrypto("aes-gcm", pass)
	if err != nil {
		t.Fatalf("NewCrypto sender: %v", err)
	}
	receiver, err := NewCrypto("aes-gcm", pass)
	if err != nil {
		t.Fatalf("NewCrypto receiver: %v", err)
	}
	sender.Setup(pipeline.FilterCallbacks{})
	receiver.Setup(pipeline.FilterCallbacks{})

	var wire bytes.Buffer
	if _, err := sender.ULWrite(func(buf []byte) (int, error) {
		wire.Write(buf)
		return len(buf), nil
	}, []byte("do not tamper with this")); err != nil {
		t.Fatalf("ULWrite: %v", err)
	}

	tampered := wire.Bytes()
	tampered[len(tampered)-1] ^= 0xFF

	_, err = receiver.LLWrite(func(buf []byte) (int, error) {
		t.Fatal("sink must not be called with unauthenticated plaintext")
		return len(buf), nil
	}, tampered)
	if err == nil {
		t.Fatal("expected an authentication error for a tampered aes-gcm frame")
	}
}

func TestCryptoUnknownMethod(t *testing.T) {
	if _, err := NewCrypto("rot13", []byte("pass")); err == nil {
		t.Fatal("expected an error for an unknown cipher method")
	}
}

// TestCryptoAESGCMNonceNeverRepeats confirms successive frames under one
// key use distinct nonces, the monotonic-counter property the aes-gcm
// suite depends on to avoid catastrophic nonce reuse.
func TestCryptoAESGCMNonceNeverRepeats(t *testing.T) {
	sender, err := NewCrypto("aes-gcm", []byte("pass"))
	if err != nil {
		t.Fatalf("NewCrypto: %v", err)
	}
	sender.Setup(pipeline.FilterCallbacks{})

	nonceSize := cryptoSuites["aes-gcm"].nonceSize
	frames := make([][]byte, 0, 3)
	for i := 0; i < 3; i++ {
		var wire bytes.Buffer
		if _, err := sender.ULWrite(func(buf []byte) (int, error) {
			wire.Write(buf)
			return len(buf), nil
		}, []byte("frame")); err != nil {
			t.Fatalf("ULWrite: %v", err)
		}
		frame := wire.Bytes()
		nonce := frame[cryptoFrameHeaderLen : cryptoFrameHeaderLen+nonceSize]
		frames = append(frames, append([]byte(nil), nonce...))
	}

	if bytes.Equal(frames[0], frames[1]) || bytes.Equal(frames[1], frames[2]) {
		t.Fatal("consecutive aes-gcm frames reused a nonce")
	}
}
