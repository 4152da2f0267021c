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

package std

import (
	"net"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

var multiPortPattern = regexp.MustCompile(`(.*)\:([0-9]{1,5})-?([0-9]{1,5})?`)

// MultiPort is a "host:min-max" listen spec for cmd/server's accept loop: a
// pipeline.LL's Accept-and-wrap pattern (transport.NewTCP per net.Conn) does
// not itself shard work across goroutines the way kcp.Listener could, so
// cmd/server instead binds one net.Listener per port in the range and runs
// an independent accept loop on each, spreading incoming engines across
// listener goroutines on multi-core hosts.
type MultiPort struct {
	Host    string
	MinPort uint64
	MaxPort uint64
}

// ParseMultiPort parses addr ("host:port" or "host:min-max") into a
// MultiPort describing the listen range cmd/server should bind.
func ParseMultiPort(addr string) (*MultiPort, error) {
	matches := multiPortPattern.FindStringSubmatch(addr)
	if len(matches) < 4 {
		return nil, errors.Errorf("malformed address: %v", addr)
	}

	minPort, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, errors.Wrapf(err, "parsing min port in %q", addr)
	}
	maxPort := minPort
	if matches[3] != "" {
		maxPort, err = strconv.Atoi(matches[3])
		if err != nil {
			return nil, errors.Wrapf(err, "parsing max port in %q", addr)
		}
	}

	if minPort > maxPort || minPort == 0 || maxPort > 65535 {
		return nil, errors.Errorf("invalid port range specified: minport:%v -> maxport %v", minPort, maxPort)
	}

	return &MultiPort{Host: matches[1], MinPort: uint64(minPort), MaxPort: uint64(maxPort)}, nil
}

// Addrs expands the range into one "host:port" string per port, ready to
// hand to net.Listen — the shape cmd/server's fan-out loop actually needs,
// rather than leaving the MinPort/MaxPort iteration to every caller.
func (mp *MultiPort) Addrs() []string {
	addrs := make([]string, 0, mp.MaxPort-mp.MinPort+1)
	for port := mp.MinPort; port <= mp.MaxPort; port++ {
		addrs = append(addrs, net.JoinHostPort(mp.Host, strconv.FormatUint(port, 10)))
	}
	return addrs
}
