package tor

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"golang.org/x/net/proxy"
)

// Test v3 onion addresses built from deterministic public keys. They do
// not correspond to any real service.
const (
	// testOnionV3Addr1 is the address of an all-zero public key.
	testOnionV3Addr1 = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqd.onion"
	// testOnionV3Addr2 is the address of the key 0, 1, ..., 31.
	testOnionV3Addr2 = "aaaqeayeaudaocajbifqydiob4ibceqtcqkrmfyydenbwha5dyp3kead.onion"
)

// TestIsValidV3Address tests v3 onion address validation.
func TestIsValidV3Address(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		address  string
		expected bool
	}{
		{"valid address", testOnionV3Addr1, true},
		{"valid sequential key", testOnionV3Addr2, true},
		{"uppercase", strings.ToUpper(strings.TrimSuffix(testOnionV3Addr1, OnionSuffix)) + OnionSuffix, true},
		{"v2 address", "facebookcorewwwi.onion", false},
		{"too short", "abc.onion", false},
		{"too long", strings.Repeat("a", 57) + ".onion", false},
		{"missing suffix", strings.Repeat("a", 56), false},
		{"invalid characters", strings.Repeat("1", 56) + ".onion", false},
		{"empty", "", false},
		{"wrong checksum", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqe.onion", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsValidV3Address(tc.address); got != tc.expected {
				t.Errorf("IsValidV3Address(%q) = %v, expected %v", tc.address, got, tc.expected)
			}
		})
	}
}

// TestOnionAddressFromKey tests address derivation from a public key.
func TestOnionAddressFromKey(t *testing.T) {
	t.Parallel()

	t.Run("invalid key length", func(t *testing.T) {
		t.Parallel()
		for _, n := range []int{0, 16, 31, 33, 64} {
			if _, err := OnionAddressFromKey(make([]byte, n)); !errors.Is(err, ErrInvalidOnionAddress) {
				t.Errorf("length %d: expected ErrInvalidOnionAddress, got %v", n, err)
			}
		}
	})

	t.Run("known keys", func(t *testing.T) {
		t.Parallel()

		seq := make([]byte, 32)
		for i := range seq {
			seq[i] = byte(i)
		}
		for key, want := range map[string]string{
			string(make([]byte, 32)): testOnionV3Addr1,
			string(seq):              testOnionV3Addr2,
		} {
			got, err := OnionAddressFromKey([]byte(key))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != want {
				t.Errorf("got %q, want %q", got, want)
			}
			if len(got) != OnionV3TotalLength {
				t.Errorf("length = %d, want %d", len(got), OnionV3TotalLength)
			}
		}
	})
}

// TestParseOnionTarget tests peer address normalization.
func TestParseOnionTarget(t *testing.T) {
	t.Parallel()

	bare := strings.TrimSuffix(testOnionV3Addr1, OnionSuffix)
	zeroKey := strings.Repeat("00", 32)
	countingKey := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

	testCases := []struct {
		name     string
		input    string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"plain address", testOnionV3Addr1, testOnionV3Addr1, DefaultOnionPort, false},
		{"no suffix", bare, testOnionV3Addr1, DefaultOnionPort, false},
		{"uppercase with spaces", "  " + strings.ToUpper(testOnionV3Addr1) + " ", testOnionV3Addr1, DefaultOnionPort, false},
		{"url with path", "http://" + testOnionV3Addr1 + "/v2/foreign", testOnionV3Addr1, DefaultOnionPort, false},
		{"explicit port", testOnionV3Addr1 + ":3415", testOnionV3Addr1, 3415, false},
		{"https url with port", "https://" + testOnionV3Addr2 + ":443/", testOnionV3Addr2, 443, false},
		{"public key", zeroKey, testOnionV3Addr1, DefaultOnionPort, false},
		{"public key url with port", "http://" + strings.ToUpper(countingKey) + ":3415/v2/foreign", testOnionV3Addr2, 3415, false},
		{"short hex", zeroKey[:62], "", 0, true},
		{"bad port", testOnionV3Addr1 + ":0", "", 0, true},
		{"non-numeric port", testOnionV3Addr1 + ":http", "", 0, true},
		{"v2 address", "facebookcorewwwi.onion", "", 0, true},
		{"clearnet host", "example.com:80", "", 0, true},
		{"empty", "", "", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			host, port, err := ParseOnionTarget(tc.input)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidOnionAddress) {
					t.Errorf("expected ErrInvalidOnionAddress, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if host != tc.wantHost || port != tc.wantPort {
				t.Errorf("got %s:%d, want %s:%d", host, port, tc.wantHost, tc.wantPort)
			}
		})
	}
}

// socksConnect returns a SOCKS5 server that records the CONNECT target
// and answers with reply.
func socksConnect(reply byte, targets chan<- string) func(net.Conn) {
	return func(conn net.Conn) {
		greeting := make([]byte, 3)
		if _, err := io.ReadFull(conn, greeting); err != nil {
			return
		}
		_, _ = conn.Write([]byte{socks5Version, socks5AuthNone})

		header := make([]byte, 5)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		rest := make([]byte, int(header[4])+2)
		if _, err := io.ReadFull(conn, rest); err != nil {
			return
		}
		targets <- string(rest[:header[4]])
		_, _ = conn.Write([]byte{socks5Version, reply, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
	}
}

// TestReach tests connecting to an onion service through the proxy.
func TestReach(t *testing.T) {
	t.Parallel()

	t.Run("service reachable", func(t *testing.T) {
		t.Parallel()

		targets := make(chan string, 1)
		probe, err := NewSocksProbe(serveOnce(t, socksConnect(0x00, targets)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := probe.Reach(context.Background(), "http://"+testOnionV3Addr2+"/v2/foreign"); err != nil {
			t.Fatalf("expected reachable, got %v", err)
		}
		if got := <-targets; got != testOnionV3Addr2 {
			t.Errorf("CONNECT target = %q, want %q", got, testOnionV3Addr2)
		}
	})

	t.Run("tor reports host unreachable", func(t *testing.T) {
		t.Parallel()

		targets := make(chan string, 1)
		probe, err := NewSocksProbe(serveOnce(t, socksConnect(0x04, targets)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := probe.Reach(context.Background(), testOnionV3Addr1); !errors.Is(err, ErrOnionUnreachable) {
			t.Errorf("expected ErrOnionUnreachable, got %v", err)
		}
	})

	t.Run("any SOCKS dialer", func(t *testing.T) {
		t.Parallel()

		targets := make(chan string, 1)
		d, err := proxy.SOCKS5("tcp", serveOnce(t, socksConnect(0x00, targets)), nil, proxy.Direct)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := Reach(context.Background(), d, strings.Repeat("00", 32)); err != nil {
			t.Fatalf("expected reachable, got %v", err)
		}
		if got := <-targets; got != testOnionV3Addr1 {
			t.Errorf("CONNECT target = %q, want %q", got, testOnionV3Addr1)
		}
	})

	t.Run("invalid address is not dialed", func(t *testing.T) {
		t.Parallel()

		probe, err := NewSocksProbe("127.0.0.1:1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := probe.Reach(context.Background(), "example.com"); !errors.Is(err, ErrInvalidOnionAddress) {
			t.Errorf("expected ErrInvalidOnionAddress, got %v", err)
		}
	})
}
