package hs2

import (
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hue-gateway/internal/domain"
)

// saslFrame is one message of the SASL negotiation.
type saslFrame struct {
	status byte
	body   []byte
}

func readSaslFrame(r io.Reader) (saslFrame, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return saslFrame{}, err
	}
	body := make([]byte, binary.BigEndian.Uint32(header[1:]))
	if _, err := io.ReadFull(r, body); err != nil {
		return saslFrame{}, err
	}
	return saslFrame{status: header[0], body: body}, nil
}

func writeSaslFrame(w io.Writer, status byte, body string) error {
	header := make([]byte, 5)
	header[0] = status
	binary.BigEndian.PutUint32(header[1:], uint32(len(body)))
	_, err := w.Write(append(header, body...))
	return err
}

// listen starts a TCP server that hands its first connection to serve and
// returns a server definition pointing at it. The connection stays open
// until the test ends.
func listen(t *testing.T, auth string, serve func(net.Conn)) domain.QueryServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	release := make(chan struct{})
	t.Cleanup(func() {
		close(release)
		_ = ln.Close()
	})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
		<-release
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return domain.QueryServer{Name: "beeswax", Host: "127.0.0.1", Port: addr.Port, Auth: auth}
}

func TestOpenTransport_NoSasl(t *testing.T) {
	accepted := make(chan struct{})
	server := listen(t, "NOSASL", func(net.Conn) { close(accepted) })

	transport, err := openTransport(server, "alice")
	require.NoError(t, err)
	defer transport.Close()
	assert.True(t, transport.IsOpen())
	<-accepted
}

func TestOpenTransport_Plain(t *testing.T) {
	t.Run("completes_negotiation", func(t *testing.T) {
		frames := make(chan saslFrame, 2)
		server := listen(t, "", func(conn net.Conn) {
			for range 2 {
				f, err := readSaslFrame(conn)
				if err != nil {
					return
				}
				frames <- f
			}
			_ = writeSaslFrame(conn, 5, "")
		})

		transport, err := openTransport(server, "alice")
		require.NoError(t, err)
		defer transport.Close()
		assert.True(t, transport.IsOpen())

		start := <-frames
		assert.Equal(t, byte(1), start.status)
		assert.Equal(t, "PLAIN", string(start.body))
		auth := <-frames
		assert.Equal(t, byte(2), auth.status)
		assert.Equal(t, "\x00alice\x00x", string(auth.body))
	})

	t.Run("configured_credentials", func(t *testing.T) {
		frames := make(chan saslFrame, 2)
		server := listen(t, "LDAP", func(conn net.Conn) {
			for range 2 {
				f, err := readSaslFrame(conn)
				if err != nil {
					return
				}
				frames <- f
			}
			_ = writeSaslFrame(conn, 5, "")
		})
		server.Username, server.Password = "hue", "secret"

		transport, err := openTransport(server, "alice")
		require.NoError(t, err)
		defer transport.Close()

		<-frames
		auth := <-frames
		assert.Equal(t, "\x00hue\x00secret", string(auth.body))
	})

	t.Run("rejected_negotiation", func(t *testing.T) {
		server := listen(t, "", func(conn net.Conn) {
			for range 2 {
				if _, err := readSaslFrame(conn); err != nil {
					return
				}
			}
			_ = writeSaslFrame(conn, 3, "Error validating the login")
		})

		_, err := openTransport(server, "alice")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Error validating the login")
	})
}

func TestOpenTransport_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	_, err = openTransport(domain.QueryServer{Host: "127.0.0.1", Port: port, Auth: "NOSASL"}, "alice")
	require.Error(t, err)
}

func TestCredentials(t *testing.T) {
	user, password := credentials(domain.QueryServer{}, "alice")
	assert.Equal(t, "alice", user)
	assert.Equal(t, "x", password, "an empty password is replaced")

	user, password = credentials(domain.QueryServer{Username: "hue", Password: "pw"}, "alice")
	assert.Equal(t, "hue", user)
	assert.Equal(t, "pw", password)
}
