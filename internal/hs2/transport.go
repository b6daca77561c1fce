package hs2

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/beltran/gohive"
	"github.com/beltran/gohive/hiveserver"

	"hue-gateway/internal/domain"
)

const bufferSize = 4096

// Dial connects to server with the configured transport and SASL mechanism
// and opens a session for user.
func Dial(ctx context.Context, server domain.QueryServer, user string, logger *slog.Logger) (*Client, error) {
	transport, err := openTransport(server, user)
	if err != nil {
		return nil, fmt.Errorf("connect to %s (%s:%d): %w", server.Name, server.Host, server.Port, err)
	}

	svc := hiveserver.NewTCLIServiceClientFactory(transport, thrift.NewTBinaryProtocolFactoryDefault())
	client, err := OpenSession(ctx, svc, transport, server, user, logger)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	return client, nil
}

func openTransport(server domain.QueryServer, user string) (thrift.TTransport, error) {
	if strings.EqualFold(server.TransportMode, "http") {
		return openHTTPTransport(server, user)
	}

	addr := fmt.Sprintf("%s:%d", server.Host, server.Port)
	socket, err := thrift.NewTSocket(addr)
	if err != nil {
		return nil, err
	}
	if err := socket.Open(); err != nil {
		return nil, err
	}

	var transport thrift.TTransport
	switch strings.ToUpper(server.Auth) {
	case "NOSASL":
		transport = thrift.NewTBufferedTransport(socket, bufferSize)
	default:
		username, password := credentials(server, user)
		transport, err = gohive.NewTSaslTransport(socket, server.Host, "PLAIN", map[string]string{
			"username": username,
			"password": password,
		}, gohive.NewConnectConfiguration().MaxSize)
		if err != nil {
			_ = socket.Close()
			return nil, fmt.Errorf("sasl transport: %w", err)
		}
	}
	if !transport.IsOpen() {
		if err := transport.Open(); err != nil {
			_ = socket.Close()
			return nil, err
		}
	}
	return transport, nil
}

func openHTTPTransport(server domain.QueryServer, user string) (thrift.TTransport, error) {
	endpoint := url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", server.Host, server.Port),
		Path:   "/" + strings.TrimPrefix(server.HTTPPath, "/"),
	}
	transport, err := thrift.NewTHttpClientTransportFactoryWithOptions(endpoint.String(), thrift.THttpClientOptions{
		Client: http.DefaultClient,
	}).GetTransport(nil)
	if err != nil {
		return nil, err
	}
	if httpTransport, ok := transport.(*thrift.THttpClient); ok {
		username, password := credentials(server, user)
		token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		httpTransport.SetHeader("Authorization", "Basic "+token)
	}
	return transport, nil
}

// credentials returns the SASL/basic credentials for a connection. The
// password may not matter to the server but must not be empty.
func credentials(server domain.QueryServer, user string) (string, string) {
	username := server.Username
	if username == "" {
		username = user
	}
	password := server.Password
	if password == "" {
		password = "x"
	}
	return username, password
}
