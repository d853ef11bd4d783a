// Package cipherise implements the service provider side of the Cipherise
// challenge-response authentication protocol: service registration, user
// enrolment, push & wave authentication, key binding signature verification
// and encrypted payload exchange with user devices.
package cipherise

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/forticode/cipherise-sdk-go/internal/algos"
	"github.com/forticode/cipherise-sdk-go/internal/transport"
	"github.com/forticode/cipherise-sdk-go/internal/wire"
)

const (
	// expectedProductType is the product identifier the server must report.
	expectedProductType = "CS"

	// minServerMajor is the lowest server major version this SDK can talk to.
	minServerMajor = 6

	// defaultPayloadSize applies when the server omits its payload ceiling.
	defaultPayloadSize = 4000

	// wireVersion tags versioned session snapshots.
	wireVersion = "6.0.0"
)

// Client validates compatibility with a Cipherise server and mints or
// restores Service instances. A Client is safe for concurrent use.
type Client struct {
	baseURL        string
	tr             transport.T
	httpClient     *http.Client
	validateServer bool

	mut         sync.Mutex
	payloadSize int // negotiated ceiling, 0 until ServerInformation ran
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient makes the Client exchange through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTransport replaces the whole transport capability.
func WithTransport(tr transport.T) Option {
	return func(c *Client) { c.tr = tr }
}

// WithoutServerValidation disables the compatibility check CreateService
// performs before registering a new service.
func WithoutServerValidation() Option {
	return func(c *Client) { c.validateServer = false }
}

// NewClient returns a Client targeting the Cipherise server at serverURL.
func NewClient(serverURL string, opts ...Option) (*Client, error) {
	c := &Client{baseURL: strings.TrimSuffix(serverURL, "/"), validateServer: true}
	for _, opt := range opts {
		opt(c)
	}

	if nil == c.tr {
		tr, err := transport.NewHTTPTransport(c.baseURL, c.httpClient)
		if nil != err {
			return nil, wrapError(err, "failed transport creation")
		}
		c.tr = tr
	}

	return c, nil
}

// ServerInformation is the compatibility metadata reported by the server.
type ServerInformation struct {
	ProductType   string
	ServerVersion Version
	BuildVersion  string
	AppMinVersion Version
	PayloadSize   int
}

// ServerInformation queries server metadata and verifies compatibility.
// It errors with ErrIncompatibleServer if the product type is not "CS" or the
// server major version is below the supported floor. On success the
// negotiated payload ceiling is cached for later payload envelope use.
func (self *Client) ServerInformation(ctx context.Context) (*ServerInformation, error) {
	resp := serverInfoResponse{}
	err := self.tr.GetURI(ctx, "/info", "", &resp)
	if nil != err {
		return nil, wrapError(err, "failed server info query")
	}

	if resp.ProductType != expectedProductType {
		return nil, newFlagError(ErrIncompatibleServer, "server product %q is not %q", resp.ProductType, expectedProductType)
	}

	sv, err := ParseVersion(resp.ServerVersion)
	if nil != err {
		return nil, wrapError(err, "server reported invalid version %q", resp.ServerVersion)
	}
	if sv.Major() < minServerMajor {
		return nil, newFlagError(ErrIncompatibleServer, "server version %s below supported major %d", sv, minServerMajor)
	}

	av, err := ParseVersion(resp.AppMinVersion)
	if nil != err {
		return nil, wrapError(err, "server reported invalid app min version %q", resp.AppMinVersion)
	}

	psize := resp.PayloadSize
	if psize <= 0 {
		psize = defaultPayloadSize
	}
	self.mut.Lock()
	self.payloadSize = psize
	self.mut.Unlock()

	return &ServerInformation{
		ProductType:   resp.ProductType,
		ServerVersion: sv,
		BuildVersion:  resp.BuildVersion,
		AppMinVersion: av,
		PayloadSize:   psize,
	}, nil
}

// maxPayloadSize returns the negotiated payload ceiling, querying the server
// first if no ServerInformation call cached it yet.
func (self *Client) maxPayloadSize(ctx context.Context) (int, error) {
	self.mut.Lock()
	psize := self.payloadSize
	self.mut.Unlock()
	if psize > 0 {
		return psize, nil
	}

	info, err := self.ServerInformation(ctx)
	if nil != err {
		return 0, err
	}

	return info.PayloadSize, nil
}

// CreateService generates a fresh Service keypair, registers its public half
// with the server under name, and returns the new Service.
func (self *Client) CreateService(ctx context.Context, name string) (*Service, error) {
	if self.validateServer {
		_, err := self.maxPayloadSize(ctx)
		if nil != err {
			return nil, wrapError(err, "failed server compatibility check")
		}
	}

	key, err := algos.GenerateKey()
	if nil != err {
		return nil, wrapError(err, "failed service key generation")
	}

	req := createServiceRequest{ServiceName: name, PublicKey: algos.ExportPublicKeyPEM(&key.PublicKey)}
	resp := createServiceResponse{}
	err = self.tr.PostURI(ctx, "/sp/create-service", "", &req, &resp)
	if nil != err {
		return nil, wrapError(err, "failed service registration")
	}
	if "" == resp.ServiceId {
		return nil, newError("server response misses serviceId")
	}

	return newService(self, resp.ServiceId, key, ""), nil
}

// DeserializeService restores a Service from its binary snapshot.
//
// Two historical formats are accepted: the versioned 6 element form and the
// legacy 5 element form without version tag. The obsolete signature key slot
// is discarded in both.
func (self *Client) DeserializeService(data []byte) (*Service, error) {
	tup, err := wire.Decode(data)
	if nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "value is not a serialized Service")
	}
	err = tup.Header(serviceHeader, 5, 6)
	if nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid Service snapshot")
	}

	idPos, derPos, tokenPos := 1, 2, 4
	if tup.Len() == 6 {
		version, err := tup.String(1)
		if nil != err {
			return nil, wrapFlagError(err, ErrSerialization, "invalid Service version tag")
		}
		if version != wireVersion {
			return nil, newFlagError(ErrSerialization, "unsupported Service snapshot version %q", version)
		}
		idPos, derPos, tokenPos = 2, 3, 5
	}

	id, err := tup.String(idPos)
	if nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid Service id")
	}
	der, err := tup.Bytes(derPos)
	if nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid Service private key")
	}
	token, err := tup.OptionalString(tokenPos)
	if nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid Service session token")
	}

	key, err := algos.ParsePrivateKeyDER(der)
	if nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "failed Service private key import")
	}

	return newService(self, id, key, token), nil
}
