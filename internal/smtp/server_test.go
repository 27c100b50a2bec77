package smtp

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"math/big"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// received is one message accepted by the test relay
type received struct {
	From string
	To   []string
	Data string
	User string
	TLS  bool
}

// testRelay is an in-process SMTP relay backed by go-smtp
type testRelay struct {
	mu       sync.Mutex
	messages []received
	sessions int

	users    map[string]string
	reject   map[string]bool
	mechs    []string
	server   *smtp.Server
	listener net.Listener
}

type relayOptions struct {
	users    map[string]string
	reject   []string
	starttls bool
	implicit bool
	mechs    []string
}

func startRelay(t *testing.T, opts relayOptions) *testRelay {
	t.Helper()

	r := &testRelay{
		users:  opts.users,
		reject: make(map[string]bool),
		mechs:  opts.mechs,
	}
	if r.mechs == nil {
		r.mechs = []string{sasl.Plain}
	}
	for _, addr := range opts.reject {
		r.reject[addr] = true
	}

	srv := smtp.NewServer(r)
	srv.Domain = "relay.test"
	srv.AllowInsecureAuth = true
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	if opts.starttls || opts.implicit {
		cfg := &tls.Config{Certificates: []tls.Certificate{selfSignedCert(t)}}
		srv.TLSConfig = cfg
		if opts.implicit {
			l = tls.NewListener(l, cfg)
		}
	}

	r.server = srv
	r.listener = l
	go srv.Serve(l)

	t.Cleanup(func() { srv.Close() })
	return r
}

func (r *testRelay) port() int {
	_, p, _ := net.SplitHostPort(r.listener.Addr().String())
	n, _ := strconv.Atoi(p)
	return n
}

func (r *testRelay) received() []received {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]received(nil), r.messages...)
}

func (r *testRelay) sessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions
}

// NewSession implements smtp.Backend
func (r *testRelay) NewSession(c *smtp.Conn) (smtp.Session, error) {
	r.mu.Lock()
	r.sessions++
	r.mu.Unlock()
	return &relaySession{relay: r, conn: c}, nil
}

type relaySession struct {
	relay *testRelay
	conn  *smtp.Conn
	user  string
	from  string
	to    []string
}

func (s *relaySession) AuthMechanisms() []string {
	return s.relay.mechs
}

func (s *relaySession) Auth(mech string) (sasl.Server, error) {
	check := func(username, password string) error {
		if s.relay.users[username] != password || password == "" {
			return smtp.ErrAuthFailed
		}
		s.user = username
		return nil
	}

	switch mech {
	case sasl.Plain:
		return sasl.NewPlainServer(func(identity, username, password string) error {
			return check(username, password)
		}), nil
	case sasl.Login:
		return newLoginServer(check), nil
	}
	return nil, errors.New("unsupported mechanism")
}

func (s *relaySession) Mail(from string, opts *smtp.MailOptions) error {
	if s.relay.users != nil && s.user == "" {
		return &smtp.SMTPError{Code: 530, Message: "Authentication required"}
	}
	s.from = from
	return nil
}

func (s *relaySession) Rcpt(to string, opts *smtp.RcptOptions) error {
	if s.relay.reject[to] {
		return &smtp.SMTPError{Code: 550, Message: "Mailbox unavailable"}
	}
	s.to = append(s.to, to)
	return nil
}

func (s *relaySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, secure := s.conn.TLSConnectionState()
	s.relay.mu.Lock()
	s.relay.messages = append(s.relay.messages, received{From: s.from, To: s.to, Data: string(data), User: s.user, TLS: secure})
	s.relay.mu.Unlock()
	return nil
}

func (s *relaySession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *relaySession) Logout() error {
	return nil
}

// loginServer is a minimal server side of AUTH LOGIN
type loginServer struct {
	check    func(username, password string) error
	username string
	step     int
}

func newLoginServer(check func(username, password string) error) *loginServer {
	return &loginServer{check: check}
}

func (l *loginServer) Next(response []byte) ([]byte, bool, error) {
	switch l.step {
	case 0:
		l.step++
		if len(response) > 0 {
			l.username = string(response)
			l.step++
			return []byte("Password:"), false, nil
		}
		return []byte("Username:"), false, nil
	case 1:
		l.username = string(response)
		l.step++
		return []byte("Password:"), false, nil
	default:
		return nil, true, l.check(l.username, string(response))
	}
}

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func headerValue(data, name string) string {
	for _, line := range strings.Split(data, "\r\n") {
		if line == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), strings.ToLower(name)+":") {
			return strings.TrimSpace(line[len(name)+1:])
		}
	}
	return ""
}
