package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pacsway/dicomstack/assoc"
	"github.com/pacsway/dicomstack/dimse"
	"github.com/pacsway/dicomstack/interfaces"
	"github.com/pacsway/dicomstack/pdu"
)

// Option configures a Server instance.
type Option func(*Server)

// WithLogger overrides the logger used by the server.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

// WithReadTimeout sets the read timeout for client connections.
func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.ReadTimeout = timeout
	}
}

// WithWriteTimeout sets the write timeout for client connections.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.WriteTimeout = timeout
	}
}

// WithTLSConfig enables TLS 1.2+ transport for accepted connections via
// assoc.Listen, instead of plain TCP. Pass a config with ClientAuth set to
// require mutual TLS, or with VerifyPeerCertificate set to assoc.PinCertificate
// for certificate pinning.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Server) {
		s.TLSConfig = cfg
	}
}

// WithAcceptancePolicy installs an AcceptancePolicy governing which
// associations the server accepts (AE title allow/deny lists, SOP class and
// transfer syntax restrictions, a concurrency cap, and an arbitrary
// delegate hook).
func WithAcceptancePolicy(policy AcceptancePolicy) Option {
	return func(s *Server) {
		s.AcceptPolicy = &policy
	}
}

// AssociationEvent reports the outcome of an association attempt, emitted
// on Server.Events() as associations are negotiated.
type AssociationEvent struct {
	CallingAE  string
	CalledAE   string
	RemoteAddr string
	Accepted   bool
}

// Server exposes a reusable DICOM listener that wires the DIMSE and PDU layers.
type Server struct {
	AETitle      string
	Handler      interfaces.ServiceHandler
	Logger       *logrus.Logger
	ReadTimeout  time.Duration // Read deadline set on each accepted connection (zero: none)
	WriteTimeout time.Duration // Write deadline set on each accepted connection (zero: none)
	TLSConfig    *tls.Config   // non-nil enables TLS 1.2+ transport, see assoc.Listen

	// AcceptPolicy, when set, constrains which associations are accepted.
	// Nil means accept any calling AE up to no concurrency limit, the same
	// behavior as before AcceptancePolicy existed.
	AcceptPolicy *AcceptancePolicy

	slots  active
	events chan AssociationEvent
}

// New builds a Server with the provided AE title and handler.
func New(aeTitle string, handler interfaces.ServiceHandler, opts ...Option) *Server {
	srv := &Server{AETitle: aeTitle, Handler: handler, events: make(chan AssociationEvent, 64)}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Events returns the channel on which AssociationEvent values are published
// as associations are accepted or rejected. The channel is buffered; if the
// buffer fills, new events are dropped rather than blocking connection
// handling, so a caller wanting every event must keep up with the stream.
func (s *Server) Events() <-chan AssociationEvent {
	return s.events
}

func (s *Server) publish(evt AssociationEvent) {
	select {
	case s.events <- evt:
	default:
	}
}

// ListenAndServe listens on the given address and serves until the context is done or an error occurs.
// The listener is plain TCP unless an Option sets a TLSConfig, in which case
// it is a TLS 1.2+ listener opened through assoc.Listen.
func ListenAndServe(ctx context.Context, address, aeTitle string, handler interfaces.ServiceHandler, opts ...Option) error {
	srv := New(aeTitle, handler, opts...)

	listener, err := assoc.Listen(address, assoc.Config{TLSConfig: srv.TLSConfig})
	if err != nil {
		return err
	}
	defer listener.Close()

	return srv.Serve(ctx, listener)
}

// Serve accepts connections from listener until ctx is cancelled or an unrecoverable error occurs.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		return errors.New("dicomserver: listener is required")
	}
	if s == nil {
		return errors.New("dicomserver: server is nil")
	}
	if s.Handler == nil {
		return errors.New("dicomserver: handler is required")
	}
	if s.AETitle == "" {
		return errors.New("dicomserver: AE title is required")
	}

	logger := s.logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	logger.WithFields(logrus.Fields{
		"address": listener.Addr().String(),
		"ae_title": s.AETitle,
	}).Info("DICOM server listening")

	var (
		wg       sync.WaitGroup
		serveErr error
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.WithFields(logrus.Fields{
					"error": err,
				}).Warn("Accept timeout")
				continue
			}
			serveErr = err
			break
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			s.handleConnection(ctx, c, logger)
		}(conn)
	}

	wg.Wait()

	if serveErr != nil {
		return serveErr
	}

	return ctx.Err()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, logger *logrus.Logger) {
	logger.WithFields(logrus.Fields{
		"remote_addr": conn.RemoteAddr(),
	}).Info("Accepted DICOM connection")

	// Set timeouts if configured
	if s.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
			logger.WithFields(logrus.Fields{
				"error": err,
			}).Warn("Failed to set read deadline")
		}
	}
	if s.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout)); err != nil {
			logger.WithFields(logrus.Fields{
				"error": err,
			}).Warn("Failed to set write deadline")
		}
	}

	adapter := &dimseHandlerAdapter{service: dimse.NewService(s.Handler, logger)}
	layer := pdu.NewLayer(conn, adapter, s.AETitle, logger)

	var acquiredSlot bool
	if s.AcceptPolicy != nil {
		remote := conn.RemoteAddr().String()
		layer.SetAssociationPolicy(s.AcceptPolicy.toAssociationPolicy(&s.slots, &acquiredSlot, func(callingAE, calledAE string, accepted bool) {
			s.publish(AssociationEvent{CallingAE: callingAE, CalledAE: calledAE, RemoteAddr: remote, Accepted: accepted})
		}))
		if filter := membershipFilter(s.AcceptPolicy.AllowedSOPClasses); filter != nil {
			layer.SetSOPClassFilter(filter)
		}
		if filter := membershipFilter(s.AcceptPolicy.AllowedTransferSyntaxes); filter != nil {
			layer.SetTransferSyntaxFilter(filter)
		}
		defer func() {
			if acquiredSlot {
				s.slots.release()
			}
		}()
	}

	if err := layer.HandleConnection(); err != nil && ctx.Err() == nil {
		logger.WithFields(logrus.Fields{
			"error": err,
			"remote_addr": conn.RemoteAddr(),
		}).Warn("DIMSE connection ended")
	} else {
		logger.WithFields(logrus.Fields{
			"remote_addr": conn.RemoteAddr(),
		}).Info("DIMSE connection closed")
	}
}

func (s *Server) logger() *logrus.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.StandardLogger()
}

type dimseHandlerAdapter struct {
	service *dimse.Service
}

func (a *dimseHandlerAdapter) HandleDIMSEMessage(presContextID byte, msgCtrlHeader byte, data []byte, layer *pdu.Layer) error {
	return a.service.HandleDIMSEMessage(presContextID, msgCtrlHeader, data, layer)
}
