package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"signspeak/internal/domain"
	"signspeak/internal/errorsx"
	"signspeak/internal/logging"
)

const (
	sessionPath  = "/ws/session"
	writeTimeout = 5 * time.Second
)

var errSessionClosed = errors.New("remote detection session closed")

// Source implements ports.LabelSource on top of a /ws/session endpoint. It
// connects lazily and reconnects on the next draw after a failure.
type Source struct {
	url    string
	dialer *websocket.Dialer
	log    *zap.Logger

	mu      sync.Mutex
	current *session
}

func NewSource(rawURL string, log *zap.Logger) (*Source, error) {
	wsURL, err := buildSessionURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &Source{
		url:    wsURL,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    logging.OrNop(log),
	}, nil
}

func (s *Source) URL() string {
	return s.url
}

// Next blocks until the remote session recognizes a label.
func (s *Source) Next(ctx context.Context) (domain.Label, error) {
	sess, err := s.connect(ctx)
	if err != nil {
		return domain.Label{}, errorsx.Wrap(err, errorsx.ReasonLabelSource)
	}

	select {
	case label, ok := <-sess.labels:
		if !ok {
			s.forget(sess)
			err := sess.close()
			if err == nil {
				err = errSessionClosed
			}
			return domain.Label{}, errorsx.Wrap(err, errorsx.ReasonLabelSource)
		}
		return label, nil
	case <-ctx.Done():
		return domain.Label{}, ctx.Err()
	}
}

// Close stops the remote session, if any.
func (s *Source) Close() error {
	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()

	if sess == nil {
		return nil
	}
	return sess.close()
}

func (s *Source) connect(ctx context.Context) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return s.current, nil
	}

	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote detection session: %w", err)
	}
	sess := &session{
		conn:   conn,
		labels: make(chan domain.Label, 8),
		done:   make(chan struct{}),
		log:    s.log,
	}
	if err := sess.send(domain.ActionStart); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to start remote detection: %w", err)
	}
	go sess.readLoop()

	s.log.Info("remote label source connected", zap.String("url", s.url))
	s.current = sess
	return sess, nil
}

func (s *Source) forget(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == sess {
		s.current = nil
	}
}

type session struct {
	conn   *websocket.Conn
	labels chan domain.Label
	done   chan struct{}
	log    *zap.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

func (s *session) send(action string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(domain.SessionCommand{Action: action})
}

func (s *session) readLoop() {
	defer close(s.done)
	defer close(s.labels)

	for {
		var event domain.SessionEvent
		if err := s.conn.ReadJSON(&event); err != nil {
			s.setErr(err)
			return
		}

		switch event.Type {
		case domain.EventTypeRecognized:
			label := domain.Label{Text: strings.TrimSpace(event.Label), Confidence: event.Confidence}
			if label.Text == "" {
				continue
			}
			select {
			case s.labels <- label:
			default:
				s.log.Debug("dropping remote label; consumer is behind", zap.String("label", label.Text))
			}
		case domain.EventTypeError:
			s.log.Warn("remote detection error", zap.String("detail", event.Detail))
		}
	}
}

func (s *session) close() error {
	s.closeOnce.Do(func() {
		_ = s.send(domain.ActionStop)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *session) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *session) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) || errors.Is(err, net.ErrClosed) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = fmt.Errorf("failed to read remote event: %w", err)
	}
}

// buildSessionURL accepts http(s) or ws(s) URLs and fills in the session
// path when none is given.
func buildSessionURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("remote label source URL is not configured")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid remote label source URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported remote label source scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("remote label source URL has no host")
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = sessionPath
	}
	return u.String(), nil
}
