// Package sink delivers metric snapshots to their destination. The
// destination is parsed once from the configured URL and selects one Sink
// implementation for the whole run.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"framelog/collector"
	"framelog/metrics"
)

var (
	// ErrSinkDelivery wraps every failure to deliver a snapshot.
	ErrSinkDelivery = errors.New("sink delivery failed")
	// ErrUnsupportedDestination is returned for unknown URL schemes.
	ErrUnsupportedDestination = errors.New("unsupported destination")
)

// Sink receives snapshots.
type Sink interface {
	Write(ctx context.Context, snap *collector.MetricsSnapshot) error
	Close() error
	String() string
}

// Kind tags a Destination.
type Kind int

const (
	Console Kind = iota
	File
	HTTP
	SFTP
	SQLite
)

func (k Kind) String() string {
	switch k {
	case Console:
		return "console"
	case File:
		return "file"
	case HTTP:
		return "http"
	case SFTP:
		return "sftp"
	case SQLite:
		return "sqlite"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Destination is where snapshots go.
type Destination struct {
	Kind Kind
	Path string   // File, SQLite, and the remote path for SFTP
	URL  *url.URL // HTTP and SFTP
}

func (d Destination) String() string {
	switch d.Kind {
	case Console:
		return "console"
	case File, SQLite:
		return d.Kind.String() + ":" + d.Path
	default:
		return d.URL.Redacted()
	}
}

// ParseDestination maps a configured location to a Destination:
//
//	""  "-"  "stdout:"              console
//	"/path"  "file:///path"         file
//	"http://..."  "https://..."     http POST
//	"sftp://user@host[:22]/path"    sftp upload
//	"sqlite:///path.db"             sqlite archive
func ParseDestination(raw string) (Destination, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" || raw == "stdout:" {
		return Destination{Kind: Console}, nil
	}
	if !strings.Contains(raw, "://") {
		return Destination{Kind: File, Path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Destination{}, fmt.Errorf("parse destination %q: %w", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		if u.Path == "" {
			return Destination{}, fmt.Errorf("file destination %q has no path", raw)
		}
		return Destination{Kind: File, Path: u.Path}, nil
	case "sqlite":
		p := u.Path
		if u.Host != "" {
			// sqlite://relative.db
			p = u.Host + u.Path
		}
		if p == "" {
			return Destination{}, fmt.Errorf("sqlite destination %q has no path", raw)
		}
		return Destination{Kind: SQLite, Path: p}, nil
	case "http", "https":
		if u.Host == "" {
			return Destination{}, fmt.Errorf("http destination %q has no host", raw)
		}
		return Destination{Kind: HTTP, URL: u}, nil
	case "sftp":
		if u.Host == "" || u.Path == "" || u.Path == "/" {
			return Destination{}, fmt.Errorf("sftp destination %q needs a host and a file path", raw)
		}
		return Destination{Kind: SFTP, URL: u, Path: u.Path}, nil
	default:
		return Destination{}, fmt.Errorf("%w: %q", ErrUnsupportedDestination, u.Scheme)
	}
}

// Options carries what the individual sinks need besides the destination.
type Options struct {
	Credentials        Credentials
	InsecureSkipVerify bool
	Timeout            time.Duration
	SSHKeyPath         string
	KnownHostsPath     string
	Stdout             io.Writer
	Log                *zap.Logger
	Metrics            *metrics.Metrics
}

// New builds the sink for d. Every sink it returns wraps its failures in
// ErrSinkDelivery and reports them to opts.Metrics.
func New(d Destination, opts Options) (Sink, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	var (
		s   Sink
		err error
	)
	switch d.Kind {
	case Console:
		s = NewConsole(opts.Stdout)
	case File:
		s = NewFile(d.Path)
	case HTTP:
		s, err = NewHTTP(d.URL.String(), opts.Credentials, opts.InsecureSkipVerify, opts.Timeout)
	case SFTP:
		s, err = NewSFTP(d.URL, opts.SSHKeyPath, opts.KnownHostsPath, opts.Timeout, opts.Log)
	case SQLite:
		s, err = NewSQLiteSink(d.Path, opts.Log)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedDestination, d.Kind)
	}
	if err != nil {
		return nil, err
	}
	return &instrumented{Sink: s, kind: d.Kind.String(), log: opts.Log, metrics: opts.Metrics}, nil
}

type instrumented struct {
	Sink
	kind    string
	log     *zap.Logger
	metrics *metrics.Metrics
}

func (s *instrumented) Write(ctx context.Context, snap *collector.MetricsSnapshot) error {
	start := time.Now()
	err := s.Sink.Write(ctx, snap)
	s.metrics.SinkWrite(s.kind, err)
	if err != nil {
		if !errors.Is(err, ErrSinkDelivery) {
			err = fmt.Errorf("%w: %s: %w", ErrSinkDelivery, s.Sink, err)
		}
		s.log.Error("snapshot delivery failed", zap.String("sink", s.kind), zap.Error(err))
		return err
	}
	s.log.Debug("snapshot delivered",
		zap.String("sink", s.kind),
		zap.Int("metrics", len(snap.Metrics)),
		zap.Duration("took", time.Since(start)))
	return nil
}

// encodeSnapshot is the JSON document written by the file, http and sftp
// sinks.
func encodeSnapshot(snap *collector.MetricsSnapshot) ([]byte, error) {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return append(b, '\n'), nil
}
