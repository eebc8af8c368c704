package missionwire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/tuannm99/sqlmission"
	"github.com/tuannm99/sqlmission/internal/catalog"
	"github.com/tuannm99/sqlmission/internal/metrics"
)

type ServerConfig struct {
	Addr string

	// IdleTimeout closes a connection that sends nothing for this long
	// (0 = never).
	IdleTimeout time.Duration

	// Seeds supplies the tables of every new session; nil uses the
	// built-in dataset.
	Seeds *catalog.SeedSource

	// SessionOptions are applied to every session.
	SessionOptions []sqlmission.Option

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (sc ServerConfig) logger() *slog.Logger {
	if sc.Logger != nil {
		return sc.Logger
	}
	return slog.Default()
}

// ListenAndServe listens on sc.Addr until ctx is done.
func ListenAndServe(ctx context.Context, sc ServerConfig) error {
	ln, err := net.Listen("tcp", sc.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return Serve(ctx, ln, sc)
}

// Serve accepts connections on ln until ctx is done, then closes ln and
// every open connection and waits for their handlers to return.
func Serve(ctx context.Context, ln net.Listener, sc ServerConfig) error {
	log := sc.logger()
	log.Info("missionwire: listening", "addr", ln.Addr().String())

	stopAccept := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stopAccept()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Info("missionwire: stopped")
				return nil
			}
			log.Warn("missionwire: accept", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleConn(ctx, conn, sc)
		}()
	}
}

func handleConn(ctx context.Context, conn net.Conn, sc ServerConfig) {
	defer func() { _ = conn.Close() }()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	log := sc.logger().With("remote", conn.RemoteAddr().String())
	sess := newSession(sc, log)
	sc.Metrics.SessionOpened()
	defer sc.Metrics.SessionClosed()
	log.Info("missionwire: session opened", "session", sess.ID())

	for {
		if sc.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(sc.IdleTimeout))
		}

		req, err := ReadRequest(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug("missionwire: read", "err", err)
			}
			log.Info("missionwire: session closed", "session", sess.ID())
			return
		}

		if err := WriteResponse(conn, dispatch(sess, req)); err != nil {
			log.Debug("missionwire: write", "err", err)
			return
		}
	}
}

func newSession(sc ServerConfig, log *slog.Logger) *sqlmission.Session {
	var seed *catalog.TableSet
	if sc.Seeds != nil {
		seed = sc.Seeds.Current()
	}
	opts := append([]sqlmission.Option{
		sqlmission.WithLogger(log),
		sqlmission.WithMetrics(sc.Metrics),
	}, sc.SessionOptions...)
	return sqlmission.NewSession(seed, opts...)
}

// dispatch runs one request against the connection's session.
func dispatch(sess *sqlmission.Session, req Request) Response {
	resp := Response{ID: req.ID}
	switch req.Op {
	case OpExec, "":
		res, err := sess.Execute(req.SQL)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.Result = res
	case OpDiff:
		resp.Feedback = sess.Diff(req.SQL, req.Expected)
	case OpReset:
		sess.Reset()
	case OpTables:
		resp.Tables = sess.Tables()
	default:
		resp.Error = fmt.Sprintf("missionwire: unknown op %q", req.Op)
	}
	return resp
}
