// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transfer

import (
	"context"
	"fmt"
	"io"
	"net/textproto"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// ⚙️ FTPConfig holds connection settings for the FTP file store
type FTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	BasePath string        // Prepended to every remote path
	Timeout  time.Duration // Dial and per-command timeout
	MaxConns int           // Connection pool size
}

// 📦 FTPStore implements FileStore over FTP. Connections are pooled so
// concurrent fetches each hold their own control connection, bounded by
// MaxConns.
type FTPStore struct {
	cfg      FTPConfig
	connPool chan *ftp.ServerConn
}

// 🏭 NewFTPStore creates an FTP-backed file store
func NewFTPStore(cfg FTPConfig) (*FTPStore, error) {
	if cfg.Host == "" {
		return nil, errors.New("ftp: host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 4
	}
	cfg.BasePath = strings.TrimRight(cfg.BasePath, "/")

	return &FTPStore{
		cfg:      cfg,
		connPool: make(chan *ftp.ServerConn, cfg.MaxConns),
	}, nil
}

// 🔌 connect dials and authenticates a fresh control connection. The dial
// runs in a goroutine so context cancellation is honored even when the
// server is unresponsive.
func (s *FTPStore) connect(ctx context.Context) (*ftp.ServerConn, error) {
	connChan := make(chan *ftp.ServerConn, 1)
	errChan := make(chan error, 1)

	go func() {
		addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
		conn, err := ftp.Dial(addr, ftp.DialWithTimeout(s.cfg.Timeout))
		if err != nil {
			errChan <- &Error{Kind: KindConnect, Err: errors.Errorf("dialing %s: %w", addr, err)}
			return
		}

		if s.cfg.Username != "" {
			if err := conn.Login(s.cfg.Username, s.cfg.Password); err != nil {
				_ = conn.Quit()
				errChan <- &Error{Kind: KindAuth, Err: errors.Errorf("login as %s: %w", s.cfg.Username, err)}
				return
			}
		}

		connChan <- conn
	}()

	select {
	case <-ctx.Done():
		return nil, &Error{Kind: KindConnect, Err: errors.Errorf("connection attempt canceled: %w", ctx.Err())}
	case err := <-errChan:
		return nil, err
	case conn := <-connChan:
		zerolog.Ctx(ctx).Debug().Str("host", s.cfg.Host).Msg("ftp connection established")
		return conn, nil
	}
}

// getConnection takes a pooled connection or dials a new one
func (s *FTPStore) getConnection(ctx context.Context) (*ftp.ServerConn, error) {
	select {
	case conn := <-s.connPool:
		if conn.NoOp() == nil {
			return conn, nil
		}
		// Dead connection, drop it and dial a fresh one
		_ = conn.Quit()
	default:
	}
	return s.connect(ctx)
}

// returnConnection gives a connection back to the pool, closing it when the
// pool is already full
func (s *FTPStore) returnConnection(conn *ftp.ServerConn) {
	select {
	case s.connPool <- conn:
	default:
		_ = conn.Quit()
	}
}

// remotePath joins the configured base path with a store-relative path
func (s *FTPStore) remotePath(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return s.cfg.BasePath + "/" + path
}

// 📂 List returns the regular files in a remote directory
func (s *FTPStore) List(ctx context.Context, dir string) ([]Entry, error) {
	conn, err := s.getConnection(ctx)
	if err != nil {
		return nil, err
	}

	remote := s.remotePath(dir)
	ftpEntries, err := conn.List(remote)
	if err != nil {
		s.discard(conn)
		return nil, classify(err, remote)
	}
	s.returnConnection(conn)

	entries := make([]Entry, 0, len(ftpEntries))
	for _, e := range ftpEntries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		entries = append(entries, Entry{Name: e.Name, Size: int64(e.Size)})
	}
	return entries, nil
}

// 📥 Fetch opens a remote file for reading. The underlying connection is
// held until the returned reader is closed.
func (s *FTPStore) Fetch(ctx context.Context, path string) (io.ReadCloser, error) {
	conn, err := s.getConnection(ctx)
	if err != nil {
		return nil, err
	}

	remote := s.remotePath(path)
	resp, err := conn.Retr(remote)
	if err != nil {
		s.discard(conn)
		return nil, classify(err, remote)
	}

	return &ftpReader{resp: resp, conn: conn, store: s, path: remote}, nil
}

// 🔌 Close drains and quits every pooled connection
func (s *FTPStore) Close() error {
	for {
		select {
		case conn := <-s.connPool:
			_ = conn.Quit()
		default:
			return nil
		}
	}
}

// discard closes a connection that hit an error rather than repooling it
func (s *FTPStore) discard(conn *ftp.ServerConn) {
	_ = conn.Quit()
}

// ftpReader streams a RETR response and returns the control connection to
// the pool once the transfer completes
type ftpReader struct {
	resp  *ftp.Response
	conn  *ftp.ServerConn
	store *FTPStore
	path  string
}

func (r *ftpReader) Read(p []byte) (int, error) {
	n, err := r.resp.Read(p)
	if err != nil && err != io.EOF {
		return n, classify(err, r.path)
	}
	return n, err
}

func (r *ftpReader) Close() error {
	err := r.resp.Close()
	if err != nil {
		r.store.discard(r.conn)
		return classify(err, r.path)
	}
	r.store.returnConnection(r.conn)
	return nil
}

// classify maps an FTP protocol or network error to a transfer Error kind
func classify(err error, path string) error {
	var terr *Error
	if errors.As(err, &terr) {
		return err
	}

	var proto *textproto.Error
	if errors.As(err, &proto) {
		switch {
		case proto.Code == ftp.StatusNotLoggedIn || proto.Code == 532:
			return &Error{Kind: KindAuth, Path: path, Err: err}
		case proto.Code == ftp.StatusFileUnavailable || proto.Code == 553:
			return &Error{Kind: KindNotFound, Path: path, Err: err}
		case proto.Code == ftp.StatusNotAvailable:
			return &Error{Kind: KindConnect, Path: path, Err: err}
		default:
			return &Error{Kind: KindIO, Path: path, Err: err}
		}
	}

	// Anything below the protocol layer is a broken connection
	return &Error{Kind: KindConnect, Path: path, Err: err}
}
