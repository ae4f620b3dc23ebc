// Package source opens upload payloads from the local filesystem or an
// FTP server, so operators can push files published by field stations
// without downloading them first.
package source

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

const (
	ftpTimeout     = 30 * time.Second
	defaultFTPPort = "21"
)

// File is an opened upload payload. Close must be called when done.
type File struct {
	Name string
	io.ReadCloser
}

// Location is a parsed file reference.
type Location struct {
	Remote   bool
	Host     string // host:port, remote only
	User     string
	Password string
	Path     string
}

// Parse interprets ref as either an ftp:// URL or a local path. Anonymous
// login is used when the URL carries no credentials.
func Parse(ref string) (Location, error) {
	if ref == "" {
		return Location{}, errors.New("empty file reference")
	}
	if !strings.HasPrefix(strings.ToLower(ref), "ftp://") {
		return Location{Path: ref}, nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return Location{}, fmt.Errorf("parse ftp url: %w", err)
	}
	if u.Hostname() == "" {
		return Location{}, fmt.Errorf("ftp url %q has no host", ref)
	}
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return Location{}, fmt.Errorf("ftp url %q does not name a file", ref)
	}

	loc := Location{
		Remote:   true,
		Host:     u.Host,
		User:     "anonymous",
		Password: "anonymous",
		Path:     u.Path,
	}
	if u.Port() == "" {
		loc.Host = u.Hostname() + ":" + defaultFTPPort
	}
	if u.User != nil {
		loc.User = u.User.Username()
		loc.Password, _ = u.User.Password()
	}
	return loc, nil
}

// Name returns the base filename, used for upload routing.
func (l Location) Name() string {
	if l.Remote {
		return path.Base(l.Path)
	}
	return filepath.Base(l.Path)
}

// Open opens the file a reference points at.
func Open(ref string) (*File, error) {
	loc, err := Parse(ref)
	if err != nil {
		return nil, err
	}
	if !loc.Remote {
		f, err := os.Open(loc.Path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", loc.Path, err)
		}
		return &File{Name: loc.Name(), ReadCloser: f}, nil
	}
	return openFTP(loc)
}

func openFTP(loc Location) (*File, error) {
	conn, err := ftp.Dial(loc.Host, ftp.DialWithTimeout(ftpTimeout))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	if err := conn.Login(loc.User, loc.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp login: %w", err)
	}
	resp, err := conn.Retr(loc.Path)
	if err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	return &File{Name: loc.Name(), ReadCloser: &ftpReader{resp: resp, conn: conn}}, nil
}

// ftpReader ends the FTP session when the transfer is closed.
type ftpReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpReader) Close() error {
	err := r.resp.Close()
	if qerr := r.conn.Quit(); err == nil {
		err = qerr
	}
	return err
}
