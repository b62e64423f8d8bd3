package ftp_test

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depositd/pkg/packaging"
	"github.com/marmos91/depositd/pkg/transport"
	ftptransport "github.com/marmos91/depositd/pkg/transport/ftp"
)

// fakeFTPServer speaks just enough FTP for one deposit session: login,
// directory setup, one passive-mode STOR, quit.
type fakeFTPServer struct {
	t        *testing.T
	ln       net.Listener
	mkdErr   bool // answer MKD with 550 "already exists"
	mu       sync.Mutex
	commands []string
	stored   map[string][]byte
}

func newFakeFTPServer(t *testing.T, mkdErr bool) *fakeFTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeFTPServer{t: t, ln: ln, mkdErr: mkdErr, stored: map[string][]byte{}}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *fakeFTPServer) addr() (host string, port int) {
	tcp := s.ln.Addr().(*net.TCPAddr)
	return tcp.IP.String(), tcp.Port
}

func (s *fakeFTPServer) record(cmd string) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
}

func (s *fakeFTPServer) sawCommand(prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.commands {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (s *fakeFTPServer) file(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.stored[name]
	return b, ok
}

func (s *fakeFTPServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	w := bufio.NewWriter(conn)
	r := bufio.NewReader(conn)
	reply := func(line string) {
		_, _ = w.WriteString(line + "\r\n")
		_ = w.Flush()
	}

	reply("220 fake ftp ready")

	var dataLn net.Listener
	defer func() {
		if dataLn != nil {
			_ = dataLn.Close()
		}
	}()

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		s.record(line)

		verb, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "FEAT":
			reply("502 not implemented")
		case "USER":
			reply("331 need password")
		case "PASS":
			reply("230 logged in")
		case "TYPE":
			reply("200 type set")
		case "MKD":
			if s.mkdErr {
				reply("550 directory already exists")
			} else {
				reply(fmt.Sprintf(`257 "%s" created`, arg))
			}
		case "CWD":
			reply("250 ok")
		case "EPSV":
			dataLn, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 cannot open data connection")
				continue
			}
			port := dataLn.Addr().(*net.TCPAddr).Port
			reply(fmt.Sprintf("229 Entering Extended Passive Mode (|||%d|)", port))
		case "STOR":
			if dataLn == nil {
				reply("425 use EPSV first")
				continue
			}
			reply("150 opening data connection")
			data, err := dataLn.Accept()
			if err != nil {
				reply("426 aborted")
				continue
			}
			body, _ := io.ReadAll(data)
			_ = data.Close()
			_ = dataLn.Close()
			dataLn = nil
			s.mu.Lock()
			s.stored[arg] = body
			s.mu.Unlock()
			reply("226 transfer complete")
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func testStream(t *testing.T) packaging.PackageStream {
	t.Helper()
	return packaging.NewStream("pkg-7.zip", packaging.Options{
		Archive: packaging.ArchiveZIP,
	}, []packaging.Source{
		packaging.BytesSource("manifest.txt", "text/plain", []byte("article.pdf\n")),
		packaging.BytesSource("article.pdf", "application/pdf", bytes.Repeat([]byte{0x25}, 2048)),
	})
}

func TestSendStoresPackage(t *testing.T) {
	srv := newFakeFTPServer(t, false)
	host, port := srv.addr()

	tr := ftptransport.New(ftptransport.Config{
		Host:          host,
		Port:          port,
		BaseDir:       "deposits",
		DialTimeout:   2 * time.Second,
		ConnectWindow: 5 * time.Second,
	})

	sess, err := tr.Open(context.Background(), transport.Hints{
		AuthMode: transport.AuthUserPass,
		Username: "depositor",
		Password: "s3cret",
	})
	require.NoError(t, err)

	resp, err := sess.Send(context.Background(), testStream(t))
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	assert.True(t, resp.Accepted)
	// FTP has no status document to poll.
	assert.Empty(t, resp.StatusRef)
	require.Len(t, resp.ExternalIDs, 1)
	assert.Contains(t, resp.ExternalIDs[0], "deposits/pkg-7.zip")

	assert.True(t, srv.sawCommand("USER depositor"))
	assert.True(t, srv.sawCommand("MKD deposits"))
	assert.True(t, srv.sawCommand("CWD deposits"))

	// The stored bytes form a valid ZIP with the declared entries.
	body, ok := srv.file("pkg-7.zip")
	require.True(t, ok)
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "manifest.txt", zr.File[0].Name)
}

func TestOpenCreatesNestedBaseDirSegmentBySegment(t *testing.T) {
	srv := newFakeFTPServer(t, false)
	host, port := srv.addr()

	tr := ftptransport.New(ftptransport.Config{
		Host:          host,
		Port:          port,
		BaseDir:       "archive/deposits/2026",
		DialTimeout:   2 * time.Second,
		ConnectWindow: 5 * time.Second,
	})

	sess, err := tr.Open(context.Background(), transport.Hints{AuthMode: transport.AuthImplicit})
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	// Each path segment gets its own MKD/CWD pair so missing parents are
	// created on the way down.
	for _, seg := range []string{"archive", "deposits", "2026"} {
		assert.True(t, srv.sawCommand("MKD "+seg), "missing MKD %s", seg)
		assert.True(t, srv.sawCommand("CWD "+seg), "missing CWD %s", seg)
	}
	assert.False(t, srv.sawCommand("MKD archive/deposits"))
}

func TestOpenTreatsExistingDirAsSuccess(t *testing.T) {
	srv := newFakeFTPServer(t, true)
	host, port := srv.addr()

	tr := ftptransport.New(ftptransport.Config{
		Host:          host,
		Port:          port,
		BaseDir:       "deposits",
		DialTimeout:   2 * time.Second,
		ConnectWindow: 5 * time.Second,
	})

	sess, err := tr.Open(context.Background(), transport.Hints{AuthMode: transport.AuthImplicit})
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	// Anonymous login when no credentials are hinted.
	assert.True(t, srv.sawCommand("USER anonymous"))
}
