// Package ssh stores backups on a remote host over SSH.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/fgeck/afterchive/internal/apperr"
	"github.com/fgeck/afterchive/internal/models"
	"github.com/fgeck/afterchive/internal/services/wol"
	"github.com/fgeck/afterchive/internal/util"
)

const (
	defaultPort    = 22
	connectTimeout = 30 * time.Second
)

// Service defines the interface for SSH storage operations.
type Service interface {
	Store(ctx context.Context, artifactPath string, cfg models.StorageConfig) (string, error)
	Retrieve(ctx context.Context, name string, cfg models.StorageConfig) (*models.Artifact, error)
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	// Stream runs cmd with the given stdin and stdout. Either may be nil.
	Stream(cmd string, stdin io.Reader, stdout io.Writer) error
	Close() error
}

// RemoteError is returned when a remote command exits with a non-zero status.
type RemoteError struct {
	Command string
	Status  int
	Stderr  string
}

func (e *RemoteError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("remote command exited with status %d: %s", e.Status, e.Stderr)
	}
	return fmt.Sprintf("remote command exited with status %d", e.Status)
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory is the default SSH client factory.
type DefaultClientFactory struct{}

// NewClient creates a new SSH client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultSSHClient{client: client}, nil
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultSSHSession{session: session}, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

type defaultSSHSession struct {
	session *ssh.Session
}

func (s *defaultSSHSession) Stream(cmd string, stdin io.Reader, stdout io.Writer) error {
	var stderr bytes.Buffer
	s.session.Stdin = stdin
	s.session.Stdout = stdout
	s.session.Stderr = &stderr

	err := s.session.Run(cmd)
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return &RemoteError{
			Command: cmd,
			Status:  exitErr.ExitStatus(),
			Stderr:  strings.TrimSpace(stderr.String()),
		}
	}
	return err
}

func (s *defaultSSHSession) Close() error {
	return s.session.Close()
}

// Impl implements the SSH Service interface.
type Impl struct {
	clientFactory ClientFactory
	waker         wol.Service
	tempRoot      string
	logger        zerolog.Logger
}

// New creates a new SSH storage service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		clientFactory: &DefaultClientFactory{},
		waker:         wol.New(logger),
		tempRoot:      os.TempDir(),
		logger:        logger,
	}
}

// NewWithClientFactory creates a new SSH service with custom seams (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory, waker wol.Service, tempRoot string) *Impl {
	return &Impl{
		clientFactory: factory,
		waker:         waker,
		tempRoot:      tempRoot,
		logger:        logger,
	}
}

// Store streams the artifact to <path>/<name> on the remote host, creating
// the directory if needed, and returns user@host:<remote path>.
func (s *Impl) Store(ctx context.Context, artifactPath string, cfg models.StorageConfig) (string, error) {
	client, err := s.connect(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	remote := remotePath(cfg, artifactPath)
	location := fmt.Sprintf("%s@%s:%s", cfg.User, cfg.Host, remote)

	f, err := os.Open(artifactPath) //nolint:gosec // artifact path is created by the run
	if err != nil {
		return "", apperr.Storage(apperr.ReasonUnknown, "cannot open artifact for upload", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", apperr.Storage(apperr.ReasonUnknown, "cannot stat artifact for upload", err)
	}

	s.logger.Info().Str("destination", location).Msg("uploading backup over SSH")
	start := time.Now()

	if err := s.run(client, storeCommand(remote, info.Size()), f, nil); err != nil {
		return "", classify(err, fmt.Sprintf("upload to %s failed", location))
	}

	s.logger.Info().
		Str("destination", location).
		Dur("duration", time.Since(start)).
		Msg("upload completed")

	return location, nil
}

// Retrieve copies <path>/<name> from the remote host into a fresh scratch directory.
func (s *Impl) Retrieve(ctx context.Context, name string, cfg models.StorageConfig) (*models.Artifact, error) {
	client, err := s.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	remote := remotePath(cfg, name)
	location := fmt.Sprintf("%s@%s:%s", cfg.User, cfg.Host, remote)

	if err := s.run(client, "test -f "+remoteArg(remote), nil, nil); err != nil {
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) && remoteErr.Status == 1 {
			return nil, apperr.NotFound(fmt.Sprintf("backup %s does not exist", location), err)
		}
		return nil, classify(err, fmt.Sprintf("cannot check %s", location))
	}

	artifact, err := models.NewArtifact(s.tempRoot, name)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("source", location).Msg("downloading backup over SSH")

	err = util.WriteTo(artifact.Path, func(f *os.File) error {
		return s.run(client, "cat "+remoteArg(remote), nil, f)
	})
	if err != nil {
		_ = artifact.Remove()
		return nil, classify(err, fmt.Sprintf("download of %s failed", location))
	}

	s.logger.Info().Str("local_path", artifact.Path).Msg("download completed")
	return artifact, nil
}

func (s *Impl) run(client SSHClient, cmd string, stdin io.Reader, stdout io.Writer) error {
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer func() { _ = session.Close() }()

	s.logger.Debug().Str("command", cmd).Msg("running remote command")
	return session.Stream(cmd, stdin, stdout)
}

func (s *Impl) connect(ctx context.Context, cfg models.StorageConfig) (SSHClient, error) {
	if err := cfg.Require("host", "user", "path", "credentials"); err != nil {
		return nil, err
	}

	sshConfig, err := buildConfig(cfg)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port(cfg)))

	if cfg.Wake != nil {
		if err := s.wake(ctx, *cfg.Wake, addr); err != nil {
			return nil, err
		}
	}

	clientChan := make(chan struct {
		client SSHClient
		err    error
	}, 1)

	go func() {
		client, err := s.clientFactory.NewClient("tcp", addr, sshConfig)
		clientChan <- struct {
			client SSHClient
			err    error
		}{client, err}
	}()

	select {
	case <-ctx.Done():
		// The dial may still succeed; close that client once it arrives.
		go func() {
			if res := <-clientChan; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-clientChan:
		if res.err != nil {
			return nil, classifyDial(res.err, addr)
		}
		return res.client, nil
	}
}

func (s *Impl) wake(ctx context.Context, cfg models.WakeConfig, addr string) error {
	if cfg.TargetAddr == "" {
		cfg.TargetAddr = addr
	}
	result, err := s.waker.Wake(ctx, cfg)
	if err != nil {
		return apperr.Storage(apperr.ReasonConnection, "wake-on-lan failed", err)
	}
	if result.Error != nil {
		if errors.Is(result.Error, context.Canceled) {
			return result.Error
		}
		return apperr.Storage(apperr.ReasonConnection,
			fmt.Sprintf("storage host %s did not wake up", addr), result.Error)
	}
	return nil
}

func buildConfig(cfg models.StorageConfig) (*ssh.ClientConfig, error) {
	key, err := os.ReadFile(cfg.Credentials)
	if err != nil {
		return nil, apperr.Config(apperr.ReasonInvalidFile,
			fmt.Sprintf("failed to read private key from %s", cfg.Credentials), err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, apperr.Config(apperr.ReasonInvalidFile,
			fmt.Sprintf("failed to parse private key %s", cfg.Credentials), err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via known_hosts
	if cfg.KnownHosts != "" {
		hostKeyCallback, err = knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, apperr.Config(apperr.ReasonInvalidFile,
				fmt.Sprintf("failed to load known_hosts file %s", cfg.KnownHosts), err)
		}
	}

	return &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         connectTimeout,
	}, nil
}

func classifyDial(err error, addr string) error {
	msg := err.Error()
	var keyErr *knownhosts.KeyError
	switch {
	case errors.As(err, &keyErr):
		return apperr.Storage(apperr.ReasonPermissionDenied,
			fmt.Sprintf("host key for %s does not match known_hosts", addr), err)
	case strings.Contains(msg, "unable to authenticate"):
		return apperr.Storage(apperr.ReasonPermissionDenied,
			fmt.Sprintf("SSH authentication to %s failed; check the user and private key", addr), err)
	default:
		return apperr.Storage(apperr.ReasonConnection, fmt.Sprintf("cannot connect to %s", addr), err)
	}
}

func classify(err error, message string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) && strings.Contains(strings.ToLower(remoteErr.Stderr), "permission denied") {
		return apperr.Storage(apperr.ReasonPermissionDenied, message+": permission denied", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) {
		return apperr.Storage(apperr.ReasonConnection, message+": connection lost", err)
	}
	return apperr.Storage(apperr.ReasonUnknown, message, err)
}

func remotePath(cfg models.StorageConfig, name string) string {
	return path.Join(cfg.Path, path.Base(strings.ReplaceAll(name, "\\", "/")))
}

func port(cfg models.StorageConfig) int {
	if cfg.Port == 0 {
		return defaultPort
	}
	return cfg.Port
}

// storeCommand writes stdin to <remote>.partial and renames it over remote
// only when all size bytes arrived, so a failed upload leaves an existing
// copy in place.
func storeCommand(remote string, size int64) string {
	partial := remoteArg(remote + ".partial")
	return fmt.Sprintf("mkdir -p %s && cat > %s && test $(wc -c < %s) -eq %d && mv -f %s %s || { rm -f %s; exit 1; }",
		remoteArg(path.Dir(remote)), partial, partial, size, partial, remoteArg(remote), partial)
}

// remoteArg quotes p for the remote shell. A leading ~ is left to the shell
// as $HOME so that home-relative paths work.
func remoteArg(p string) string {
	switch {
	case p == "~":
		return `"$HOME"`
	case strings.HasPrefix(p, "~/"):
		return `"$HOME"/` + shellQuote(strings.TrimPrefix(p, "~/"))
	}
	return shellQuote(p)
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
