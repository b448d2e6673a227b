// Package shell provides the SSH implementation of the restricted shell
// that the transfer engine is built on: command execution, and a single
// opaque send primitive. Anything smarter than these two calls belongs to
// the layers above.
package shell

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sidkik/sshcp-v1/pkg/errors"
	"github.com/sidkik/sshcp-v1/pkg/remote"
)

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

// clock is swapped for a fake clock in tests so connection backoff doesn't
// slow them down.
var clock clockwork.Clock = clockwork.NewRealClock()

// connectAttempts is how often Dial retries the initial connection. The
// transfer engine itself never retries, so transient connection failures
// are absorbed here, at the transport.
const connectAttempts = 3

// connectBackoff is the pause between connection attempts.
const connectBackoff = 5 * time.Second

// Config describes how to reach the target.
type Config struct {
	Host           string
	Port           int
	User           string
	IdentityFile   string
	Password       string
	KnownHostsFile string
}

// SSH runs remote commands over one SSH connection. It implements
// remote.Shell.
type SSH struct {
	client *ssh.Client
}

var _ remote.Shell = &SSH{}

// Dial connects to the target described by `cfg`.
func Dial(cfg Config) (*SSH, error) {
	clientConfig, err := newClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, port)

	var client *ssh.Client
	for attempt := 1; ; attempt++ {
		client, err = ssh.Dial("tcp", addr, clientConfig)
		if err == nil {
			break
		}
		if attempt == connectAttempts {
			return nil, errors.WithContext(err, "dial "+addr)
		}

		log.WithError(err).WithField("address", addr).Warn(
			"Failed to connect to target. Retrying.")
		clock.Sleep(connectBackoff)
	}
	return &SSH{client: client}, nil
}

// ExecCmd implements remote.Shell.
func (s *SSH) ExecCmd(cmd string) (string, string, int, error) {
	return s.run(cmd, nil)
}

// Send implements remote.Shell. The transfer rides on the remote `cat`
// since the shell contract assumes no SFTP subsystem on the target.
func (s *SSH) Send(localPath, remotePath string, makedirs bool) (string, string, int, error) {
	local, err := fs.Open(localPath)
	if err != nil {
		return "", "", 0, errors.WithContext(err, "open local file")
	}
	defer local.Close()

	cmd := "cat > " + remote.Quote(remotePath)
	if makedirs {
		cmd = "mkdir -p " + remote.Quote(filepath.Dir(remotePath)) + " && " + cmd
	}
	return s.run(cmd, local)
}

// Close tears down the connection.
func (s *SSH) Close() error {
	return s.client.Close()
}

func (s *SSH) run(cmd string, stdin afero.File) (string, string, int, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return "", "", 0, errors.WithContext(err, "open session")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = stdin
	}

	log.WithField("cmd", cmd).Debug("Executing remote command")
	err = session.Run(cmd)
	if err == nil {
		return stdout.String(), stderr.String(), 0, nil
	}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return stdout.String(), stderr.String(), exitErr.ExitStatus(), nil
	}
	return stdout.String(), stderr.String(), 0, errors.WithContext(err, "run command")
}

func newClientConfig(cfg Config) (*ssh.ClientConfig, error) {
	if cfg.Host == "" {
		return nil, errors.MissingFieldError{Field: "host"}
	}
	if cfg.User == "" {
		return nil, errors.MissingFieldError{Field: "user"}
	}

	var auth []ssh.AuthMethod
	if cfg.IdentityFile != "" {
		key, err := afero.ReadFile(fs, cfg.IdentityFile)
		if err != nil {
			return nil, errors.WithContext(err, "read identity file")
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, errors.WithContext(err, "parse identity file")
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.NewFriendlyError(
			"No authentication method is configured for %q. "+
				"Set identityFile or password in the target config.", cfg.Host)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		callback, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, errors.WithContext(err, "load known hosts")
		}
		hostKeyCallback = callback
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}, nil
}
