package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/sshcp-v1/pkg/errors"
)

func TestNewClientConfigValidation(t *testing.T) {
	_, err := newClientConfig(Config{User: "deploy", Password: "hunter2"})
	assert.Equal(t, errors.MissingFieldError{Field: "host"}, err)

	_, err = newClientConfig(Config{Host: "web-1", Password: "hunter2"})
	assert.Equal(t, errors.MissingFieldError{Field: "user"}, err)

	_, err = newClientConfig(Config{Host: "web-1", User: "deploy"})
	require.Error(t, err)
	assert.Contains(t, errors.GetPrintableMessage(err), "authentication")
}

func TestNewClientConfigPassword(t *testing.T) {
	config, err := newClientConfig(Config{
		Host:     "web-1",
		User:     "deploy",
		Password: "hunter2",
	})
	require.NoError(t, err)
	assert.Equal(t, "deploy", config.User)
	assert.Len(t, config.Auth, 1)
}
