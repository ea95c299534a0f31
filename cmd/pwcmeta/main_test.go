package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/pwcmeta/errors"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitInvalidUsage, exitCode(errors.NewInvalidRequestError("unsupported format %q", "xml")))
	assert.Equal(t, exitInvalidUsage, exitCode(errors.Wrap(errors.NewInvalidRequestError("bad"), "load config")))
	assert.Equal(t, exitFailure, exitCode(errors.New("merged store missing")))
}
