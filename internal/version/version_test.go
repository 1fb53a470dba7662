package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	info := Info()

	assert.Equal(t, "1.0.0", info["version"])
	assert.Contains(t, info, "build_time")
	assert.Contains(t, info, "git_commit")
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "1.0.0", Version)
}
