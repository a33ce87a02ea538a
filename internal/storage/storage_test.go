package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalUploaderWritesFile(t *testing.T) {
	root := t.TempDir()
	u := NewLocalUploader(root, "http://localhost:8000/")

	url, err := u.UploadBytes(context.Background(), "profile_pictures", "me.png", []byte("png"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8000/media/profile_pictures/"))
	assert.True(t, strings.HasSuffix(url, "_me.png"))

	name := url[strings.LastIndex(url, "/")+1:]
	data, err := os.ReadFile(filepath.Join(root, "profile_pictures", name))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestUniqueNameStripsPaths(t *testing.T) {
	name := uniqueName("../../etc/pass wd")
	assert.NotContains(t, name, "/")
	assert.True(t, strings.HasSuffix(name, "_pass_wd"))
	assert.True(t, strings.HasSuffix(uniqueName(""), "_upload"))
}
