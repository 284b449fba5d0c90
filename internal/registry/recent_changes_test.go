package registry

import (
	"fmt"
	"testing"

	"github.com/openmined/synctray/internal/dirstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecentChanges_NewestFirstAndBounded(t *testing.T) {
	rc, err := NewRecentChanges(3)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		rc.Add(dirstate.FileChange{DirID: "docs", Path: fmt.Sprintf("file-%d", i)})
	}

	assert.Equal(t, 3, rc.Len())
	list := rc.List()
	require.Len(t, list, 3)
	assert.Equal(t, "file-4", list[0].Path)
	assert.Equal(t, "file-3", list[1].Path)
	assert.Equal(t, "file-2", list[2].Path)
}

func TestRecentChanges_DuplicatesAreKept(t *testing.T) {
	rc, err := NewRecentChanges(10)
	require.NoError(t, err)

	c := dirstate.FileChange{DirID: "docs", Path: "same", Action: "modified"}
	rc.Add(c)
	rc.Add(c)
	assert.Len(t, rc.List(), 2)

	rc.Purge()
	assert.Empty(t, rc.List())
}
