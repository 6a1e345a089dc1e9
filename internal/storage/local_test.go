package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestObjectStore(t *testing.T) (*LocalObjectStore, string) {
	t.Helper()
	dir := t.TempDir()
	objectStore, err := NewLocalObjectStore(dir)
	require.NoError(t, err)
	return objectStore, dir
}

func TestLocalObjectStore_PutObject(t *testing.T) {
	objectStore, baseDir := setupTestObjectStore(t)

	bucket := "test-bucket"
	key := "test-file.txt"
	content := []byte("Test content")

	err := objectStore.PutObject(context.Background(), bucket, key, bytes.NewReader(content))
	require.NoError(t, err)

	filePath := filepath.Join(baseDir, bucket, key)
	data, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestLocalObjectStore_GetObject(t *testing.T) {
	objectStore, _ := setupTestObjectStore(t)

	bucket := "test-bucket"
	key := "nested/upload.csv"
	content := []byte("project,model\n")

	require.NoError(t, objectStore.PutObject(context.Background(), bucket, key, bytes.NewReader(content)))

	stream, err := objectStore.GetObject(context.Background(), bucket, key)
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestLocalObjectStore_GetObjectMissing(t *testing.T) {
	objectStore, _ := setupTestObjectStore(t)

	_, err := objectStore.GetObject(context.Background(), "test-bucket", "no-such-key")
	assert.Error(t, err)
}

func TestLocalObjectStore_CreateBucket(t *testing.T) {
	objectStore, _ := setupTestObjectStore(t)

	err := objectStore.CreateBucket(context.Background(), "test-bucket")
	require.NoError(t, err)
	// CreateBucket is a no-op for LocalObjectStore, so we just verify it doesn't error
}

func TestLocalObjectStore_ListObjects(t *testing.T) {
	objectStore, baseDir := setupTestObjectStore(t)

	bucket := "test-bucket"
	files := []string{"uploads/file1.csv", "uploads/file2.csv", "other/file3.csv"}
	for _, file := range files {
		filePath := filepath.Join(baseDir, bucket, file)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), os.ModePerm))
		require.NoError(t, os.WriteFile(filePath, []byte("content"), os.ModePerm))
	}

	objects, err := objectStore.ListObjects(context.Background(), bucket, "uploads")
	require.NoError(t, err)
	require.Len(t, objects, 2)

	names := []string{objects[0].Name, objects[1].Name}
	assert.ElementsMatch(t, []string{"uploads/file1.csv", "uploads/file2.csv"}, names)
	assert.EqualValues(t, len("content"), objects[0].Size)
}

func TestLocalObjectStore_ListObjectsMissingPrefix(t *testing.T) {
	objectStore, _ := setupTestObjectStore(t)

	objects, err := objectStore.ListObjects(context.Background(), "test-bucket", "nothing-here")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestLocalObjectStore_DeleteObjects(t *testing.T) {
	objectStore, baseDir := setupTestObjectStore(t)

	bucket := "test-bucket"
	prefix := "test-dir"

	files := []string{"test-dir/file1.txt", "test-dir/file2.txt", "other-dir/file3.txt"}
	for _, file := range files {
		filePath := filepath.Join(baseDir, bucket, file)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), os.ModePerm))
		require.NoError(t, os.WriteFile(filePath, []byte("content"), os.ModePerm))
	}

	err := objectStore.DeleteObjects(context.Background(), bucket, prefix)
	require.NoError(t, err)

	// Verify files in the prefix were deleted
	for _, file := range []string{"test-dir/file1.txt", "test-dir/file2.txt"} {
		filePath := filepath.Join(baseDir, bucket, file)
		_, err := os.Stat(filePath)
		assert.True(t, os.IsNotExist(err), "File %s should not exist", file)
	}

	// Verify files outside the prefix still exist
	otherFilePath := filepath.Join(baseDir, bucket, "other-dir/file3.txt")
	_, err = os.Stat(otherFilePath)
	assert.NoError(t, err, "File outside prefix should still exist")
}
