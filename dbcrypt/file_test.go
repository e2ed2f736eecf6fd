package dbcrypt

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zing22845/go-wxcrypt/internal/sqlitedb"
)

func writeContainer(t *testing.T, dir string, p Profile, pages int) (string, []byte, [][]byte) {
	t.Helper()
	plains := randomPlains(p, pages, int64(pages))
	enc := encryptContainer(t, p, testPassphrase(), testSalt(), plains)
	path := filepath.Join(dir, "MSG0.db")
	require.NoError(t, os.WriteFile(path, enc, 0o644))
	return path, enc, plains
}

func TestDecryptFile(t *testing.T) {
	dir := t.TempDir()
	p := fastV4
	in, enc, plains := writeContainer(t, dir, p, 4)
	out := filepath.Join(dir, "MSG0.dec.db")
	hexKey := hex.EncodeToString(testPassphrase())

	res, err := DecryptFile(context.Background(), p, hexKey, in, out)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), res.Pages)
	assert.Equal(t, int64(4*PageSize), res.Written)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, expectedOutput(p, enc, plains), got)

	// idempotent output
	out2 := filepath.Join(dir, "again.db")
	_, err = DecryptFile(context.Background(), p, hexKey, in, out2)
	require.NoError(t, err)
	got2, err := os.ReadFile(out2)
	require.NoError(t, err)
	assert.Equal(t, got, got2)
}

func TestDecryptFileNoPartialOutput(t *testing.T) {
	dir := t.TempDir()
	p := fastV3
	in, enc, _ := writeContainer(t, dir, p, 3)
	// corrupt the last page so the failure happens after pages were written
	enc[2*PageSize+10] ^= 0xff
	require.NoError(t, os.WriteFile(in, enc, 0o644))
	out := filepath.Join(dir, "out.db")

	_, err := DecryptFile(context.Background(), p, hex.EncodeToString(testPassphrase()), in, out)
	assert.ErrorIs(t, err, ErrKeyMismatch)
	assert.NoFileExists(t, out)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be removed")
}

func TestDecryptFileErrors(t *testing.T) {
	dir := t.TempDir()
	p := fastV3
	in, _, _ := writeContainer(t, dir, p, 1)
	hexKey := hex.EncodeToString(testPassphrase())
	ctx := context.Background()

	_, err := DecryptFile(ctx, p, "1234", in, filepath.Join(dir, "o.db"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = DecryptFile(ctx, p, hexKey, filepath.Join(dir, "missing.db"), filepath.Join(dir, "o.db"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = DecryptFile(ctx, p, hexKey, in, filepath.Join(dir, "nope", "o.db"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	short := filepath.Join(dir, "short.db")
	require.NoError(t, os.WriteFile(short, make([]byte, 100), 0o644))
	_, err = DecryptFile(ctx, p, hexKey, short, filepath.Join(dir, "o.db"))
	assert.ErrorIs(t, err, ErrTruncated)
	assert.NoFileExists(t, filepath.Join(dir, "o.db"))
}

func TestDetectFile(t *testing.T) {
	dir := t.TempDir()
	in, _, _ := writeContainer(t, dir, V3Profile, 1)
	p, err := DetectFile(hex.EncodeToString(testPassphrase()), in)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Version)
}

type chatRow struct {
	ID      uint
	Talker  string
	Content string
}

func TestCheckDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.db")
	db, err := sqlitedb.NewConnection(path, false)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&chatRow{}))
	require.NoError(t, db.Create(&chatRow{Talker: "wxid_a", Content: "hi"}).Error)
	exists, err := sqlitedb.CheckTableExists("chat_rows", db)
	require.NoError(t, err)
	assert.True(t, exists)
	hasField, err := sqlitedb.CheckFieldExists("chat_rows", "talker", db)
	require.NoError(t, err)
	assert.True(t, hasField)
	sqlitedb.CloseConnection(db)

	info, err := CheckDatabase(path)
	require.NoError(t, err)
	assert.True(t, info.OK())
	assert.Contains(t, info.Tables, "chat_rows")

	_, err = CheckDatabase(filepath.Join(dir, "missing.db"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoFileExists(t, filepath.Join(dir, "missing.db"))
}
