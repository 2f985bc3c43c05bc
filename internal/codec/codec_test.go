package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absfs/sealbackup/internal/codec"
)

type settings struct {
	BackupDir  string `json:"backupDir" msgpack:"backupDir"`
	MaxBackups int    `json:"maxBackups" msgpack:"maxBackups"`
}

func TestJSONCodec(t *testing.T) {
	c := codec.JSON{}
	orig := settings{BackupDir: "/var/backups", MaxBackups: 3}
	b, err := c.Marshal(orig)
	require.NoError(t, err)
	assert.JSONEq(t, `{"backupDir":"/var/backups","maxBackups":3}`, string(b))

	var got settings
	require.NoError(t, c.Unmarshal(b, &got))
	assert.Equal(t, orig, got)
	assert.Equal(t, "json", c.Name())
}

func TestMsgPackCodec(t *testing.T) {
	c := codec.MsgPack{}
	orig := settings{BackupDir: "/srv", MaxBackups: 7}
	b, err := c.Marshal(orig)
	require.NoError(t, err)

	var got settings
	require.NoError(t, c.Unmarshal(b, &got))
	assert.Equal(t, orig, got)
	assert.Equal(t, "msgpack", c.Name())
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "json", "msgpack"} {
		c, err := codec.ByName(name)
		require.NoError(t, err, name)
		assert.NotNil(t, c)
	}
	c, _ := codec.ByName("")
	assert.Equal(t, codec.Default.Name(), c.Name())

	_, err := codec.ByName("yaml")
	assert.Error(t, err)
}
