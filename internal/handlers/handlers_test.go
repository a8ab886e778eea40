package handlers

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseRoot(t *testing.T, xml string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(xml))
	return doc.Root()
}

const gbmFltPos = `<voe:VOEvent ivorn="ivo://nasa.gsfc.gcn/Fermi#GBM_Flt_Pos_2026-01-01T00:00:00.00_000000_0-000" xmlns:voe="http://www.ivoa.net/xml/VOEvent/v2.0">
<What><Param name="Packet_Type" value="111"/></What>
</voe:VOEvent>`

const killSocket = `<voe:VOEvent ivorn="ivo://nasa.gsfc.gcn/test#kill_socket" xmlns:voe="http://www.ivoa.net/xml/VOEvent/v2.0">
<What><Param name="Packet_Type" value="0"/></What>
</voe:VOEvent>`

func TestIncludeNoticeTypes(t *testing.T) {
	t.Parallel()

	var got []byte
	inner := func(payload []byte, root *etree.Element) { got = payload }

	h := IncludeNoticeTypes(inner, 111)

	root := parseRoot(t, gbmFltPos)
	h([]byte("a"), root)
	assert.Equal(t, []byte("a"), got)

	got = nil
	root = parseRoot(t, killSocket)
	h([]byte("b"), root)
	assert.Nil(t, got)
}

func TestExcludeNoticeTypes(t *testing.T) {
	t.Parallel()

	var got []byte
	inner := func(payload []byte, root *etree.Element) { got = payload }

	h := ExcludeNoticeTypes(inner, 0)

	root := parseRoot(t, gbmFltPos)
	h([]byte("a"), root)
	assert.Equal(t, []byte("a"), got)

	got = nil
	root = parseRoot(t, killSocket)
	h([]byte("b"), root)
	assert.Nil(t, got)
}

func TestArchive_WritesFileNamedByIVORN(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	root := parseRoot(t, gbmFltPos)
	payload := []byte(gbmFltPos)

	h := Archive(slog.Default())
	h(payload, root)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ivo%3A%2F%2Fnasa.gsfc.gcn%2FFermi%23GBM_Flt_Pos_2026-01-01T00%3A00%3A00.00_000000_0-000", entries[0].Name())

	got, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestArchive_MissingIVORN(t *testing.T) {
	t.Parallel()

	root := parseRoot(t, `<voe:VOEvent xmlns:voe="http://www.ivoa.net/xml/VOEvent/v2.0"/>`)

	h := Archive(slog.Default())
	assert.NotPanics(t, func() {
		h([]byte("x"), root)
	})
}

func TestQueueHandler_EnqueuesAndDrops(t *testing.T) {
	t.Parallel()

	h, ch := QueueHandler(slog.Default(), 1)
	root := parseRoot(t, gbmFltPos)

	h([]byte("first"), root)
	h([]byte("second"), root) // queue full, dropped

	d := <-ch
	assert.Equal(t, []byte("first"), d.Payload)

	select {
	case <-ch:
		t.Fatal("second delivery should have been dropped")
	default:
	}
}
