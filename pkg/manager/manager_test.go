// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manager

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/openpower/govpd/pkg/config"
	"github.com/openpower/govpd/pkg/ecc"
	"github.com/openpower/govpd/pkg/inventory"
	"github.com/openpower/govpd/pkg/vpd"
)

type fakeBroker struct {
	ready     bool
	readyErr  error
	notifyErr error
	notified  []inventory.ObjectMap
}

func (b *fakeBroker) Notify(objects inventory.ObjectMap) error {
	if b.notifyErr != nil {
		return b.notifyErr
	}
	b.notified = append(b.notified, objects)
	return nil
}

func (b *fakeBroker) Ready() (bool, error) {
	return b.ready, b.readyErr
}

func (b *fakeBroker) last(t *testing.T, objectPath string) inventory.InterfaceMap {
	t.Helper()
	require.NotEmpty(t, b.notified)
	ifaces, ok := b.notified[len(b.notified)-1][objectPath]
	require.True(t, ok, "no notification for %s", objectPath)
	return ifaces
}

type fakeGuard struct {
	enabled, disabled int
	enableErr         error
}

func (g *fakeGuard) Enable() error {
	if g.enableErr != nil {
		return g.enableErr
	}
	g.enabled++
	return nil
}

func (g *fakeGuard) Disable() error {
	g.disabled++
	return nil
}

type memEeprom struct{ *bytesextra.ReadWriteSeeker }

func (memEeprom) Close() error { return nil }

const testConfigJSON = `{
  "frus": {
    "primary": [
      {
        "inventoryPath": "/system/chassis/motherboard",
        "redundantEeprom": "redundant",
        "extraInterfaces": {
          "xyz.openbmc_project.Inventory.Item.Board.Motherboard": {},
          "com.ibm.ipzvpd.Location": {"LocationCode": "Ufcs-P0"}
        }
      }
    ],
    "dimm0": [
      {
        "inventoryPath": "/system/chassis/motherboard/dimm0",
        "inherit": false,
        "extraInterfaces": {
          "xyz.openbmc_project.Inventory.Decorator.LocationCode": {"LocationCode": "Ufcs-P0-C12"}
        }
      }
    ]
  },
  "commonInterfaces": {
    "xyz.openbmc_project.Inventory.Decorator.Asset": {
      "SerialNumber": {"recordName": "VINI", "keywordName": "SN"},
      "Model": "Rainier 2S2U"
    }
  }
}`

// testManager wires a Manager to in-memory EEPROM images. The images map
// is shared, so tests inspect mutations directly.
func testManager(t *testing.T, images map[string][]byte) (*Manager, *fakeBroker, *fakeGuard) {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfigJSON))
	require.NoError(t, err)

	broker := &fakeBroker{ready: true}
	guard := &fakeGuard{}
	m := New(cfg, broker, guard)
	m.OpenEeprom = func(path string) (EepromFile, error) {
		img, ok := images[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		return memEeprom{bytesextra.NewReadWriteSeeker(img)}, nil
	}
	m.SystemVPDTick = time.Millisecond
	m.CollectionTick = time.Millisecond
	return m, broker, guard
}

// Fixture layout: VHDR at the head, VTOC at 64, record bodies from 512,
// ECC windows at the image tail.
type testRecord struct {
	name     string
	keywords []vpd.Keyword
}

func buildImage(t *testing.T, recs []testRecord) []byte {
	t.Helper()
	const (
		size    = 4096
		vtocOff = 64
		eccLen  = 8
	)
	img := make([]byte, size)

	body := func(name string, kws []vpd.Keyword) []byte {
		b := []byte{0x84, 0, 0, 'R', 'T', 4}
		b = append(b, name...)
		for _, kw := range kws {
			b = append(b, kw.Name...)
			b = append(b, byte(len(kw.Value)))
			b = append(b, kw.Value...)
		}
		b = append(b, 'P', 'F', 0)
		b[1], b[2] = byte(len(b)), byte(len(b)>>8)
		return b
	}
	le16 := func(b []byte, v int) { b[0], b[1] = byte(v), byte(v>>8) }

	dataCursor := 512
	eccCursor := size - (len(recs)+1)*eccLen
	var pt []byte
	for _, r := range recs {
		rb := body(r.name, r.keywords)
		copy(img[dataCursor:], rb)
		e, err := ecc.Create(img[dataCursor:dataCursor+len(rb)], eccLen)
		require.NoError(t, err)
		copy(img[eccCursor:], e)

		entry := make([]byte, 14)
		copy(entry, r.name)
		le16(entry[6:], dataCursor)
		le16(entry[8:], len(rb))
		le16(entry[10:], eccCursor)
		le16(entry[12:], eccLen)
		pt = append(pt, entry...)

		dataCursor += (len(rb) + 15) &^ 15
		eccCursor += eccLen
	}

	vtoc := []byte{0x84, 0, 0, 'R', 'T', 4}
	vtoc = append(vtoc, "VTOC"...)
	vtoc = append(vtoc, 'P', 'T', byte(len(pt)))
	vtoc = append(vtoc, pt...)
	vtoc = append(vtoc, 'P', 'F', 0)
	vtoc[1], vtoc[2] = byte(len(vtoc)), byte(len(vtoc)>>8)
	copy(img[vtocOff:], vtoc)
	vtocEccOff := size - eccLen
	e, err := ecc.Create(img[vtocOff:vtocOff+len(vtoc)], eccLen)
	require.NoError(t, err)
	copy(img[vtocEccOff:], e)

	img[11] = 0x84
	img[12], img[13] = 44, 0
	copy(img[14:], []byte{'R', 'T', 4})
	copy(img[17:], "VHDR")
	le16(img[35:], vtocOff)
	le16(img[37:], len(vtoc))
	le16(img[39:], vtocEccOff)
	le16(img[41:], eccLen)
	e, err = ecc.Create(img[11:55], 11)
	require.NoError(t, err)
	copy(img[0:], e)

	return img
}

func systemRecords() []testRecord {
	return []testRecord{
		{name: "VINI", keywords: []vpd.Keyword{
			{Name: "SN", Value: []byte("OLD123      ")},
			{Name: "PN", Value: []byte("ABC1234")},
		}},
		{name: "VCEN", keywords: []vpd.Keyword{
			{Name: "FC", Value: []byte("F123456")},
			{Name: "SE", Value: []byte("XYZ00001")},
		}},
		{name: "VSYS", keywords: []vpd.Keyword{
			{Name: "TM", Value: []byte("9105-22A")},
			{Name: "SE", Value: []byte("133700X")},
		}},
	}
}

func buildDIMMImage(t *testing.T) []byte {
	t.Helper()
	b := make([]byte, 512)
	b[2] = 0x12
	b[4] = 0x04
	b[6] = 0x20
	b[235] = 0x09
	copy(b[416:], "11S")
	copy(b[419:], "78P4191")
	copy(b[426:], "YH30UF123456")
	copy(b[438:], "329A")
	return b
}

func TestWriteKeywordPipeline(t *testing.T) {
	images := map[string][]byte{
		"primary":   buildImage(t, systemRecords()),
		"redundant": buildImage(t, systemRecords()),
	}
	m, broker, guard := testManager(t, images)

	n := m.WriteKeyword("/system/chassis/motherboard", WriteRequest{
		Record: "VINI", Keyword: "SN", Value: []byte("NEW456"),
	})
	require.Equal(t, 6, n)
	require.Equal(t, 1, guard.enabled)
	require.Equal(t, 1, guard.disabled)

	// Primary and mirror both carry the new value.
	for _, eeprom := range []string{"primary", "redundant"} {
		got, err := m.ReadKeyword(eeprom, "VINI", "SN")
		require.NoError(t, err)
		require.Equal(t, []byte("NEW456      "), got, eeprom)
	}

	// The fresh value was published, raw and through the Asset source.
	ifaces := broker.last(t, "/system/chassis/motherboard")
	require.Equal(t, []byte("NEW456      "), ifaces["com.ibm.ipzvpd.VINI"]["SN"])
	require.Equal(t, "NEW456      ",
		ifaces["xyz.openbmc_project.Inventory.Decorator.Asset"]["SerialNumber"])
}

func TestWriteKeywordByEepromPath(t *testing.T) {
	images := map[string][]byte{
		"primary":   buildImage(t, systemRecords()),
		"redundant": buildImage(t, systemRecords()),
	}
	m, _, _ := testManager(t, images)

	n := m.WriteKeyword("primary", WriteRequest{
		Record: "VINI", Keyword: "PN", Value: []byte("XYZ9876"),
	})
	require.Equal(t, 7, n)
}

func TestWriteKeywordFailureReleasesGuard(t *testing.T) {
	images := map[string][]byte{"primary": buildImage(t, systemRecords())}
	m, _, guard := testManager(t, images)

	n := m.WriteKeyword("/system/chassis/motherboard", WriteRequest{
		Record: "ZZZZ", Keyword: "SN", Value: []byte("X"),
	})
	require.Equal(t, -1, n)
	require.Equal(t, 1, guard.enabled)
	require.Equal(t, 1, guard.disabled)
}

func TestWriteKeywordMirrorFailureSurfaces(t *testing.T) {
	// The redundant EEPROM is missing: the primary write lands, the
	// pipeline still reports failure.
	images := map[string][]byte{"primary": buildImage(t, systemRecords())}
	m, _, _ := testManager(t, images)

	n := m.WriteKeyword("/system/chassis/motherboard", WriteRequest{
		Record: "VINI", Keyword: "SN", Value: []byte("NEW456"),
	})
	require.Equal(t, -1, n)

	got, err := m.ReadKeyword("primary", "VINI", "SN")
	require.NoError(t, err)
	require.Equal(t, []byte("NEW456      "), got)
}

func TestWriteKeywordGuardEnableFails(t *testing.T) {
	images := map[string][]byte{"primary": buildImage(t, systemRecords())}
	m, _, guard := testManager(t, images)
	guard.enableErr = errors.New("host is rebooting")

	n := m.WriteKeyword("primary", WriteRequest{
		Record: "VINI", Keyword: "SN", Value: []byte("NEW456"),
	})
	require.Equal(t, -1, n)

	// Nothing was written.
	got, err := m.ReadKeyword("primary", "VINI", "SN")
	require.NoError(t, err)
	require.Equal(t, []byte("OLD123      "), got)
}

func TestReadKeywordDDIMM(t *testing.T) {
	images := map[string][]byte{"dimm0": buildDIMMImage(t)}
	m, _, _ := testManager(t, images)

	sn, err := m.ReadKeyword("dimm0", "", "SN")
	require.NoError(t, err)
	require.Equal(t, []byte("YH30UF123456"), sn)

	_, err = m.ReadKeyword("dimm0", "VINI", "SN")
	require.ErrorIs(t, err, vpd.ErrInvalidArgument)
}

func TestCollectFRU(t *testing.T) {
	images := map[string][]byte{"primary": buildImage(t, systemRecords())}
	m, broker, _ := testManager(t, images)

	require.NoError(t, m.CollectFRU("/system/chassis/motherboard"))

	ifaces := broker.last(t, "/system/chassis/motherboard")
	require.Equal(t, true, ifaces["xyz.openbmc_project.Inventory.Item"]["Present"])
	require.Equal(t, []byte("OLD123      "), ifaces["com.ibm.ipzvpd.VINI"]["SN"])
	require.Equal(t, []byte("F123456"), ifaces["com.ibm.ipzvpd.VCEN"]["FC"])

	// Inherited common interface: sourced and literal properties.
	asset := ifaces["xyz.openbmc_project.Inventory.Decorator.Asset"]
	require.Equal(t, "OLD123      ", asset["SerialNumber"])
	require.Equal(t, "Rainier 2S2U", asset["Model"])

	// Extra interfaces from the config.
	require.Contains(t, ifaces, "xyz.openbmc_project.Inventory.Item.Board.Motherboard")
	require.Equal(t, "Ufcs-P0", ifaces["com.ibm.ipzvpd.Location"]["LocationCode"])
}

func TestCollectFRUDDIMM(t *testing.T) {
	images := map[string][]byte{"dimm0": buildDIMMImage(t)}
	m, broker, _ := testManager(t, images)

	require.NoError(t, m.CollectFRU("/system/chassis/motherboard/dimm0"))

	ifaces := broker.last(t, "/system/chassis/motherboard/dimm0")
	require.Equal(t, uint64(32*1024),
		ifaces["xyz.openbmc_project.Inventory.Item.Dimm"]["MemorySizeInKB"])
	require.Equal(t, []byte("78P4191"), ifaces["com.ibm.kwvpd.KWVPD"]["PN"])

	// inherit is false, so the Asset interface is not published.
	require.NotContains(t, ifaces, "xyz.openbmc_project.Inventory.Decorator.Asset")
}

func TestCollectFRUNotReady(t *testing.T) {
	images := map[string][]byte{"primary": buildImage(t, systemRecords())}
	m, broker, _ := testManager(t, images)
	broker.ready = false

	err := m.CollectFRU("/system/chassis/motherboard")
	require.ErrorIs(t, err, vpd.ErrServiceUnavailable)
}

func TestCollectFRUUnknownPath(t *testing.T) {
	m, _, _ := testManager(t, nil)
	err := m.CollectFRU("/system/chassis/nowhere")
	require.ErrorIs(t, err, vpd.ErrInvalidArgument)
}

func TestDeleteFRU(t *testing.T) {
	images := map[string][]byte{"primary": buildImage(t, systemRecords())}
	m, broker, _ := testManager(t, images)

	require.NoError(t, m.DeleteFRU("/system/chassis/motherboard"))
	ifaces := broker.last(t, "/system/chassis/motherboard")
	require.Equal(t, false, ifaces["xyz.openbmc_project.Inventory.Item"]["Present"])
}

func TestCollectCycle(t *testing.T) {
	images := map[string][]byte{
		"primary":   buildImage(t, systemRecords()),
		"redundant": buildImage(t, systemRecords()),
		"dimm0":     buildDIMMImage(t),
	}
	m, _, _ := testManager(t, images)
	require.Equal(t, StatusNotStarted, m.Status())

	require.NoError(t, m.Collect(context.Background()))
	require.Equal(t, StatusCompleted, m.Status())
}

func TestCollectRetriesExhausted(t *testing.T) {
	// dimm0 is missing, so its FRU never collects.
	images := map[string][]byte{"primary": buildImage(t, systemRecords())}
	m, _, _ := testManager(t, images)
	m.CollectionRetries = 2

	err := m.Collect(context.Background())
	require.ErrorIs(t, err, vpd.ErrTimeout)
}

func TestCollectAborted(t *testing.T) {
	m, broker, _ := testManager(t, nil)
	broker.ready = false

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Collect(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StatusNotStarted, m.Status())
}

func TestPerformRecollection(t *testing.T) {
	images := map[string][]byte{
		"primary":   buildImage(t, systemRecords()),
		"redundant": buildImage(t, systemRecords()),
		"dimm0":     buildDIMMImage(t),
	}
	m, broker, _ := testManager(t, images)

	require.NoError(t, m.Collect(context.Background()))
	before := len(broker.notified)

	require.NoError(t, m.PerformRecollection(context.Background()))
	require.Equal(t, StatusCompleted, m.Status())
	require.Greater(t, len(broker.notified), before)
}

func TestExpandLocationCode(t *testing.T) {
	images := map[string][]byte{"primary": buildImage(t, systemRecords())}
	m, _, _ := testManager(t, images)

	full, err := m.ExpandLocationCode("Ufcs-A1", 0)
	require.NoError(t, err)
	require.Equal(t, "UF123.ND0.XYZ00001-A1", full)

	full, err = m.ExpandLocationCode("Umts", 0)
	require.NoError(t, err)
	require.Equal(t, "U9105.22A.133700X", full)

	for _, bad := range []string{"", "U", "Xfcs-A1", "UfcsA1", "Uabc-A1"} {
		_, err := m.ExpandLocationCode(bad, 0)
		require.ErrorIs(t, err, vpd.ErrInvalidArgument, bad)
	}
}

func TestFRUsByLocationCode(t *testing.T) {
	images := map[string][]byte{"primary": buildImage(t, systemRecords())}
	m, _, _ := testManager(t, images)

	paths, err := m.FRUsByUnexpandedLocationCode("Ufcs-P0-C12", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"/system/chassis/motherboard/dimm0"}, paths)

	paths, err = m.FRUsByExpandedLocationCode("UF123.ND0.XYZ00001-P0")
	require.NoError(t, err)
	require.Equal(t, []string{"/system/chassis/motherboard"}, paths)

	_, err = m.FRUsByExpandedLocationCode("U9999.ND0.NOPE-P0")
	require.ErrorIs(t, err, vpd.ErrInvalidArgument)
}

func TestHardwarePath(t *testing.T) {
	m, _, _ := testManager(t, nil)

	eeprom, err := m.HardwarePath("/system/chassis/motherboard/dimm0")
	require.NoError(t, err)
	require.Equal(t, "dimm0", eeprom)

	_, err = m.HardwarePath("/nowhere")
	require.ErrorIs(t, err, vpd.ErrInvalidArgument)
}
