package manifest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeupdate/bundle/compress"
)

func TestParse_MinimalManifest(t *testing.T) {
	data := []byte(`{
		"update_type": "full",
		"payloads": [
			{"filename": "rootfs.img", "delivery": {"slot": "root-b"}}
		]
	}`)

	m, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Full, m.UpdateType)
	require.Len(t, m.Payloads, 1)
	assert.Equal(t, "rootfs.img", m.Payloads[0].Filename)
	assert.Equal(t, DeliverySlot, m.Payloads[0].Delivery.Kind)
	assert.Equal(t, "root-b", m.Payloads[0].Delivery.Slot)
}

func TestParse_BlockEncodingFields(t *testing.T) {
	data := []byte(`{
		"update_type": "full",
		"payloads": [
			{
				"filename": "rootfs.img",
				"delivery": {"slot": "root-b"},
				"block_encoding": {
					"chunker": "casync:256,1024,4096",
					"hash_algorithm": "sha256",
					"deduplicate": true,
					"compression": {"xz": {"level": 6}}
				}
			}
		]
	}`)

	m, err := Parse(data)
	require.NoError(t, err)
	be := m.Payloads[0].BlockEncoding
	require.NotNil(t, be)
	assert.True(t, be.Deduplicate)

	spec, err := ParseChunkerSpec(be.Chunker)
	require.NoError(t, err)
	assert.Equal(t, ChunkerCasync, spec.Kind)
	assert.Equal(t, 1024, spec.CasyncAvg)

	cspec, err := be.CompressionSpec()
	require.NoError(t, err)
	assert.Equal(t, 6, cspec.Level)
}

func TestParse_ExecuteDelivery(t *testing.T) {
	data := []byte(`{
		"update_type": "full",
		"payloads": [
			{"filename": "postinstall.sh", "delivery": {"execute": "shell"}}
		]
	}`)

	m, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, DeliveryExecute, m.Payloads[0].Delivery.Kind)
	assert.Equal(t, "shell", m.Payloads[0].Delivery.Execute)
}

func TestParse_DeliveryBothVariantsRejected(t *testing.T) {
	data := []byte(`{
		"update_type": "full",
		"payloads": [
			{"filename": "x", "delivery": {"slot": "a", "execute": "b"}}
		]
	}`)

	_, err := Parse(data)
	assert.Error(t, err)
}

func TestParse_UnknownUpdateType(t *testing.T) {
	data := []byte(`{"update_type": "partial", "payloads": []}`)
	_, err := Parse(data)
	assert.Error(t, err)
}

func TestParse_DuplicateSlotRejectedUnlessIncremental(t *testing.T) {
	dupFull := []byte(`{
		"update_type": "full",
		"payloads": [
			{"filename": "a", "delivery": {"slot": "root-b"}},
			{"filename": "b", "delivery": {"slot": "root-b"}}
		]
	}`)
	_, err := Parse(dupFull)
	assert.Error(t, err)

	dupIncremental := []byte(`{
		"update_type": "incremental",
		"payloads": [
			{"filename": "a", "delivery": {"slot": "root-b"}},
			{"filename": "b", "delivery": {"slot": "root-b"}}
		]
	}`)
	_, err = Parse(dupIncremental)
	assert.NoError(t, err)
}

func TestParse_InvalidChunkerRejected(t *testing.T) {
	data := []byte(`{
		"update_type": "full",
		"payloads": [
			{
				"filename": "a",
				"delivery": {"slot": "x"},
				"block_encoding": {"chunker": "rolling:1,2,3"}
			}
		]
	}`)
	_, err := Parse(data)
	assert.Error(t, err)
}

func TestManifest_ResolvedHashAlgorithmDefaultsToSHA512256(t *testing.T) {
	m := Manifest{}
	alg, err := m.ResolvedHashAlgorithm()
	require.NoError(t, err)
	assert.Equal(t, "sha512-256", alg.String())
}

func TestDelivery_MarshalJSON(t *testing.T) {
	d := Delivery{Kind: DeliverySlot, Slot: "root-a"}
	data, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"slot":"root-a"}`, string(data))
}

func TestBlockEncoding_CompressionMarshalJSON(t *testing.T) {
	b := BlockEncoding{Chunker: "fixed:4096", Compression: compress.Spec{Algorithm: compress.XZ, Level: 6}}
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"chunker":"fixed:4096","compression":{"xz":{"level":6}}}`, string(data))
}

func TestBlockEncoding_CompressionUnsetOmitsField(t *testing.T) {
	b := BlockEncoding{Chunker: "fixed:4096"}
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"chunker":"fixed:4096"}`, string(data))
}

func TestBlockEncoding_CompressionRoundTrips(t *testing.T) {
	want := BlockEncoding{Chunker: "fixed:4096", Compression: compress.Spec{Algorithm: compress.XZ, Level: 6}}
	data, err := json.Marshal(want)
	require.NoError(t, err)

	var got BlockEncoding
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, want, got)
}

func TestBlockEncoding_CompressionMultipleAlgorithmsRejected(t *testing.T) {
	data := []byte(`{"chunker":"fixed:4096","compression":{"xz":{"level":6},"s2":{}}}`)
	var b BlockEncoding
	err := json.Unmarshal(data, &b)
	assert.Error(t, err)
}
