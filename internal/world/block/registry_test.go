package block

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromCodeIsExhaustive(t *testing.T) {
	for _, b := range All() {
		id, err := FromCode(b.ID.Code())
		require.NoError(t, err, "блок %s должен декодироваться", b.Name)
		assert.Equal(t, b.ID, id)
	}
}

func TestFromCodeRejectsUnknown(t *testing.T) {
	for _, code := range []int32{-1, int32(blockCount), 200, 256, 1 << 20} {
		_, err := FromCode(code)
		assert.True(t, errors.Is(err, ErrUnknownBlock), "код %d должен быть ошибкой", code)
	}
}

func TestMeshKinds(t *testing.T) {
	assert.Equal(t, MeshNone, MustGet(AirBlockID).Mesh)
	assert.Equal(t, MeshCube, MustGet(StoneBlockID).Mesh)
	assert.Equal(t, MeshCross, MustGet(TallGrassBlockID).Mesh)

	assert.True(t, MustGet(StoneBlockID).Occludes())
	assert.False(t, MustGet(AirBlockID).Occludes())
	assert.False(t, MustGet(FlowerBlockID).Occludes(), "Растительность не закрывает соседей")
}

func TestGrassHasPerFaceTextures(t *testing.T) {
	grass := MustGet(GrassBlockID)
	assert.NotEqual(t, grass.Texture(FaceTop), grass.Texture(FacePosX))
	assert.Equal(t, grass.Texture(FaceNegZ), grass.Texture(FacePosX))
	assert.Equal(t, MustGet(DirtBlockID).Texture(FaceTop), grass.Texture(FaceBottom))
}

func TestNewTableRejectsDuplicates(t *testing.T) {
	_, err := NewTable(Block{ID: 1, Name: "a"}, Block{ID: 1, Name: "b"})
	assert.Error(t, err)
}

func TestByName(t *testing.T) {
	b, ok := ByName("dirt")
	require.True(t, ok)
	assert.Equal(t, DirtBlockID, b.ID)

	_, ok = ByName("diamond")
	assert.False(t, ok)
}

func TestFaceOffsetsAreOpposite(t *testing.T) {
	pairs := [][2]Face{{FaceTop, FaceBottom}, {FacePosX, FaceNegX}, {FacePosZ, FaceNegZ}}
	for _, p := range pairs {
		assert.Equal(t, p[0].Offset().Scale(-1), p[1].Offset(), "%s / %s", p[0], p[1])
	}
	assert.Equal(t, uint8(1<<5), FacePosZ.Bit())
}
