package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studymate/backend-go/internal/segmenter"
)

func TestInitContainer(t *testing.T) {
	container := InitContainer()
	assert.NotNil(t, container)
	assert.Equal(t, container, GetContainer())
}

func TestContainerProvideInvoke(t *testing.T) {
	container := InitContainer()

	err := container.Provide(func() *segmenter.Segmenter {
		return segmenter.NewSegmenter(1000, 200, 100, 2000)
	})
	require.NoError(t, err)

	err = container.Invoke(func(seg *segmenter.Segmenter) {
		assert.NotNil(t, seg)
	})
	assert.NoError(t, err)
}
