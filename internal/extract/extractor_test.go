package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/studymate/backend-go/internal/errors"
)

func TestManager_TextExtraction(t *testing.T) {
	m := NewManager()

	result, err := m.Extract(strings.NewReader("Hello world.\nSecond line."), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello world.\nSecond line.", result.Text)
	assert.Equal(t, 1, result.PageCount)
}

func TestManager_MarkdownExtraction(t *testing.T) {
	m := NewManager()

	result, err := m.Extract(strings.NewReader("# Title\n\nBody."), "readme.md")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "# Title")
}

func TestManager_UnsupportedFormat(t *testing.T) {
	m := NewManager()

	result, err := m.Extract(strings.NewReader("binary"), "image.png")
	assert.Nil(t, result)
	require.Error(t, err)

	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeUnsupportedFormat, appErr.Code)
	assert.True(t, apperrors.IsExtractionError(err))
}

func TestDocxExtractor_LegacyDocRejected(t *testing.T) {
	e := &DocxExtractor{}

	assert.True(t, e.Supports("old.doc"))

	result, err := e.Extract(strings.NewReader("not really a doc"), "old.doc")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnsupportedFormat, apperrors.GetAppError(err).Code)
}

func TestDocxPageEstimate(t *testing.T) {
	assert.Equal(t, 1, DocxPageEstimate(0))
	assert.Equal(t, 1, DocxPageEstimate(9))
	assert.Equal(t, 1, DocxPageEstimate(10))
	assert.Equal(t, 2, DocxPageEstimate(25))
}

func TestPDFExtractor_InvalidContent(t *testing.T) {
	e := &PDFExtractor{}

	result, err := e.Extract(strings.NewReader("not a pdf"), "broken.pdf")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeExtractionFailed, apperrors.GetAppError(err).Code)
}
